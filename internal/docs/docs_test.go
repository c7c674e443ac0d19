package docs

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vip-club/vip_club/internal/logging"
	"github.com/vip-club/vip_club/internal/middleware"
)

func mustLoad(t *testing.T) *Library {
	t.Helper()
	lib, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return lib
}

func TestLoadSections(t *testing.T) {
	lib := mustLoad(t)
	sections := lib.Sections()
	want := []string{"getting-started", "payment", "access", "troubleshooting", "api"}
	if len(sections) != len(want) {
		t.Fatalf("expected %d sections, got %d", len(want), len(sections))
	}
	for i, s := range sections {
		if s.ID != want[i] {
			t.Fatalf("section %d: expected %s got %s", i, want[i], s.ID)
		}
		if len(s.Articles) == 0 {
			t.Fatalf("section %s has no articles", s.ID)
		}
		if s.Articles[0].Markdown != "" {
			t.Fatalf("section listing must omit bodies")
		}
	}
}

func TestArticleRender(t *testing.T) {
	lib := mustLoad(t)
	a, err := lib.Article("payment", "01-how-to-pay")
	if err != nil {
		t.Fatalf("article: %v", err)
	}
	if a.Title != "How to pay" {
		t.Fatalf("unexpected title %q", a.Title)
	}
	html, err := lib.Render(a)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "<h1>How to pay</h1>") || !strings.Contains(html, "<strong>10 MB</strong>") {
		t.Fatalf("unexpected html %s", html)
	}
	if _, err := lib.Article("payment", "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	lib := mustLoad(t)
	refs := lib.Search("REFUND")
	if len(refs) == 0 {
		t.Fatalf("expected matches for refund")
	}
	for _, r := range refs {
		if r.SectionTitle == "" || r.Title == "" {
			t.Fatalf("incomplete ref %+v", r)
		}
	}
	if got := lib.Search("   "); len(got) != 0 {
		t.Fatalf("blank term must match nothing, got %d", len(got))
	}
	if got := lib.Search("no-such-term-anywhere"); len(got) != 0 {
		t.Fatalf("expected no matches, got %d", len(got))
	}
}

func exerciseHistory(t *testing.T, h History) {
	t.Helper()
	ctx := context.Background()
	for _, term := range []string{"a", "b", "c", "d", "e", "f", "c"} {
		if err := h.Push(ctx, 1, term); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	got, err := h.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	want := []string{"c", "f", "e", "d", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v got %v", want, got)
	}
	if other, _ := h.Recent(ctx, 2); len(other) != 0 {
		t.Fatalf("history must be per user, got %v", other)
	}
}

func TestMemoryHistory(t *testing.T) {
	exerciseHistory(t, NewMemoryHistory())
}

func TestRedisHistory(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	exerciseHistory(t, NewRedisHistory(client))
}

func TestSearchHandlerRecordsHistory(t *testing.T) {
	history := NewMemoryHistory()
	h := NewHandler(mustLoad(t), history, nil, logging.Discard())
	app := fiber.New()
	app.Get("/users/:telegramId/docs/search", middleware.TelegramUser(), h.Search)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/users/3/docs/search?q=qr", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var body struct {
		Results []Ref `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) == 0 {
		t.Fatalf("expected results for qr")
	}
	if terms, _ := history.Recent(context.Background(), 3); len(terms) != 1 || terms[0] != "qr" {
		t.Fatalf("unexpected history %v", terms)
	}
}
