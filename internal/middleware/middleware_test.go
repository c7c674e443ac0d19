package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

func TestAdminKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	app := fiber.New()
	app.Get("/admin", AdminKey(string(hash)), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	cases := map[string]int{
		"":       fiber.StatusUnauthorized,
		"wrong":  fiber.StatusUnauthorized,
		"s3cret": fiber.StatusOK,
	}
	for key, want := range cases {
		req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
		if key != "" {
			req.Header.Set(adminKeyHeader, key)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != want {
			t.Fatalf("key %q: expected %d got %d", key, want, resp.StatusCode)
		}
	}
}

func TestRateLimit(t *testing.T) {
	cache := newTestCache(t)
	app := fiber.New()
	app.Post("/users/:telegramId/upload", TelegramUser(),
		RateLimit(cache, "upload", 2, func(c *fiber.Ctx) string { return c.Params("telegramId") }),
		func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for i, want := range []int{fiber.StatusOK, fiber.StatusOK, fiber.StatusTooManyRequests} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/users/42/upload", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != want {
			t.Fatalf("request %d: expected %d got %d", i, want, resp.StatusCode)
		}
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/users/43/upload", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("other user must not be limited, got %d", resp.StatusCode)
	}
}

func TestTelegramUser(t *testing.T) {
	app := fiber.New()
	app.Get("/users/:telegramId", TelegramUser(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": TelegramID(c)})
	})

	resp, _ := app.Test(httptest.NewRequest(fiber.MethodGet, "/users/abc", nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric id, got %d", resp.StatusCode)
	}
	resp, _ = app.Test(httptest.NewRequest(fiber.MethodGet, "/users/77", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRequestIDEchoesHeader(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(RequestIDFrom(c)) })

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-1")
	resp, _ := app.Test(req)
	if got := resp.Header.Get(requestIDHeader); got != "req-1" {
		t.Fatalf("expected echoed request id, got %q", got)
	}

	resp, _ = app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}
