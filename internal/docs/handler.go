package docs

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/vip-club/vip_club/internal/audit"
	"github.com/vip-club/vip_club/internal/middleware"
)

type Handler struct {
	lib     *Library
	history History
	audit   audit.Logger
	logger  *slog.Logger
}

func NewHandler(lib *Library, history History, auditLog audit.Logger, logger *slog.Logger) *Handler {
	if auditLog == nil {
		auditLog = audit.Discard{}
	}
	return &Handler{lib: lib, history: history, audit: auditLog, logger: logger}
}

func (h *Handler) Sections(c *fiber.Ctx) error {
	return c.JSON(h.lib.Sections())
}

// Article returns the markdown and rendered HTML of one article.
func (h *Handler) Article(c *fiber.Ctx) error {
	a, err := h.lib.Article(c.Params("section"), c.Params("slug"))
	if errors.Is(err, ErrNotFound) {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	html, err := h.lib.Render(a)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "failed to render article")
	}
	return c.JSON(fiber.Map{
		"section":  a.Section,
		"slug":     a.Slug,
		"title":    a.Title,
		"markdown": a.Markdown,
		"html":     html,
	})
}

// Search runs ?q= and remembers the term for the user.
func (h *Handler) Search(c *fiber.Ctx) error {
	id := middleware.TelegramID(c)
	term := c.Query("q")
	results := h.lib.Search(term)
	if term != "" {
		if err := h.history.Push(c.UserContext(), id, term); err != nil {
			h.logger.Warn("search history push failed", slog.Int64("telegram_id", id), slog.Any("error", err))
		}
		h.audit.Log(id, audit.ActionDocsSearched, map[string]any{"term": term, "results": len(results)})
	}
	return c.JSON(fiber.Map{"query": term, "results": results})
}

func (h *Handler) History(c *fiber.Ctx) error {
	terms, err := h.history.Recent(c.UserContext(), middleware.TelegramID(c))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "failed to load search history")
	}
	return c.JSON(terms)
}
