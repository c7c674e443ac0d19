package security

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vip-club/vip_club/internal/middleware"
)

type Handler struct {
	log *Log
}

func NewHandler(log *Log) *Handler {
	return &Handler{log: log}
}

// Activity returns the user's events and threat level.
func (h *Handler) Activity(c *fiber.Ctx) error {
	id := middleware.TelegramID(c)
	return c.JSON(fiber.Map{
		"level":  h.log.Level(id),
		"events": h.log.List(id),
	})
}

// FromRequest builds an event carrying the caller's IP and user agent.
func FromRequest(c *fiber.Ctx, typ EventType, description string, risk Risk) Event {
	return Event{
		Type:        typ,
		Description: description,
		IP:          c.IP(),
		UserAgent:   c.Get(fiber.HeaderUserAgent),
		Risk:        risk,
	}
}
