package notification

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/vip-club/vip_club/internal/middleware"
)

// Handler exposes a user's notification panel.
type Handler struct {
	hub    *Hub
	poller *Poller
}

// NewHandler constructs a notification handler. poller may be nil.
func NewHandler(hub *Hub, poller *Poller) *Handler {
	return &Handler{hub: hub, poller: poller}
}

// List returns the notifications with the unread badge. Listing also
// registers the user with the poller.
func (h *Handler) List(c *fiber.Ctx) error {
	id := middleware.TelegramID(c)
	if h.poller != nil {
		h.poller.Watch(id)
	}
	center := h.hub.For(id)
	items, err := center.List(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	unread := 0
	for _, n := range items {
		if !n.Read {
			unread++
		}
	}
	if items == nil {
		items = []Notification{}
	}
	return c.JSON(fiber.Map{
		"items":  items,
		"unread": unread,
		"badge":  BadgeLabel(unread),
	})
}

// Leave stops background polling for the user until the next List.
func (h *Handler) Leave(c *fiber.Ctx) error {
	id := middleware.TelegramID(c)
	if h.poller != nil {
		h.poller.Unwatch(id)
	}
	h.hub.For(id).ClosePanel()
	return c.SendStatus(http.StatusNoContent)
}

// Open schedules marking everything read.
func (h *Handler) Open(c *fiber.Ctx) error {
	h.hub.For(middleware.TelegramID(c)).OpenPanel()
	return c.SendStatus(http.StatusAccepted)
}

// Close cancels a pending Open.
func (h *Handler) Close(c *fiber.Ctx) error {
	h.hub.For(middleware.TelegramID(c)).ClosePanel()
	return c.SendStatus(http.StatusNoContent)
}

func (h *Handler) MarkRead(c *fiber.Ctx) error {
	err := h.hub.For(middleware.TelegramID(c)).MarkRead(c.UserContext(), c.Params("id"))
	return respond(c, err)
}

func (h *Handler) MarkAllRead(c *fiber.Ctx) error {
	return respond(c, h.hub.For(middleware.TelegramID(c)).MarkAllRead(c.UserContext()))
}

func (h *Handler) Remove(c *fiber.Ctx) error {
	err := h.hub.For(middleware.TelegramID(c)).Remove(c.UserContext(), c.Params("id"))
	return respond(c, err)
}

func (h *Handler) Clear(c *fiber.Ctx) error {
	return respond(c, h.hub.For(middleware.TelegramID(c)).Clear(c.UserContext()))
}

func respond(c *fiber.Ctx, err error) error {
	switch {
	case err == nil:
		return c.SendStatus(http.StatusNoContent)
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "notification not found")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
