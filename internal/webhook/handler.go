package webhook

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vip-club/vip_club/internal/backend"
)

type Handler struct {
	processor *Processor
}

func NewHandler(processor *Processor) *Handler {
	return &Handler{processor: processor}
}

// Receive handles POST /webhooks/:provider.
func (h *Handler) Receive(c *fiber.Ctx) error {
	provider := strings.ToLower(c.Params("provider"))
	body := append([]byte(nil), c.Body()...)
	header := func(key string) string { return c.Get(key) }
	res, err := h.processor.Handle(c.UserContext(), provider, body, header)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"status": "ok", "result": res})
	case errors.Is(err, ErrUnknownProvider):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSignature):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrPayload):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNoPayment):
		// Acknowledged so the provider stops retrying.
		return c.JSON(fiber.Map{"status": "unmatched", "result": res})
	case errors.Is(err, backend.ErrInvalidState):
		return fiber.NewError(http.StatusConflict, "payment cannot be settled yet")
	default:
		return fiber.NewError(http.StatusInternalServerError, "webhook processing failed")
	}
}
