package payments

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/vip-club/vip_club/internal/backend"
	"github.com/vip-club/vip_club/internal/middleware"
	"github.com/vip-club/vip_club/internal/security"
)

// Handler exposes the wizard of the user named in the path.
type Handler struct {
	wizards  *Registry
	security *security.Log
}

// NewHandler constructs a wizard handler. events may be nil.
func NewHandler(wizards *Registry, events *security.Log) *Handler {
	return &Handler{wizards: wizards, security: events}
}

// Get returns the wizard snapshot with the current price.
func (h *Handler) Get(c *fiber.Ctx) error {
	w := h.wizards.Get(middleware.TelegramID(c))
	price, err := w.Quote(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "failed to load price")
	}
	return c.JSON(fiber.Map{
		"wizard":        w.Snapshot(),
		"price":         price.VIPPrice,
		"currency":      price.Currency,
		"price_label":   backend.FormatPrice(price.VIPPrice, price.Currency),
		"duration_days": price.VIPDurationDays,
	})
}

func (h *Handler) Start(c *fiber.Ctx) error {
	snap, err := h.wizards.Get(middleware.TelegramID(c)).Start(c.UserContext())
	if err != nil {
		return h.fail(c, snap, err)
	}
	return c.Status(http.StatusCreated).JSON(snap)
}

// Screenshot accepts the multipart field "file".
func (h *Handler) Screenshot(c *fiber.Ctx) error {
	id := middleware.TelegramID(c)
	header, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "file is required")
	}
	f, err := header.Open()
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "unable to read file")
	}
	defer f.Close()

	snap, err := h.wizards.Get(id).SubmitScreenshot(c.UserContext(), backend.File{
		Name:        header.Filename,
		ContentType: header.Header.Get(fiber.HeaderContentType),
		Size:        header.Size,
		Body:        f,
	})
	switch {
	case errors.Is(err, ErrValidation):
		h.record(c, id, "rejected screenshot: "+snap.Error, security.RiskMedium)
	case err == nil:
		h.record(c, id, "payment screenshot uploaded", security.RiskLow)
	}
	if err != nil {
		return h.fail(c, snap, err)
	}
	return c.Status(http.StatusAccepted).JSON(snap)
}

func (h *Handler) Reset(c *fiber.Ctx) error {
	id := middleware.TelegramID(c)
	h.wizards.Reset(id)
	return c.JSON(h.wizards.Get(id).Snapshot())
}

func (h *Handler) record(c *fiber.Ctx, id int64, description string, risk security.Risk) {
	if h.security == nil {
		return
	}
	h.security.Record(id, security.FromRequest(c, security.EventPayment, description, risk))
}

func (h *Handler) fail(c *fiber.Ctx, snap Snapshot, err error) error {
	switch {
	case errors.Is(err, ErrBusy), errors.Is(err, ErrWrongStep):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrClosed):
		return fiber.NewError(http.StatusGone, err.Error())
	case errors.Is(err, ErrValidation):
		return c.Status(http.StatusUnprocessableEntity).JSON(snap)
	default:
		return c.Status(http.StatusBadGateway).JSON(snap)
	}
}
