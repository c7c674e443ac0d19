package support

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/vip-club/vip_club/internal/middleware"
	"github.com/vip-club/vip_club/internal/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type messageRequest struct {
	Message string `json:"message"`
}

type statusRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) List(c *fiber.Ctx) error {
	return c.JSON(h.svc.List(middleware.TelegramID(c)))
}

func (h *Handler) Create(c *fiber.Ctx) error {
	var req NewTicket
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	t, err := h.svc.Create(middleware.TelegramID(c), req)
	if err != nil {
		return mapError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(t)
}

func (h *Handler) Get(c *fiber.Ctx) error {
	t, err := h.svc.Get(c.Params("ticketId"), middleware.TelegramID(c))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(t)
}

func (h *Handler) Reply(c *fiber.Ctx) error {
	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	t, err := h.svc.Reply(c.Params("ticketId"), middleware.TelegramID(c), req.Message)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(t)
}

// Respond is the staff side of a conversation.
func (h *Handler) Respond(c *fiber.Ctx) error {
	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	t, err := h.svc.Respond(c.Params("ticketId"), req.Message)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(t)
}

func (h *Handler) SetStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	t, err := h.svc.SetStatus(c.Params("ticketId"), req.Status)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(t)
}

// All lists every ticket for staff.
func (h *Handler) All(c *fiber.Ctx) error {
	return c.JSON(h.svc.List(0))
}

func (h *Handler) FAQ(c *fiber.Ctx) error {
	return c.JSON(FAQ())
}

func mapError(c *fiber.Ctx, err error) error {
	var verr *validate.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{"errors": verr.Errors})
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrTicketClosed):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrEmptyMessage):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, "support failure")
	}
}
