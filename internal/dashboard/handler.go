package dashboard

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/vip-club/vip_club/internal/middleware"
	"github.com/vip-club/vip_club/internal/validate"
)

type Handler struct {
	svc       *Service
	validator *validate.Validator
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validator: validate.New()}
}

type registerRequest struct {
	Username string `json:"username" validate:"max=64"`
	FullName string `json:"full_name" validate:"max=128"`
}

func (h *Handler) Get(c *fiber.Ctx) error {
	d, err := h.svc.Load(c.UserContext(), middleware.TelegramID(c))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(d)
}

func (h *Handler) Access(c *fiber.Ctx) error {
	access, err := h.svc.Access(c.UserContext(), middleware.TelegramID(c))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(access)
}

// Register upserts the caller's profile.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(req); err != nil {
		var verr *validate.ValidationError
		if errors.As(err, &verr) {
			return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{"errors": verr.Errors})
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Register(c.UserContext(), middleware.TelegramID(c), req.Username, req.FullName)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(p)
}

// QR returns the access link as a PNG image.
func (h *Handler) QR(c *fiber.Ctx) error {
	png, err := h.svc.LinkQR(c.UserContext(), middleware.TelegramID(c), c.Params("id"))
	if err != nil {
		return mapError(err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(png)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrProfileNotFound), errors.Is(err, ErrLinkNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, "dashboard unavailable")
	}
}
