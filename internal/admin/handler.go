package admin

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/vip-club/vip_club/internal/backend"
	"github.com/vip-club/vip_club/internal/listview"
	"github.com/vip-club/vip_club/internal/settings"
	"github.com/vip-club/vip_club/internal/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Users serves the users table; see listview.ParseState for the query.
func (h *Handler) Users(c *fiber.Ctx) error {
	page, err := h.svc.Users(c.UserContext(), listview.ParseState(query(c), "created_at"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(page)
}

func (h *Handler) Payments(c *fiber.Ctx) error {
	page, err := h.svc.Payments(c.UserContext(), listview.ParseState(query(c), "created_at"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(page)
}

func (h *Handler) Approve(c *fiber.Ctx) error {
	res, err := h.svc.ApprovePayment(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) Reject(c *fiber.Ctx) error {
	var req rejectRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid payload")
		}
	}
	if err := h.svc.RejectPayment(c.UserContext(), c.Params("id"), req.Reason); err != nil {
		return mapError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *Handler) Grant(c *fiber.Ctx) error {
	if err := h.svc.GrantVIP(c.UserContext(), c.Params("id")); err != nil {
		return mapError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *Handler) Revoke(c *fiber.Ctx) error {
	if err := h.svc.RevokeVIP(c.UserContext(), c.Params("id")); err != nil {
		return mapError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *Handler) Stats(c *fiber.Ctx) error {
	st, err := h.svc.Stats(c.UserContext())
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(st)
}

func (h *Handler) ResetSessions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"reset": h.svc.ResetSessions()})
}

func (h *Handler) ClearLogs(c *fiber.Ctx) error {
	n, err := h.svc.ClearLogs(c.UserContext())
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": n})
}

func (h *Handler) Actions(c *fiber.Ctx) error {
	actions, err := h.svc.Actions(c.UserContext(), c.QueryInt("limit", 100))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(actions)
}

// Export serves GET /export/:kind?format=csv|json as an attachment.
func (h *Handler) Export(c *fiber.Ctx) error {
	exp, err := h.svc.Export(c.UserContext(), c.Params("kind"), c.Query("format", "csv"))
	if err != nil {
		return mapError(c, err)
	}
	c.Attachment(exp.Filename)
	c.Set(fiber.HeaderContentType, exp.ContentType)
	return c.Send(exp.Data)
}

func (h *Handler) GetSettings(c *fiber.Ctx) error {
	s, err := h.svc.Settings(c.UserContext())
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(s)
}

func (h *Handler) UpdateSettings(c *fiber.Ctx) error {
	var req settings.Settings
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	s, err := h.svc.UpdateSettings(c.UserContext(), req)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(s)
}

func query(c *fiber.Ctx) func(string) string {
	return func(key string) string { return c.Query(key) }
}

func mapError(c *fiber.Ctx, err error) error {
	var verr *validate.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{"errors": verr.Errors})
	case errors.Is(err, backend.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "not found")
	case errors.Is(err, backend.ErrInvalidState):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrExportKind):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, "admin operation failed")
	}
}
