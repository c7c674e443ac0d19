package middleware

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const telegramIDLocal = "telegram_id"

// TelegramUser parses the :telegramId route parameter and stores it for
// handlers. Requests with a missing or non-numeric id are rejected.
func TelegramUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("telegramId"), 10, 64)
		if err != nil || id <= 0 {
			return fiber.NewError(http.StatusBadRequest, "invalid telegram id")
		}
		c.Locals(telegramIDLocal, id)
		return c.Next()
	}
}

// TelegramID returns the id stored by TelegramUser, or zero.
func TelegramID(c *fiber.Ctx) int64 {
	id, _ := c.Locals(telegramIDLocal).(int64)
	return id
}
