package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware extracts the numeric user ID the gateway forwards in
// X-User-ID and attaches it to the request context.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get("X-User-ID")
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through the gateway with user context",
			})
		}

		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "X-User-ID must be a numeric user ID",
			})
		}

		c.Locals("user_id", userID)
		return c.Next()
	}
}

// UserID pulls the authenticated user ID out of the request context.
func UserID(c *fiber.Ctx) int64 {
	return c.Locals("user_id").(int64)
}
