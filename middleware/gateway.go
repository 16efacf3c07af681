package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// GatewayAuthMiddleware validates the shared token from the bot gateway.
// Every request must come through the gateway; there is no public surface.
func GatewayAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("CHAT_SERVICE_TOKEN")
	if expectedToken == "" {
		log.Fatal("CHAT_SERVICE_TOKEN is not set — service cannot authenticate the gateway")
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Printf("[GATEWAY_AUTH] missing Authorization header for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway authentication token missing",
			})
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token != expectedToken {
			log.Printf("[GATEWAY_AUTH] invalid token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}

		return c.Next()
	}
}
