package handlers

import (
	"errors"

	"pairly-chat-system/middleware"
	"pairly-chat-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPremiumRoutes(app *fiber.App, premiumService *services.PremiumService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/premium", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		active, daysLeft, err := premiumService.Status(userID)
		if err != nil {
			if errors.Is(err, services.ErrUserNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not registered"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
		return c.JSON(fiber.Map{
			"active":    active,
			"days_left": daysLeft,
			"plans":     services.Plans,
		})
	})

	// The gateway verifies the star payment with the platform before calling
	// this; the service only applies the grant.
	secured.Post("/premium/activate", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		var req struct {
			Days int `json:"days"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}

		until, err := premiumService.Activate(userID, req.Days)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrUnknownPlan):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown premium plan"})
			case errors.Is(err, services.ErrUserNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not registered"})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to activate premium"})
			}
		}
		return c.JSON(fiber.Map{"premium_until": until})
	})

	secured.Post("/premium/temp", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		until, err := premiumService.BuyTempPremium(userID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTempPremiumCooldown):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "temp premium is on cooldown"})
			case errors.Is(err, services.ErrInsufficientBalance):
				return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "insufficient sunflower balance"})
			case errors.Is(err, services.ErrUserNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not registered"})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to buy temp premium"})
			}
		}
		return c.JSON(fiber.Map{"premium_until": until})
	})
}
