package handlers

import (
	"pairly-chat-system/middleware"
	"pairly-chat-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLedgerRoutes(app *fiber.App, ledgerService *services.LedgerService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/ledger/balance", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		balance, err := ledgerService.Balance(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read balance"})
		}
		return c.JSON(balance)
	})

	// Smart debit: the gateway charges sunflowers for purchases (gifts,
	// pets). Source-level credits and debits stay internal to the services.
	secured.Post("/ledger/debit", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		var req struct {
			Amount int64 `json:"amount"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		if req.Amount <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount must be positive"})
		}

		ok, err := ledgerService.SmartDebit(userID, req.Amount)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "debit failed"})
		}
		if !ok {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "insufficient balance"})
		}
		return c.JSON(fiber.Map{"debited": req.Amount})
	})
}
