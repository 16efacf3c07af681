package handlers

import (
	"errors"

	"pairly-chat-system/middleware"
	"pairly-chat-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupRatingRoutes(app *fiber.App, ratingService *services.RatingService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/ratings", func(c *fiber.Ctx) error {
		raterID := middleware.UserID(c)

		var req struct {
			RatedID int64 `json:"rated_id"`
			Score   int   `json:"score"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}

		if err := ratingService.Submit(raterID, req.RatedID, req.Score); err != nil {
			switch {
			case errors.Is(err, services.ErrInvalidScore):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "score must be between 1 and 5"})
			case errors.Is(err, services.ErrNoPendingRating):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no pending rating for this partner"})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to record rating"})
			}
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"rated_id": req.RatedID, "score": req.Score})
	})

	secured.Get("/ratings/pending", func(c *fiber.Ctx) error {
		raterID := middleware.UserID(c)

		pending, err := ratingService.Pending(raterID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list pending ratings"})
		}
		return c.JSON(fiber.Map{"pending": pending, "count": len(pending)})
	})
}
