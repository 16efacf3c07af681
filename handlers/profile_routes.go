package handlers

import (
	"pairly-chat-system/middleware"
	"pairly-chat-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProfileRoutes(app *fiber.App, streakService *services.StreakService, ratingService *services.RatingService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/streak", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		days, err := streakService.Days(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read streak"})
		}
		pets, err := streakService.Pets(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list pets"})
		}
		return c.JSON(fiber.Map{"days": days, "pets": pets})
	})

	secured.Post("/pets", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		var req struct {
			PetType string `json:"pet_type"`
			Saves   int    `json:"saves"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		if req.PetType == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "pet_type is required"})
		}

		added, err := streakService.AddPet(userID, req.PetType, req.Saves)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to add pet"})
		}
		if !added {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "maximum number of pets reached"})
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"pet_type": req.PetType})
	})

	secured.Get("/rating", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		avg, count, err := ratingService.Average(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read rating"})
		}
		return c.JSON(fiber.Map{"average": avg, "count": count})
	})
}
