package handlers

import (
	"errors"
	"time"

	"pairly-chat-system/middleware"
	"pairly-chat-system/models"
	"pairly-chat-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMatchRoutes(app *fiber.App, matchService *services.MatchService, userService *services.UserService, streakService *services.StreakService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Register + onboard: the gateway calls this once the user picked a
	// gender and accepted the terms.
	secured.Post("/users", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		var req struct {
			Gender string `json:"gender"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}

		if err := userService.Register(userID, req.Gender); err != nil {
			switch {
			case errors.Is(err, services.ErrUserExists):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "user already registered"})
			case errors.Is(err, services.ErrInvalidGender):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "gender must be male or female"})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to register user"})
			}
		}
		if err := userService.Onboard(userID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to onboard user"})
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": userID, "state": models.StateIdle})
	})

	secured.Post("/match/request", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		var req struct {
			GenderPref *string `json:"gender_pref"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}

		user, err := userService.Get(userID)
		if err != nil {
			if errors.Is(err, services.ErrUserNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not registered"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}

		// Gender preference is a premium perk; silently ignore it otherwise.
		genderPref := req.GenderPref
		if !user.PremiumActive(time.Now()) {
			genderPref = nil
		}

		if _, err := streakService.Touch(userID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update streak"})
		}

		partnerID, err := matchService.RequestMatch(userID, genderPref)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrAlreadyChatting):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already in a chat"})
			case errors.Is(err, services.ErrNotReady):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "cannot search from the current state"})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "matchmaking failed"})
			}
		}

		return c.JSON(fiber.Map{"partner_id": partnerID, "searching": partnerID == nil})
	})

	secured.Post("/match/cancel", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		cancelled, err := matchService.CancelSearch(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to cancel search"})
		}
		return c.JSON(fiber.Map{"cancelled": cancelled})
	})

	secured.Post("/match/end", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		partnerID, err := matchService.EndSession(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to end session"})
		}
		return c.JSON(fiber.Map{"partner_id": partnerID})
	})

	secured.Get("/match/partner", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		partnerID, err := matchService.Partner(userID)
		if err != nil {
			if errors.Is(err, services.ErrUserNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not registered"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
		return c.JSON(fiber.Map{"partner_id": partnerID})
	})
}
