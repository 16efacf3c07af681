package handlers

import (
	"errors"

	"pairly-chat-system/middleware"
	"pairly-chat-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGameRoutes(app *fiber.App, gameService *services.GameService, matchService *services.MatchService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	// The caller must be in an open session; the game binds to it.
	secured.Post("/games", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		var req struct {
			GameType     string `json:"game_type"`
			Bet          int64  `json:"bet"`
			InitialState string `json:"initial_state"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		if req.GameType == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "game_type is required"})
		}
		if req.Bet < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bet cannot be negative"})
		}

		session, err := matchService.SessionFor(userID)
		if err != nil {
			if errors.Is(err, services.ErrNoOpenSession) {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not in a chat session"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}

		partner := session.UserB
		if userID == session.UserB {
			partner = session.UserA
		}

		game, err := gameService.Start(session.ID, req.GameType, userID, partner, req.Bet, req.InitialState)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrGameInProgress):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "a game is already running"})
			case errors.Is(err, services.ErrInsufficientBalance):
				return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "a player cannot cover the bet"})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to start game"})
			}
		}
		return c.Status(fiber.StatusCreated).JSON(game)
	})

	secured.Get("/games", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		session, err := matchService.SessionFor(userID)
		if err != nil {
			if errors.Is(err, services.ErrNoOpenSession) {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not in a chat session"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}

		game, err := gameService.Open(session.ID)
		if err != nil {
			if errors.Is(err, services.ErrGameNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no open game"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
		return c.JSON(game)
	})

	secured.Post("/games/:id/state", func(c *fiber.Ctx) error {
		gameID := c.Params("id")

		var req struct {
			State    string `json:"state"`
			NextTurn int64  `json:"next_turn"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}

		if err := gameService.UpdateState(gameID, req.State, req.NextTurn); err != nil {
			if errors.Is(err, services.ErrGameFinished) {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "game already finished"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update game"})
		}
		return c.JSON(fiber.Map{"id": gameID})
	})

	secured.Post("/games/:id/finish", func(c *fiber.Ctx) error {
		gameID := c.Params("id")

		var req struct {
			WinnerID int64 `json:"winner_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}

		if err := gameService.Finish(gameID, req.WinnerID); err != nil {
			switch {
			case errors.Is(err, services.ErrGameNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "game not found"})
			case errors.Is(err, services.ErrGameFinished):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "game already finished"})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to finish game"})
			}
		}
		return c.JSON(fiber.Map{"id": gameID, "winner_id": req.WinnerID})
	})
}
