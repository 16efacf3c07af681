package services

import (
	"errors"
	"fmt"
	"time"

	"pairly-chat-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrGameInProgress = errors.New("session already has an open game")
	ErrGameNotFound   = errors.New("game not found")
	ErrGameFinished   = errors.New("game already finished")
)

// GameService stores in-chat games. Rules and move validation stay in the
// bot; this service keeps the persistent state, the turn pointer and the bet
// escrow in the ledger.
type GameService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewGameService(db *gorm.DB, ledger *LedgerService) *GameService {
	return &GameService{DB: db, Ledger: ledger}
}

// Start opens a game in a session, escrowing the bet from both players via a
// smart debit. Either player being short aborts the whole creation.
func (s *GameService) Start(sessionID, gameType string, player1, player2, bet int64, initialState string) (*models.ActiveGame, error) {
	game := models.ActiveGame{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		GameType:    gameType,
		Player1ID:   player1,
		Player2ID:   player2,
		BetAmount:   bet,
		GameState:   initialState,
		CurrentTurn: player1,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.ActiveGame{}).
			Where("session_id = ? AND ended_at IS NULL", sessionID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrGameInProgress
		}

		if bet > 0 {
			ledger := s.Ledger.WithTx(tx)
			for _, player := range []int64{player1, player2} {
				if err := ledger.smartDebitLocked(player, bet); err != nil {
					return err
				}
			}
		}

		return tx.Create(&game).Error
	})
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// Open returns the session's live game, or ErrGameNotFound.
func (s *GameService) Open(sessionID string) (*models.ActiveGame, error) {
	var game models.ActiveGame
	err := s.DB.Where("session_id = ? AND ended_at IS NULL", sessionID).
		First(&game).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// UpdateState replaces the opaque state blob and advances the turn. Only open
// games accept updates.
func (s *GameService) UpdateState(gameID, state string, nextTurn int64) error {
	res := s.DB.Model(&models.ActiveGame{}).
		Where("id = ? AND ended_at IS NULL", gameID).
		Updates(map[string]interface{}{
			"game_state":   state,
			"current_turn": nextTurn,
		})
	if res.Error != nil {
		return fmt.Errorf("update game state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrGameFinished
	}
	return nil
}

// Finish ends the game with a winner and pays out double the bet from the
// game source. The conditional update keeps a concurrent finish (or a chat
// teardown force-close) from paying twice.
func (s *GameService) Finish(gameID string, winnerID int64) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var game models.ActiveGame
		err := tx.Where("id = ?", gameID).First(&game).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGameNotFound
		}
		if err != nil {
			return err
		}

		res := tx.Model(&models.ActiveGame{}).
			Where("id = ? AND ended_at IS NULL", gameID).
			Updates(map[string]interface{}{
				"winner_id": winnerID,
				"ended_at":  time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrGameFinished
		}

		if game.BetAmount > 0 {
			return s.Ledger.WithTx(tx).Credit(winnerID, models.SourceGame, game.BetAmount*2)
		}
		return nil
	})
}
