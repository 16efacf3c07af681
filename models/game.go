package models

import "time"

// ActiveGame stores an in-chat game. Game rules live in the bot; this service
// only keeps the persistent state blob, the turn pointer and the bet escrow.
type ActiveGame struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	SessionID string `gorm:"not null;index" json:"session_id"`
	GameType  string `gorm:"type:varchar(32);not null" json:"game_type"`

	Player1ID int64 `gorm:"not null" json:"player1_id"`
	Player2ID int64 `gorm:"not null" json:"player2_id"`

	BetAmount int64 `gorm:"not null;default:0" json:"bet_amount"`

	// Opaque JSON state owned by the bot's game logic.
	GameState   string `gorm:"type:text" json:"game_state"`
	CurrentTurn int64  `gorm:"not null" json:"current_turn"`

	WinnerID *int64     `json:"winner_id,omitempty"`
	EndedAt  *time.Time `gorm:"index" json:"ended_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (ActiveGame) TableName() string {
	return "active_games"
}

// Open reports whether the game is still being played.
func (g *ActiveGame) Open() bool {
	return g.EndedAt == nil
}
