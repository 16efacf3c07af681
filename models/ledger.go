package models

import "time"

// Ledger sources classify why sunflowers were earned or spent.
const (
	SourceStreak = "streak"
	SourceGame   = "game"
	SourceGift   = "gift"
	SourceRating = "rating"
)

// LedgerSources lists every valid source tag.
var LedgerSources = []string{SourceStreak, SourceGame, SourceGift, SourceRating}

// DebitPriority is the fixed order smart debits consume sources in. Effort
// sources (streak) are spent last; this ordering is business policy.
var DebitPriority = []string{SourceGame, SourceGift, SourceRating, SourceStreak}

// LedgerEntry is one append-only ledger row. Debits are negative amounts;
// rows are never updated or deleted.
type LedgerEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"not null;index:idx_ledger_user_source" json:"user_id"`
	Source    string    `gorm:"type:varchar(16);not null;index:idx_ledger_user_source" json:"source"`
	Amount    int64     `gorm:"not null" json:"amount"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (LedgerEntry) TableName() string {
	return "ledger"
}

// Balance is a user's reported sunflower balance. Each source is floored at
// zero before totalling.
type Balance struct {
	Streak int64 `json:"streak"`
	Game   int64 `json:"game"`
	Gift   int64 `json:"gift"`
	Rating int64 `json:"rating"`
	Total  int64 `json:"total"`
}
