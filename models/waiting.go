package models

import "time"

// WaitingEntry is one user's row in the waiting pool. At most one entry per
// user exists; a re-join replaces the old entry rather than duplicating it.
type WaitingEntry struct {
	UserID      int64     `gorm:"primaryKey" json:"user_id"`
	Gender      string    `gorm:"type:varchar(10);not null" json:"gender"`
	Premium     bool      `gorm:"not null;default:false;index" json:"premium"`
	RatingAvg   *float64  `json:"rating_avg,omitempty"`
	RatingCount int64     `gorm:"default:0" json:"rating_count"`
	GenderPref  *string   `gorm:"type:varchar(10)" json:"gender_pref,omitempty"`
	JoinedAt    time.Time `gorm:"not null;index" json:"joined_at"`
}

func (WaitingEntry) TableName() string {
	return "waiting_pool"
}
