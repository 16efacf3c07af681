package models

import "time"

// Streak tracks consecutive-day activity per user. LastDay holds the UTC
// midnight of the last day the user searched.
type Streak struct {
	UserID    int64     `gorm:"primaryKey" json:"user_id"`
	Days      int       `gorm:"not null;default:0" json:"days"`
	LastDay   time.Time `gorm:"not null" json:"last_day"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Pet is a streak guardian. A missed day consumes one save from the oldest
// pet instead of resetting the streak.
type Pet struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         int64     `gorm:"not null;index" json:"user_id"`
	PetType        string    `gorm:"type:varchar(32);not null" json:"pet_type"`
	SavesRemaining int       `gorm:"not null;default:1" json:"saves_remaining"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}
