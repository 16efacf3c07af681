package models

import "time"

// ChatSession is one active anonymous chat between two users. Exactly one
// open session may exist per unordered pair; rows are deleted on teardown.
type ChatSession struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserA     int64     `gorm:"not null;index" json:"user_a"`
	UserB     int64     `gorm:"not null;index" json:"user_b"`
	StartedAt time.Time `gorm:"not null" json:"started_at"`
}

func (ChatSession) TableName() string {
	return "sessions"
}

// MatchHistory records when a directed pair last matched. Both directions are
// written on every match, so exclusion lookups only need the outgoing rows.
type MatchHistory struct {
	UserID        int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	PartnerID     int64     `gorm:"primaryKey;autoIncrement:false" json:"partner_id"`
	LastMatchedAt time.Time `gorm:"not null;index" json:"last_matched_at"`
}

func (MatchHistory) TableName() string {
	return "match_history"
}
