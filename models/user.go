package models

import (
	"time"
)

// Session states. A user moves NEW → AGREED → IDLE once at onboarding,
// then cycles IDLE → SEARCHING → CHATTING → RATING → IDLE.
const (
	StateNew       = "NEW"
	StateAgreed    = "AGREED"
	StateIdle      = "IDLE"
	StateSearching = "SEARCHING"
	StateChatting  = "CHATTING"
	StateRating    = "RATING"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// User is the per-user session record. PartnerID is set only while the user
// is in an open chat session (CHATTING, or RATING mid-teardown).
type User struct {
	ID     int64  `gorm:"primaryKey" json:"id"` // gateway's numeric user ID
	Gender string `gorm:"type:varchar(10);not null" json:"gender"`
	State  string `gorm:"type:varchar(16);not null;index" json:"state"`

	PartnerID *int64 `gorm:"index" json:"partner_id,omitempty"`

	PremiumUntil        *time.Time `json:"premium_until,omitempty"`
	TempPremiumLastUsed *time.Time `json:"temp_premium_last_used,omitempty"`

	LastActive time.Time `gorm:"not null" json:"last_active"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// PremiumActive reports whether the user's premium has not yet expired.
func (u *User) PremiumActive(now time.Time) bool {
	return u.PremiumUntil != nil && u.PremiumUntil.After(now)
}
