package models

import "time"

// Notification kinds delivered to the sink.
const (
	NotifyMatchFound    = "match_found"
	NotifyPartnerLeft   = "partner_left"
	NotifySearchExpired = "search_expired"
)

// Notification is a transactional-outbox row. Protocol transactions insert
// these alongside their state changes; the notify worker drains undelivered
// rows to the sink. Delivery is at-least-once.
type Notification struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      int64      `gorm:"not null;index" json:"user_id"`
	Kind        string     `gorm:"type:varchar(32);not null" json:"kind"`
	Payload     string     `gorm:"type:text" json:"payload"` // JSON blob for the sink
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	DeliveredAt *time.Time `gorm:"index" json:"delivered_at,omitempty"`
}
