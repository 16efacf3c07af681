package models

import "time"

// Rating is one submitted partner rating (1..5 stars).
type Rating struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RatedID   int64     `gorm:"not null;index" json:"rated_id"`
	RaterID   int64     `gorm:"not null;index" json:"rater_id"`
	Score     int       `gorm:"not null" json:"score"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// PendingRating is a rating obligation created by session teardown, one per
// direction of the pair. Deleted when the rating is submitted.
type PendingRating struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RaterID   int64     `gorm:"not null;uniqueIndex:idx_pending_pair" json:"rater_id"`
	RatedID   int64     `gorm:"not null;uniqueIndex:idx_pending_pair" json:"rated_id"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
