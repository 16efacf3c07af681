package services

import (
	"fmt"
	"time"

	"pairly-chat-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PoolService manages the shared waiting pool. It holds eligibility metadata
// only; pairing decisions belong to MatchService.
type PoolService struct {
	DB *gorm.DB
}

func NewPoolService(db *gorm.DB) *PoolService {
	return &PoolService{DB: db}
}

// Join upserts the user's pool entry. A re-join replaces the previous entry,
// so at most one row per user ever exists.
func (s *PoolService) Join(entry models.WaitingEntry) error {
	if entry.JoinedAt.IsZero() {
		entry.JoinedAt = time.Now()
	}
	err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("join waiting pool: %w", err)
	}
	return nil
}

// Leave removes the user's pool entry, reporting whether one existed. Safe to
// race against pairing: if pairing already removed the row this is a no-op.
func (s *PoolService) Leave(userID int64) (bool, error) {
	res := s.DB.Where("user_id = ?", userID).Delete(&models.WaitingEntry{})
	if res.Error != nil {
		return false, fmt.Errorf("leave waiting pool: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Contains reports whether the user currently has a pool entry.
func (s *PoolService) Contains(userID int64) (bool, error) {
	var count int64
	err := s.DB.Model(&models.WaitingEntry{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count > 0, err
}

// Candidates returns every pool entry except the requester and anyone the
// requester matched with after cutoff. The match-history exclusion only needs
// the requester's outgoing rows because pairing writes both directions.
func (s *PoolService) Candidates(userID int64, cutoff time.Time) ([]models.WaitingEntry, error) {
	recent := s.DB.Model(&models.MatchHistory{}).
		Select("partner_id").
		Where("user_id = ? AND last_matched_at > ?", userID, cutoff)

	var entries []models.WaitingEntry
	err := s.DB.
		Where("user_id <> ?", userID).
		Where("user_id NOT IN (?)", recent).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	return entries, nil
}
