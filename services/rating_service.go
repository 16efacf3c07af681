package services

import (
	"errors"
	"fmt"

	"pairly-chat-system/models"

	"gorm.io/gorm"
)

var (
	ErrNoPendingRating = errors.New("no pending rating for this pair")
	ErrInvalidScore    = errors.New("score must be between 1 and 5")
)

// Sunflower rewards for a good rating (4 stars or better).
const (
	goodRatingMin    = 4
	raterRatingAward = 10
	ratedRatingAward = 20
)

// RatingService resolves the pending-rating obligations that teardown creates
// and maintains the rating snapshots the waiting pool consumes.
type RatingService struct {
	DB     *gorm.DB
	Ledger *LedgerService
	Users  *UserService
}

func NewRatingService(db *gorm.DB, ledger *LedgerService, users *UserService) *RatingService {
	return &RatingService{DB: db, Ledger: ledger, Users: users}
}

// Average returns the user's mean rating and sample count.
func (s *RatingService) Average(userID int64) (float64, int64, error) {
	type row struct {
		Avg   float64
		Count int64
	}
	var r row
	err := s.DB.Model(&models.Rating{}).
		Select("COALESCE(AVG(score), 0) AS avg, COUNT(*) AS count").
		Where("rated_id = ?", userID).
		Scan(&r).Error
	if err != nil {
		return 0, 0, fmt.Errorf("rating average: %w", err)
	}
	return r.Avg, r.Count, nil
}

// Pending lists the ratings the user still owes.
func (s *RatingService) Pending(raterID int64) ([]models.PendingRating, error) {
	var pending []models.PendingRating
	err := s.DB.Where("rater_id = ?", raterID).
		Order("id ASC").
		Find(&pending).Error
	return pending, err
}

// Submit records a rating against an outstanding obligation and pays out the
// sunflower rewards for good scores, all in one transaction. When the rater
// has no obligations left they drop back from RATING to IDLE.
func (s *RatingService) Submit(raterID, ratedID int64, score int) error {
	if score < 1 || score > 5 {
		return ErrInvalidScore
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("rater_id = ? AND rated_id = ?", raterID, ratedID).
			Delete(&models.PendingRating{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNoPendingRating
		}

		rating := models.Rating{RatedID: ratedID, RaterID: raterID, Score: score}
		if err := tx.Create(&rating).Error; err != nil {
			return err
		}

		if score >= goodRatingMin {
			ledger := s.Ledger.WithTx(tx)
			if err := ledger.Credit(raterID, models.SourceRating, raterRatingAward); err != nil {
				return err
			}
			if err := ledger.Credit(ratedID, models.SourceRating, ratedRatingAward); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	remaining, err := s.Pending(raterID)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		if _, err := s.Users.Transition(raterID, models.StateRating, models.StateIdle); err != nil {
			return err
		}
	}
	return nil
}
