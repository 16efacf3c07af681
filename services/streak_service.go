package services

import (
	"errors"
	"fmt"
	"time"

	"pairly-chat-system/models"

	"gorm.io/gorm"
)

// Streak sunflowers per consecutive day, capped after a week.
const (
	streakAwardPerDay = 5
	streakAwardCapDay = 7
)

// StreakService tracks consecutive-day activity. Pets absorb a missed day;
// otherwise the streak resets and the streak-earned sunflowers are wiped.
type StreakService struct {
	DB      *gorm.DB
	Ledger  *LedgerService
	MaxPets int
}

func NewStreakService(db *gorm.DB, ledger *LedgerService, maxPets int) *StreakService {
	return &StreakService{DB: db, Ledger: ledger, MaxPets: maxPets}
}

func dayOf(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// Touch registers activity for today and returns the streak length. Same-day
// calls are no-ops; a new consecutive day earns streak sunflowers.
func (s *StreakService) Touch(userID int64) (int, error) {
	today := dayOf(time.Now())
	var days int

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var streak models.Streak
		err := tx.Where("user_id = ?", userID).First(&streak).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			streak = models.Streak{UserID: userID, Days: 1, LastDay: today}
			days = 1
			return tx.Create(&streak).Error
		}
		if err != nil {
			return err
		}

		last := dayOf(streak.LastDay)
		switch {
		case last.Equal(today):
			days = streak.Days
			return nil

		case last.Equal(today.AddDate(0, 0, -1)):
			streak.Days++
			award := streak.Days
			if award > streakAwardCapDay {
				award = streakAwardCapDay
			}
			err := s.Ledger.WithTx(tx).Credit(userID, models.SourceStreak, int64(award*streakAwardPerDay))
			if err != nil {
				return err
			}

		default:
			saved, err := s.usePet(tx, userID)
			if err != nil {
				return err
			}
			if !saved {
				streak.Days = 1
				if err := s.Ledger.WithTx(tx).ResetSource(userID, models.SourceStreak); err != nil {
					return err
				}
			}
			// A pet save keeps the counter; the gap days simply don't count.
		}

		streak.LastDay = today
		days = streak.Days
		return tx.Save(&streak).Error
	})
	if err != nil {
		return 0, fmt.Errorf("touch streak: %w", err)
	}
	return days, nil
}

// Days returns the current streak length without touching it.
func (s *StreakService) Days(userID int64) (int, error) {
	var streak models.Streak
	err := s.DB.Where("user_id = ?", userID).First(&streak).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return streak.Days, nil
}

// AddPet gives the user a streak guardian. Returns false at the pet cap.
func (s *StreakService) AddPet(userID int64, petType string, saves int) (bool, error) {
	if saves < 1 {
		saves = 1
	}
	added := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Pet{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(s.MaxPets) {
			return nil
		}
		pet := models.Pet{UserID: userID, PetType: petType, SavesRemaining: saves}
		if err := tx.Create(&pet).Error; err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

// Pets lists the user's pets, oldest first.
func (s *StreakService) Pets(userID int64) ([]models.Pet, error) {
	var pets []models.Pet
	err := s.DB.Where("user_id = ?", userID).Order("id ASC").Find(&pets).Error
	return pets, err
}

// usePet consumes one save from the oldest pet, deleting it on its last save.
func (s *StreakService) usePet(tx *gorm.DB, userID int64) (bool, error) {
	var pet models.Pet
	err := tx.Where("user_id = ?", userID).Order("id ASC").First(&pet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if pet.SavesRemaining > 1 {
		err = tx.Model(&pet).Update("saves_remaining", gorm.Expr("saves_remaining - 1")).Error
	} else {
		err = tx.Delete(&pet).Error
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
