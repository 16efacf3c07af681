package services

import (
	"errors"
	"fmt"
	"time"

	"pairly-chat-system/models"

	"gorm.io/gorm"
)

var (
	ErrUnknownPlan         = errors.New("unknown premium plan")
	ErrTempPremiumCooldown = errors.New("temp premium still on cooldown")
)

// Plan is one purchasable premium duration. Prices are in Telegram Stars and
// charged by the gateway; this service only applies grants.
type Plan struct {
	Days      int   `json:"days"`
	BonusDays int   `json:"bonus_days"`
	Price     int64 `json:"price"`
}

// Plans are keyed by advertised duration. Long plans carry two bonus weeks.
var Plans = map[int]Plan{
	7:   {Days: 7, Price: 250},
	30:  {Days: 30, Price: 750},
	90:  {Days: 90, BonusDays: 14, Price: 1800},
	365: {Days: 365, BonusDays: 14, Price: 5400},
}

// PremiumService manages premium grants and the sunflower-funded temporary
// premium with its cooldown.
type PremiumService struct {
	DB     *gorm.DB
	Ledger *LedgerService

	TempCost     int64
	TempDays     int
	TempCooldown time.Duration
}

func NewPremiumService(db *gorm.DB, ledger *LedgerService, tempCost int64, tempDays int, tempCooldown time.Duration) *PremiumService {
	return &PremiumService{
		DB:           db,
		Ledger:       ledger,
		TempCost:     tempCost,
		TempDays:     tempDays,
		TempCooldown: tempCooldown,
	}
}

// Status reports whether premium is active and how many full days remain.
func (s *PremiumService) Status(userID int64) (bool, int, error) {
	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, 0, ErrUserNotFound
		}
		return false, 0, err
	}
	now := time.Now()
	if !user.PremiumActive(now) {
		return false, 0, nil
	}
	return true, int(user.PremiumUntil.Sub(now).Hours() / 24), nil
}

// Activate applies a paid plan: the advertised days plus any bonus, extending
// from the current expiry when one is still in the future.
func (s *PremiumService) Activate(userID int64, planDays int) (time.Time, error) {
	plan, ok := Plans[planDays]
	if !ok {
		return time.Time{}, ErrUnknownPlan
	}
	return s.extend(s.DB, userID, plan.Days+plan.BonusDays)
}

func (s *PremiumService) extend(db *gorm.DB, userID int64, days int) (time.Time, error) {
	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, ErrUserNotFound
		}
		return time.Time{}, err
	}

	now := time.Now()
	base := now
	if user.PremiumActive(now) {
		base = *user.PremiumUntil
	}
	until := base.AddDate(0, 0, days)

	err := db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("premium_until", until).Error
	if err != nil {
		return time.Time{}, fmt.Errorf("extend premium: %w", err)
	}
	return until, nil
}

// BuyTempPremium charges the temp-premium cost through a smart debit and
// grants the short premium window, enforcing the per-user cooldown. Charge,
// cooldown stamp and grant commit together or not at all.
func (s *PremiumService) BuyTempPremium(userID int64) (time.Time, error) {
	var until time.Time
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		now := time.Now()
		if user.TempPremiumLastUsed != nil && now.Sub(*user.TempPremiumLastUsed) < s.TempCooldown {
			return ErrTempPremiumCooldown
		}

		if err := s.Ledger.WithTx(tx).smartDebitLocked(userID, s.TempCost); err != nil {
			return err
		}

		err := tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("temp_premium_last_used", now).Error
		if err != nil {
			return err
		}

		until, err = s.extend(tx, userID, s.TempDays)
		return err
	})
	if err != nil {
		return time.Time{}, err
	}
	return until, nil
}
