package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"pairly-chat-system/models"

	"gorm.io/gorm"
)

var (
	ErrUserExists    = errors.New("user already registered")
	ErrUserNotFound  = errors.New("user not registered")
	ErrInvalidGender = errors.New("invalid gender")
)

// UserService owns the per-user session state machine. All state changes from
// normal flows go through Transition; ForceSetState is reserved for recovery.
type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// Register creates a user in NEW state.
func (s *UserService) Register(userID int64, gender string) error {
	if gender != models.GenderMale && gender != models.GenderFemale {
		return ErrInvalidGender
	}

	user := models.User{
		ID:         userID,
		Gender:     gender,
		State:      models.StateNew,
		LastActive: time.Now(),
	}
	if err := s.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserExists
		}
		// Postgres unique violations don't always map to gorm.ErrDuplicatedKey;
		// a second existence check keeps registration idempotent-safe.
		var existing models.User
		if lookupErr := s.DB.First(&existing, "id = ?", userID).Error; lookupErr == nil {
			return ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Onboard walks a NEW user through the transient onboarding states into IDLE.
func (s *UserService) Onboard(userID int64) error {
	if ok, err := s.Transition(userID, models.StateNew, models.StateAgreed); err != nil {
		return err
	} else if !ok {
		return errors.New("user is not in NEW state")
	}
	if _, err := s.Transition(userID, models.StateAgreed, models.StateIdle); err != nil {
		return err
	}
	return nil
}

// Get returns the full user record.
func (s *UserService) Get(userID int64) (*models.User, error) {
	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// State is a non-blocking point read of the user's current state. Callers
// must not act on it without re-validating through a conditional Transition.
func (s *UserService) State(userID int64) (string, error) {
	user, err := s.Get(userID)
	if err != nil {
		return "", err
	}
	return user.State, nil
}

// Partner returns the user's current partner, or nil outside an open session.
func (s *UserService) Partner(userID int64) (*int64, error) {
	user, err := s.Get(userID)
	if err != nil {
		return nil, err
	}
	return user.PartnerID, nil
}

// Transition applies from → to only if the stored state still equals from,
// refreshing last_active in the same update. A false return is not an error:
// it means the precondition no longer holds and the caller must re-read.
func (s *UserService) Transition(userID int64, from, to string) (bool, error) {
	return transitionState(s.DB, userID, from, to)
}

func transitionState(db *gorm.DB, userID int64, from, to string) (bool, error) {
	res := db.Model(&models.User{}).
		Where("id = ? AND state = ?", userID, from).
		Updates(map[string]interface{}{
			"state":       to,
			"last_active": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("transition %s → %s: %w", from, to, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// TouchActivity refreshes last_active without changing state, so repeated
// actions in an unchanged state still count against the staleness sweeps.
func (s *UserService) TouchActivity(userID int64) error {
	return s.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_active", time.Now()).Error
}

// ForceSetState overrides the state unconditionally. Recovery paths only;
// every use is logged so misuse shows up in the audit trail.
func (s *UserService) ForceSetState(userID int64, to string) error {
	log.Printf("[FSM] force-setting user %d state to %s", userID, to)
	return s.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"state":       to,
			"last_active": time.Now(),
		}).Error
}
