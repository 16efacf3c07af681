package services

import (
	"encoding/json"
	"log"
	"time"

	"pairly-chat-system/models"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// MaintenanceService runs the background sweeps: stale searches expire back
// to IDLE, old match-history rows and delivered outbox rows get pruned.
type MaintenanceService struct {
	DB    *gorm.DB
	Users *UserService
	Pool  *PoolService

	SearchTimeout time.Duration
	HistoryWindow time.Duration
}

func NewMaintenanceService(db *gorm.DB, users *UserService, pool *PoolService, searchTimeout, historyWindow time.Duration) *MaintenanceService {
	return &MaintenanceService{
		DB:            db,
		Users:         users,
		Pool:          pool,
		SearchTimeout: searchTimeout,
		HistoryWindow: historyWindow,
	}
}

// Start schedules the maintenance jobs.
func (s *MaintenanceService) Start() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(s.ExpireStaleSearches),
	)

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			s.PruneMatchHistory()
			s.PruneDeliveredNotifications()
		}),
	)
}

// ExpireStaleSearches returns users stuck SEARCHING past the timeout to IDLE
// and drops their pool entries, queueing a search-expired notification.
func (s *MaintenanceService) ExpireStaleSearches() {
	deadline := time.Now().Add(-s.SearchTimeout)

	var stale []models.User
	err := s.DB.Where("state = ? AND last_active < ?", models.StateSearching, deadline).
		Find(&stale).Error
	if err != nil {
		log.Printf("[Maintenance] stale search query failed: %v", err)
		return
	}

	for _, user := range stale {
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("user_id = ?", user.ID).Delete(&models.WaitingEntry{}).Error; err != nil {
				return err
			}
			ok, err := transitionState(tx, user.ID, models.StateSearching, models.StateIdle)
			if err != nil {
				return err
			}
			if !ok {
				// Matched or cancelled since the scan; nothing to expire.
				return nil
			}
			payload, _ := json.Marshal(map[string]interface{}{"reason": "timeout"})
			note := models.Notification{
				UserID:  user.ID,
				Kind:    models.NotifySearchExpired,
				Payload: string(payload),
			}
			return tx.Create(&note).Error
		})
		if err != nil {
			log.Printf("[Maintenance] failed to expire search for user %d: %v", user.ID, err)
		}
	}
}

// PruneMatchHistory deletes exclusion rows far past the cooldown window.
func (s *MaintenanceService) PruneMatchHistory() {
	cutoff := time.Now().Add(-4 * s.HistoryWindow)
	res := s.DB.Where("last_matched_at < ?", cutoff).Delete(&models.MatchHistory{})
	if res.Error != nil {
		log.Printf("[Maintenance] match history prune failed: %v", res.Error)
	} else if res.RowsAffected > 0 {
		log.Printf("[Maintenance] pruned %d match history rows", res.RowsAffected)
	}
}

// PruneDeliveredNotifications drops outbox rows delivered over a day ago.
func (s *MaintenanceService) PruneDeliveredNotifications() {
	cutoff := time.Now().Add(-24 * time.Hour)
	res := s.DB.Where("delivered_at IS NOT NULL AND delivered_at < ?", cutoff).
		Delete(&models.Notification{})
	if res.Error != nil {
		log.Printf("[Maintenance] outbox prune failed: %v", res.Error)
	}
}
