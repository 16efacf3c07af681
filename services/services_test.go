package services

import (
	"testing"
	"time"

	"pairly-chat-system/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// A single connection keeps the in-memory database shared across the
	// pool and serializes transactions the way the production store does.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.WaitingEntry{},
		&models.ChatSession{},
		&models.MatchHistory{},
		&models.LedgerEntry{},
		&models.ActiveGame{},
		&models.Rating{},
		&models.PendingRating{},
		&models.Streak{},
		&models.Pet{},
		&models.Notification{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// env bundles the full service graph over one test database.
type env struct {
	db      *gorm.DB
	users   *UserService
	pool    *PoolService
	ledger  *LedgerService
	ratings *RatingService
	match   *MatchService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := openTestDB(t)
	users := NewUserService(db)
	pool := NewPoolService(db)
	ledger := NewLedgerService(db)
	ratings := NewRatingService(db, ledger, users)
	match := NewMatchService(db, users, pool, ratings, 30*time.Minute)
	return &env{db: db, users: users, pool: pool, ledger: ledger, ratings: ratings, match: match}
}

// addUser registers and onboards a user straight to IDLE.
func (e *env) addUser(t *testing.T, id int64, gender string) {
	t.Helper()
	if err := e.users.Register(id, gender); err != nil {
		t.Fatalf("register user %d: %v", id, err)
	}
	if err := e.users.Onboard(id); err != nil {
		t.Fatalf("onboard user %d: %v", id, err)
	}
}

func (e *env) mustState(t *testing.T, id int64, want string) {
	t.Helper()
	state, err := e.users.State(id)
	if err != nil {
		t.Fatalf("state of %d: %v", id, err)
	}
	if state != want {
		t.Fatalf("user %d state = %q, want %q", id, state, want)
	}
}

func (e *env) poolCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := e.db.Model(&models.WaitingEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count pool: %v", err)
	}
	return count
}

func (e *env) sessionCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := e.db.Model(&models.ChatSession{}).Count(&count).Error; err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	return count
}

func strPtr(s string) *string { return &s }
