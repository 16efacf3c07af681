package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"pairly-chat-system/handlers"
	"pairly-chat-system/middleware"
	"pairly-chat-system/models"
	"pairly-chat-system/services"
	"pairly-chat-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	// The pairing and teardown protocols rely on transactions that must
	// serialize when they touch overlapping users; pin the isolation level
	// for every connection rather than per call site.
	db, err := gorm.Open(postgres.Open(withSerializableIsolation(dsn)), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
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
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	historyWindow := time.Duration(envInt("MATCH_HISTORY_WINDOW_SECONDS", 1800)) * time.Second
	searchTimeout := time.Duration(envInt("SEARCH_TIMEOUT_MINUTES", 10)) * time.Minute
	tempPremiumCost := int64(envInt("TEMP_PREMIUM_COST", 100))
	tempPremiumDays := envInt("TEMP_PREMIUM_DAYS", 3)
	tempPremiumCooldown := time.Duration(envInt("TEMP_PREMIUM_COOLDOWN_DAYS", 7)) * 24 * time.Hour
	maxPets := envInt("MAX_PETS", 3)

	userService := services.NewUserService(db)
	poolService := services.NewPoolService(db)
	ledgerService := services.NewLedgerService(db)
	ratingService := services.NewRatingService(db, ledgerService, userService)
	matchService := services.NewMatchService(db, userService, poolService, ratingService, historyWindow)
	streakService := services.NewStreakService(db, ledgerService, maxPets)
	gameService := services.NewGameService(db, ledgerService)
	premiumService := services.NewPremiumService(db, ledgerService, tempPremiumCost, tempPremiumDays, tempPremiumCooldown)
	maintenance := services.NewMaintenanceService(db, userService, poolService, searchTimeout, historyWindow)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifySink := workers.NewNotifySink(db)
	go workers.PollOutbox(ctx, notifySink, 2*time.Second)

	maintenance.Start()

	app := fiber.New(fiber.Config{})

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID, X-Service-Token",
	}))

	// Only the bot gateway talks to this service.
	app.Use(middleware.GatewayAuthMiddleware())

	handlers.SetupMatchRoutes(app, matchService, userService, streakService)
	handlers.SetupLedgerRoutes(app, ledgerService)
	handlers.SetupRatingRoutes(app, ratingService)
	handlers.SetupProfileRoutes(app, streakService, ratingService)
	handlers.SetupGameRoutes(app, gameService, matchService)
	handlers.SetupPremiumRoutes(app, premiumService)

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":5300"
	}

	go func() {
		if err := app.Listen(listenAddr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("Server running on %s", listenAddr)
	log.Println("Notification outbox worker running (every 2s)")
	log.Printf("Match history window: %s, search timeout: %s", historyWindow, searchTimeout)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

// withSerializableIsolation pins default_transaction_isolation=serializable
// into the DSN unless the operator already set one.
func withSerializableIsolation(dsn string) string {
	if strings.Contains(dsn, "default_transaction_isolation") {
		return dsn
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "options=-c%20default_transaction_isolation%3Dserializable"
	}
	return dsn + " default_transaction_isolation=serializable"
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("%s must be an integer, got %q", name, raw)
	}
	return value
}
