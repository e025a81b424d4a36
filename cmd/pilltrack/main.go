package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"

	"github.com/ylchen87/PillTrack/internal/api"
	"github.com/ylchen87/PillTrack/internal/config"
	"github.com/ylchen87/PillTrack/internal/database"
	"github.com/ylchen87/PillTrack/internal/notify"
	"github.com/ylchen87/PillTrack/internal/repository"
	"github.com/ylchen87/PillTrack/internal/scheduler"
	"github.com/ylchen87/PillTrack/internal/wakeup"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.DatabaseURI == "" {
		log.Fatal("DATABASE_URI is required")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.New(ctx, cfg.DatabaseURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	// Run migrations
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	// Create repositories
	reminderRepo := repository.NewReminderRepository(db.Pool)
	historyRepo := repository.NewHistoryRepository(db.Pool)

	// Pick the alert delivery channel (optional)
	var presenter notify.Presenter = notify.LogPresenter{}
	var telegram *notify.TelegramPresenter
	if cfg.TelegramToken != "" {
		telegram, err = notify.NewTelegramPresenter(cfg.TelegramToken)
		if err != nil {
			log.Fatalf("Failed to create Telegram presenter: %v", err)
		}
		presenter = telegram
		log.Println("Telegram alert delivery enabled")
	} else {
		log.Println("TELEGRAM_TOKEN not set, alerts will only be logged")
	}

	// Create the wake-up scheduler and coordinator
	wake := wakeup.New(clock.New())
	coordinator := scheduler.New(clock.New(), reminderRepo, historyRepo, wake, presenter)
	go coordinator.Run(ctx)

	// Recovery pass: in-process timers did not survive the restart
	if err := coordinator.OnRestart(ctx); err != nil {
		log.Printf("Recovery pass failed: %v", err)
	}

	// Drain Telegram action callbacks into the coordinator
	if telegram != nil {
		go telegram.Listen(ctx, coordinator.ProcessAction)
	}

	// Start the HTTP API
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewServer(coordinator),
	}

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		srv.Shutdown(context.Background())
	}()

	log.Printf("API listening on %s", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
