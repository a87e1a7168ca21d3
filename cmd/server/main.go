package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/fuomag9/camera-sentinel/internal/api"
	"github.com/fuomag9/camera-sentinel/internal/config"
	"github.com/fuomag9/camera-sentinel/internal/database"
	"github.com/fuomag9/camera-sentinel/internal/logging"
	"github.com/fuomag9/camera-sentinel/internal/monitor"
	"github.com/fuomag9/camera-sentinel/internal/notification"
	"github.com/fuomag9/camera-sentinel/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New(config.LogConfig{})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := logging.New(cfg.Log)
	if cfg.TightStaleMargin() {
		logger.Warn().
			Dur("sweep_interval", cfg.Monitor.SweepInterval).
			Dur("stale_threshold", cfg.Monitor.StaleThreshold).
			Msg("Stale threshold leaves little margin over the sweep interval, expect false offline alerts")
	}

	// Initialize database
	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get database connection")
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(db, cfg.Database.Type); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub(cfg.JWTSecret, cfg.CORSOrigins, logger)

	// Initialize notification dispatcher with the configured channels
	var channels []notification.Channel
	if cfg.SMS.Enabled() {
		channels = append(channels, notification.NewSMSChannel(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.From, cfg.SMS.BaseURL))
	} else {
		logger.Warn().Msg("Twilio credentials not configured, SMS notifications disabled")
	}
	if cfg.Email.Enabled() {
		channels = append(channels, notification.NewEmailChannel(cfg.Email.Host, cfg.Email.Port, cfg.Email.Username, cfg.Email.Password, cfg.Email.From))
	} else {
		logger.Warn().Msg("SMTP credentials not configured, email notifications disabled")
	}
	dispatcher := notification.NewDispatcher(cfg.Monitor.NotifyTimeout, logger, channels...)
	logger.Info().Strs("channels", dispatcher.Channels()).Msg("Notification dispatcher ready")

	// Initialize monitoring
	engine := monitor.NewEngine(db, hub, cfg.Monitor.ResolvedAlertsLimit, logger)
	sweeper := monitor.NewSweeper(db, hub, dispatcher, notification.NewContactStore(db),
		cfg.Monitor.SweepInterval, cfg.Monitor.StaleThreshold, logger)
	sweeper.Start()

	ctx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	limiter := api.NewRateLimiter(rate.Limit(cfg.Monitor.HeartbeatRateLimit), cfg.Monitor.HeartbeatRateBurst)
	limiter.CleanupOldLimiters(ctx, 10*time.Minute, time.Hour)

	router := api.NewRouter(cfg, engine, limiter, hub.HandleWebSocket, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Port).Str("environment", cfg.Environment).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	sweeper.Stop()
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}
