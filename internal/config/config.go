package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port        int
	Environment string
	CORSOrigins []string
	JWTSecret   string // empty disables operator authentication
	Database    DatabaseConfig
	Monitor     MonitorConfig
	Log         LogConfig
	SMS         SMSConfig
	Email       EmailConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type         string // postgres, sqlite
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// MonitorConfig holds liveness and alerting parameters
type MonitorConfig struct {
	SweepInterval       time.Duration
	StaleThreshold      time.Duration
	NotifyTimeout       time.Duration
	ResolvedAlertsLimit int
	HeartbeatRateLimit  float64 // requests per second per client
	HeartbeatRateBurst  int
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string // json, console
}

// SMSConfig holds Twilio credentials
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
}

// Enabled reports whether SMS credentials are present
func (c SMSConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != ""
}

// EmailConfig holds SMTP settings
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether SMTP credentials are present
func (c EmailConfig) Enabled() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// Load loads configuration from the environment. A .env file in the
// working directory is read first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	env := getEnv("ENVIRONMENT", "production")

	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		Environment: env,
		CORSOrigins: loadCORSOrigins(),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		Database: DatabaseConfig{
			Type:         getEnv("DATABASE_TYPE", "postgres"),
			DSN:          getEnv("DATABASE_DSN", buildPostgresDSN()),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		Monitor: MonitorConfig{
			SweepInterval:       getEnvDuration("SWEEP_INTERVAL", 30*time.Second),
			StaleThreshold:      getEnvDuration("STALE_THRESHOLD", 40*time.Second),
			NotifyTimeout:       getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
			ResolvedAlertsLimit: getEnvInt("RESOLVED_ALERTS_LIMIT", 10),
			HeartbeatRateLimit:  getEnvFloat("HEARTBEAT_RATE_LIMIT", 5),
			HeartbeatRateBurst:  getEnvInt("HEARTBEAT_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		SMS: SMSConfig{
			AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			From:       os.Getenv("TWILIO_PHONE_NUMBER"),
			BaseURL:    getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
		},
		Email: EmailConfig{
			Host:     os.Getenv("EMAIL_HOST"),
			Port:     getEnvInt("EMAIL_PORT", 587),
			Username: os.Getenv("EMAIL_USER"),
			Password: os.Getenv("EMAIL_PASS"),
			From:     getEnv("EMAIL_FROM", os.Getenv("EMAIL_USER")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func buildPostgresDSN() string {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "sentinel")
	password := getEnv("POSTGRES_PASSWORD", "secret")
	dbName := getEnv("POSTGRES_DB", "sentinel")
	sslMode := getEnv("POSTGRES_SSLMODE", "disable")

	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(user, password),
		Host:   fmt.Sprintf("%s:%s", host, port),
		Path:   dbName,
	}

	query := u.Query()
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()

	return u.String()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	m := c.Monitor
	if m.SweepInterval <= 0 || m.StaleThreshold <= 0 || m.NotifyTimeout <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL, STALE_THRESHOLD and NOTIFY_TIMEOUT must be positive")
	}
	if m.StaleThreshold <= m.SweepInterval {
		return fmt.Errorf("STALE_THRESHOLD (%s) must exceed SWEEP_INTERVAL (%s)", m.StaleThreshold, m.SweepInterval)
	}
	if m.ResolvedAlertsLimit <= 0 {
		return fmt.Errorf("RESOLVED_ALERTS_LIMIT must be positive")
	}
	if m.HeartbeatRateLimit <= 0 || m.HeartbeatRateBurst <= 0 {
		return fmt.Errorf("HEARTBEAT_RATE_LIMIT and HEARTBEAT_RATE_BURST must be positive")
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters long")
	}

	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be configured")
	}

	return nil
}

// TightStaleMargin reports whether the stale threshold leaves less than
// half a sweep interval of slack for scheduling jitter and late heartbeats.
func (c *Config) TightStaleMargin() bool {
	return c.Monitor.StaleThreshold*2 < c.Monitor.SweepInterval*3
}

func loadCORSOrigins() []string {
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		return splitAndTrim(origins, ",")
	}
	if appURL := strings.TrimRight(os.Getenv("APP_URL"), "/"); appURL != "" {
		return []string{appURL}
	}
	return []string{"http://localhost:3000", "http://localhost:8080"}
}

func splitAndTrim(s, sep string) []string {
	parts := []string{}
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("45s") or plain seconds ("45")
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
