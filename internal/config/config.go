package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// WebSocket configuration
	WebSocket WebSocketConfig

	// Attendance coordinator configuration
	Attendance AttendanceConfig

	// CORS configuration
	CORS CORSConfig

	// Logging configuration
	Logging LoggingConfig

	// Localization configuration
	I18n I18nConfig

	// Application metadata
	App AppConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
	MigrateOnStart  bool
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
	AuthRPS           float64 // Stricter limit for auth endpoints
	AuthBurst         int
	WriteRPS          float64 // Per-user limit for create/join/leave
	WriteBurst        int
	// TrustProxy takes the client address from X-Forwarded-For and friends.
	// Only enable behind a proxy that overwrites those headers.
	TrustProxy bool
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageSize  int64
	SendBuffer      int // per-connection outbound queue
	BroadcastBuffer int // hub inbound queue
}

// AttendanceConfig holds attendance coordinator configuration
type AttendanceConfig struct {
	OperationTimeout time.Duration
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// I18nConfig holds localization configuration
type I18nConfig struct {
	DefaultLocale string
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

// Load reads configuration from the environment, after loading a .env file
// when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            envString("SERVER_PORT", ":8080"),
			ReadTimeout:     env("SERVER_READ_TIMEOUT", 15*time.Second, time.ParseDuration),
			WriteTimeout:    env("SERVER_WRITE_TIMEOUT", 15*time.Second, time.ParseDuration),
			IdleTimeout:     env("SERVER_IDLE_TIMEOUT", 60*time.Second, time.ParseDuration),
			ShutdownTimeout: env("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second, time.ParseDuration),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    env("DB_MAX_OPEN_CONNS", 25, strconv.Atoi),
			MaxIdleConns:    env("DB_MAX_IDLE_CONNS", 5, strconv.Atoi),
			ConnMaxLifetime: env("DB_CONN_MAX_LIFETIME", 5*time.Minute, time.ParseDuration),
			ConnMaxIdleTime: env("DB_CONN_MAX_IDLE_TIME", 5*time.Minute, time.ParseDuration),
			MigrationsPath:  envString("MIGRATIONS_PATH", "migrations"),
			MigrateOnStart:  env("DB_MIGRATE_ON_START", true, strconv.ParseBool),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			AccessTokenTTL: env("JWT_ACCESS_TOKEN_TTL", time.Hour, time.ParseDuration),
		},
		RateLimit: RateLimitConfig{
			Enabled:           env("RATE_LIMIT_ENABLED", true, strconv.ParseBool),
			RequestsPerSecond: env("RATE_LIMIT_RPS", 10.0, parseFloat),
			BurstSize:         env("RATE_LIMIT_BURST", 20, strconv.Atoi),
			AuthRPS:           env("RATE_LIMIT_AUTH_RPS", 1.0, parseFloat),
			AuthBurst:         env("RATE_LIMIT_AUTH_BURST", 5, strconv.Atoi),
			WriteRPS:          env("RATE_LIMIT_WRITE_RPS", 2.0, parseFloat),
			WriteBurst:        env("RATE_LIMIT_WRITE_BURST", 10, strconv.Atoi),
			TrustProxy:        env("RATE_LIMIT_TRUST_PROXY", false, strconv.ParseBool),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins:  envList("WS_ALLOWED_ORIGINS", nil),
			ReadBufferSize:  env("WS_READ_BUFFER_SIZE", 1024, strconv.Atoi),
			WriteBufferSize: env("WS_WRITE_BUFFER_SIZE", 1024, strconv.Atoi),
			PingInterval:    env("WS_PING_INTERVAL", 54*time.Second, time.ParseDuration),
			PongWait:        env("WS_PONG_WAIT", 60*time.Second, time.ParseDuration),
			WriteWait:       env("WS_WRITE_WAIT", 10*time.Second, time.ParseDuration),
			MaxMessageSize:  env("WS_MAX_MESSAGE_SIZE", int64(1024), parseInt64),
			SendBuffer:      env("WS_SEND_BUFFER", 256, strconv.Atoi),
			BroadcastBuffer: env("WS_BROADCAST_BUFFER", 256, strconv.Atoi),
		},
		Attendance: AttendanceConfig{
			OperationTimeout: env("ATTENDANCE_OP_TIMEOUT", 5*time.Second, time.ParseDuration),
		},
		CORS: CORSConfig{
			AllowedOrigins: envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Logging: LoggingConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		I18n: I18nConfig{
			DefaultLocale: envString("DEFAULT_LOCALE", "en"),
		},
		App: AppConfig{
			Name:        envString("APP_NAME", "event-attendance"),
			Version:     envString("APP_VERSION", "dev"),
			Environment: envString("APP_ENV", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []string
	errs = append(errs, c.Database.validate()...)
	errs = append(errs, c.WebSocket.validate()...)

	if c.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}
	if c.Attendance.OperationTimeout <= 0 {
		errs = append(errs, "ATTENDANCE_OP_TIMEOUT must be positive")
	}
	if c.IsProduction() {
		errs = append(errs, c.productionChecks()...)
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

func (d DatabaseConfig) validate() []string {
	var errs []string
	if d.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		errs = append(errs, "DB_MAX_IDLE_CONNS cannot be greater than DB_MAX_OPEN_CONNS")
	}
	return errs
}

func (w WebSocketConfig) validate() []string {
	var errs []string
	if w.PingInterval >= w.PongWait {
		errs = append(errs, "WS_PING_INTERVAL must be shorter than WS_PONG_WAIT")
	}
	if w.SendBuffer <= 0 || w.BroadcastBuffer <= 0 {
		errs = append(errs, "WS_SEND_BUFFER and WS_BROADCAST_BUFFER must be positive")
	}
	return errs
}

func (c *Config) productionChecks() []string {
	var errs []string
	if len(c.JWT.Secret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
	}
	if len(c.WebSocket.AllowedOrigins) == 0 {
		errs = append(errs, "WS_ALLOWED_ORIGINS must be set in production")
	}
	if slices.Contains(c.CORS.AllowedOrigins, "*") {
		errs = append(errs, "CORS_ALLOWED_ORIGINS must not contain * in production")
	}
	return errs
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// env parses key with parse, falling back to def when the variable is unset
// or does not parse.
func env[T any](key string, def T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		log.Printf("ignoring invalid %s=%q: %v", key, raw, err)
		return def
	}
	return v
}

func envString(key, def string) string {
	return env(key, def, func(s string) (string, error) { return s, nil })
}

// envList reads a comma-separated list, dropping empty items.
func envList(key string, def []string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: %s, DB: %s, JWT: [REDACTED], RateLimit: %v, OpTimeout: %s, Environment: %s}",
		c.Server.Port,
		redactURL(c.Database.URL),
		c.RateLimit.Enabled,
		c.Attendance.OperationTimeout,
		c.App.Environment,
	)
}

// redactURL hides the password and query of a database URL. Keyword/value
// DSNs are hidden entirely.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[REDACTED]"
	}
	u.RawQuery = ""
	return u.Redacted()
}
