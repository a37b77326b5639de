package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all server configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Redis       RedisConfig
	Pins        PinsConfig
	Overlay     OverlayConfig
	Seed        SeedConfig
	Log         LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
}

// NATSConfig holds NATS configuration. An empty URL disables the bus.
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// RedisConfig holds the token cache configuration. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// PinsConfig holds pin service configuration
type PinsConfig struct {
	EventsTopic      string
	MaxCommentLength int
}

// OverlayConfig holds server-side overlay limits
type OverlayConfig struct {
	DefaultRadius float64
	MaxCells      int
}

// SeedConfig selects the seed file loaded into empty tables
type SeedConfig struct {
	File    string
	IfEmpty bool
}

// LogConfig selects log level and format
type LogConfig struct {
	Level  string
	Format string
}

// ClientConfig holds configuration for the command-line client
type ClientConfig struct {
	ServerURL      string
	SessionFile    string
	RequestTimeout time.Duration
	AutosaveDelay  time.Duration
	South          float64
	North          float64
	West           float64
	East           float64
	Radius         float64
	Log            LogConfig
}

// loadDotEnv reads .env when present; real environment variables win
func loadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error loading .env: %w", err)
	}
	return nil
}

// Load loads server configuration from the environment
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "pinmap"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		},
		NATS: NATSConfig{
			URL:            os.Getenv("NATS_URL"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_TOKEN_PREFIX", "pinmap:token:"),
			TTL:      getEnvAsDuration("REDIS_TOKEN_TTL", 10*time.Minute),
		},
		Pins: PinsConfig{
			EventsTopic:      getEnv("PINS_EVENTS_TOPIC", "pins"),
			MaxCommentLength: getEnvAsInt("PINS_MAX_COMMENT_LENGTH", 300),
		},
		Overlay: OverlayConfig{
			DefaultRadius: getEnvAsFloat("OVERLAY_DEFAULT_RADIUS", 56),
			MaxCells:      getEnvAsInt("OVERLAY_MAX_CELLS", 20000),
		},
		Seed: SeedConfig{
			File:    os.Getenv("SEED_FILE"),
			IfEmpty: getEnvAsBool("SEED_IF_EMPTY", true),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	return config, validate(config)
}

// LoadClient loads the command-line client configuration
func LoadClient() (ClientConfig, error) {
	if err := loadDotEnv(); err != nil {
		return ClientConfig{}, err
	}

	config := ClientConfig{
		ServerURL:      getEnv("PINMAP_SERVER_URL", "http://localhost:8080"),
		SessionFile:    getEnv("PINMAP_SESSION_FILE", defaultSessionFile()),
		RequestTimeout: getEnvAsDuration("PINMAP_REQUEST_TIMEOUT", 10*time.Second),
		AutosaveDelay:  getEnvAsDuration("PINMAP_AUTOSAVE_DELAY", 350*time.Millisecond),
		South:          getEnvAsFloat("PINMAP_BOUNDS_SOUTH", 48.928),
		North:          getEnvAsFloat("PINMAP_BOUNDS_NORTH", 48.956),
		West:           getEnvAsFloat("PINMAP_BOUNDS_WEST", 16.713),
		East:           getEnvAsFloat("PINMAP_BOUNDS_EAST", 16.758),
		Radius:         getEnvAsFloat("PINMAP_HEX_RADIUS", 56),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "warn"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	return config, validateClient(config)
}

// DSN returns the postgres connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// validate checks if config is valid
func validate(config Config) error {
	switch config.Database.Driver {
	case DriverPostgres:
		if config.Database.Host == "" {
			return fmt.Errorf("database host must be set")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", config.Database.Driver)
	}

	if config.Overlay.DefaultRadius <= 0 {
		return fmt.Errorf("overlay radius must be positive")
	}
	if config.Pins.MaxCommentLength <= 0 {
		return fmt.Errorf("comment length limit must be positive")
	}

	return nil
}

func validateClient(config ClientConfig) error {
	if config.ServerURL == "" {
		return fmt.Errorf("server URL must be set")
	}
	if config.Radius <= 0 {
		return fmt.Errorf("hex radius must be positive")
	}
	if config.South >= config.North || config.West > config.East {
		return fmt.Errorf("overlay bounds are empty")
	}

	return nil
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".pinmap-session.json"
	}
	return filepath.Join(dir, "pinmap", "session.json")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
