package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Server     ServerConfig
	Realtime   RealtimeConfig
	SelfHosted bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
	Migrate  bool
}

// RedisConfig holds Redis connection settings. An empty Addr disables the
// cross-instance relay.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// JWTConfig holds JWT authentication settings.
type JWTConfig struct {
	Secret    string //nolint:gosec // G117: JWT signing secret config
	AccessTTL time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// RealtimeConfig holds WebSocket connection and intent handling settings.
type RealtimeConfig struct {
	SendBuffer       int
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	MaxMessageBytes  int
	IntentsPerSecond float64
	IntentBurst      int
	IntentTimeout    time.Duration
	OriginPatterns   []string
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("PLANK_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("PLANK_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMigrate, err := getEnvBool("PLANK_DB_MIGRATE", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("PLANK_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	accessTTL, err := getEnvDuration("PLANK_JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("PLANK_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("PLANK_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	selfHosted, err := getEnvBool("PLANK_SELF_HOSTED", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	sendBuffer, err := getEnvInt("PLANK_WS_SEND_BUFFER", 256)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	pingInterval, err := getEnvDuration("PLANK_WS_PING_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	wsWriteTimeout, err := getEnvDuration("PLANK_WS_WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxMessageBytes, err := getEnvInt("PLANK_WS_MAX_MESSAGE_BYTES", 64*1024)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	intentsPerSecond, err := getEnvFloat("PLANK_WS_INTENTS_PER_SECOND", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	intentBurst, err := getEnvInt("PLANK_WS_INTENT_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	intentTimeout, err := getEnvDuration("PLANK_INTENT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("PLANK_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("PLANK_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("PLANK_DB_USER", "plank"),
			Password: getEnv("PLANK_DB_PASSWORD", ""),
			DBName:   getEnv("PLANK_DB_NAME", "plank_dev"),
			SSLMode:  getEnv("PLANK_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
			Migrate:  dbMigrate,
		},
		Redis: RedisConfig{
			Addr:     getEnv("PLANK_REDIS_ADDR", ""),
			Password: getEnv("PLANK_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:    getEnv("PLANK_JWT_SECRET", ""),
			AccessTTL: accessTTL,
		},
		Server: ServerConfig{
			Addr:         getEnv("PLANK_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Realtime: RealtimeConfig{
			SendBuffer:       sendBuffer,
			PingInterval:     pingInterval,
			WriteTimeout:     wsWriteTimeout,
			MaxMessageBytes:  maxMessageBytes,
			IntentsPerSecond: intentsPerSecond,
			IntentBurst:      intentBurst,
			IntentTimeout:    intentTimeout,
			OriginPatterns:   getEnvList("PLANK_WS_ORIGINS", nil),
		},
		SelfHosted: selfHosted,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("PLANK_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("PLANK_JWT_SECRET must be at least 32 characters")
	}

	// DB SSL mode warning for non-self-hosted deployments.
	if c.Database.SSLMode == "disable" && !c.SelfHosted {
		log.Warn().Msg("PLANK_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("PLANK_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	// Board locks hold one connection each while their queries need another.
	if c.Database.MaxConns < 2 {
		return fmt.Errorf("PLANK_DB_MAX_CONNS must be >= 2, got %d", c.Database.MaxConns)
	}
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("PLANK_JWT_ACCESS_TTL must be positive, got %s", c.JWT.AccessTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("PLANK_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("PLANK_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Realtime.SendBuffer < 1 {
		return fmt.Errorf("PLANK_WS_SEND_BUFFER must be >= 1, got %d", c.Realtime.SendBuffer)
	}
	if c.Realtime.PingInterval <= 0 {
		return fmt.Errorf("PLANK_WS_PING_INTERVAL must be positive, got %s", c.Realtime.PingInterval)
	}
	if c.Realtime.WriteTimeout <= 0 {
		return fmt.Errorf("PLANK_WS_WRITE_TIMEOUT must be positive, got %s", c.Realtime.WriteTimeout)
	}
	if c.Realtime.MaxMessageBytes < 512 {
		return fmt.Errorf("PLANK_WS_MAX_MESSAGE_BYTES must be >= 512, got %d", c.Realtime.MaxMessageBytes)
	}
	if c.Realtime.IntentsPerSecond <= 0 {
		return fmt.Errorf("PLANK_WS_INTENTS_PER_SECOND must be positive, got %g", c.Realtime.IntentsPerSecond)
	}
	if c.Realtime.IntentBurst < 1 {
		return fmt.Errorf("PLANK_WS_INTENT_BURST must be >= 1, got %d", c.Realtime.IntentBurst)
	}
	if c.Realtime.IntentTimeout <= 0 {
		return fmt.Errorf("PLANK_INTENT_TIMEOUT must be positive, got %s", c.Realtime.IntentTimeout)
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
