// Package config reads the server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/services/tetris"
)

// Config holds every setting the API server needs.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	JWTSecret          string
	TokenTTL           time.Duration
	RedisAddr          string // 空ならトークン失効リストはプロセス内で保持する
	RedisDB            int
	CORSAllowedOrigins []string
	LogLevel           string
	LogFormat          string // "text" or "json"

	BaseFallInterval time.Duration
	LevelUpInterval  time.Duration
	TimeAttackLimit  time.Duration
	TimeAttackTarget int
}

// Load reads the configuration. Outside production a .env file is loaded first if present.
func Load() (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		// .env が無くてもエラーにはしない
		_ = godotenv.Load()
	}

	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.TokenTTL, err = getEnvDuration("TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.BaseFallInterval, err = getEnvDuration("BASE_FALL_INTERVAL", tetris.DefaultBaseFallInterval); err != nil {
		return nil, err
	}
	if cfg.LevelUpInterval, err = getEnvDuration("LEVEL_UP_INTERVAL", tetris.DefaultLevelUpInterval); err != nil {
		return nil, err
	}
	if cfg.TimeAttackLimit, err = getEnvDuration("TIME_ATTACK_LIMIT", tetris.DefaultTimeAttackLimit); err != nil {
		return nil, err
	}
	if cfg.TimeAttackTarget, err = getEnvInt("TIME_ATTACK_TARGET", tetris.DefaultTimeAttackTarget); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings required to serve traffic.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	return nil
}

// SessionConfig converts the game settings for the session manager.
func (c *Config) SessionConfig() tetris.SessionConfig {
	sc := tetris.DefaultSessionConfig()
	sc.BaseFallInterval = c.BaseFallInterval
	sc.LevelUpInterval = c.LevelUpInterval
	sc.TimeAttackLimit = c.TimeAttackLimit
	sc.TimeAttackTarget = c.TimeAttackTarget
	return sc
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	logger.SetLevel(level)

	switch c.LogFormat {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", c.LogFormat)
	}
	return logger, nil
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
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
