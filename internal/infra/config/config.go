package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config aggregates application configuration values loaded from
// environment variables.
type Config struct {
	Env              string
	HTTPAddr         string
	StorageMode      string
	MongoURI         string
	MongoDB          string
	PresenceMode     string
	RedisURL         string
	PresenceTTL      time.Duration
	KafkaBrokers     []string
	NotifyTopic      string
	JWTSecret        string
	EditWindow       time.Duration
	HandshakeTimeout time.Duration
	UserFixtures     string
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:          getEnv("APP_ENV", "dev"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		StorageMode:  strings.ToLower(getEnv("STORAGE_MODE", "memory")),
		MongoURI:     os.Getenv("MONGO_URI"),
		MongoDB:      getEnv("MONGO_DB", "messenger"),
		PresenceMode: strings.ToLower(getEnv("PRESENCE_MODE", "memory")),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),
		NotifyTopic:  getEnv("NOTIFY_TOPIC", "chat.push.v1"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		UserFixtures: getEnv("USER_FIXTURES", ""),
	}
	brokers := getEnv("KAFKA_BROKERS", "")
	if brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	presenceTTL, err := parseDurationEnv("PRESENCE_TTL", 90*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.PresenceTTL = presenceTTL

	editWindow, err := parseDurationEnv("CHAT_EDIT_WINDOW", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg.EditWindow = editWindow

	handshake, err := parseDurationEnv("WS_HANDSHAKE_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.HandshakeTimeout = handshake

	switch cfg.StorageMode {
	case "memory":
	case "mongo":
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required when STORAGE_MODE=mongo")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORAGE_MODE: %q", cfg.StorageMode)
	}
	switch cfg.PresenceMode {
	case "memory", "redis":
	default:
		return Config{}, fmt.Errorf("invalid PRESENCE_MODE: %q", cfg.PresenceMode)
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}
