package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultRequestTimeout  = 30 * time.Second
	defaultUpstreamTimeout = 30 * time.Second
	defaultChatPageSize    = 15
	defaultTypingTTL       = 3 * time.Second
	defaultPricingFile     = "pricing.yaml"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Realtime RealtimeConfig
	Redis    RedisConfig
	Chat     ChatConfig
	Pricing  PricingConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// UpstreamConfig points the gateway at the marketplace REST API.
type UpstreamConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RealtimeConfig points the gateway at the push channel endpoint.
type RealtimeConfig struct {
	URL string
}

// RedisConfig configures the optional redis-backed session store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ChatConfig tunes the chat controller.
type ChatConfig struct {
	PageSize  int
	TypingTTL time.Duration
}

// PricingConfig locates the static pricing table.
type PricingConfig struct {
	TableFile string
}

// Load reads configuration from the environment. A local .env file, when
// present, is merged in first without overriding variables already set.
func Load() (Config, error) {
	if _, err := os.Stat(defaultEnvFile); err == nil {
		if err := godotenv.Load(defaultEnvFile); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", defaultEnvFile, err)
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Port:           envOr("STOREFRONT_PORT", envOr("PORT", defaultPort)),
			ReadTimeout:    envDuration("STOREFRONT_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   envDuration("STOREFRONT_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    envDuration("STOREFRONT_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: envDuration("STOREFRONT_REQUEST_TIMEOUT", defaultRequestTimeout),
		},
		Upstream: UpstreamConfig{
			BaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("STOREFRONT_API_BASE_URL")), "/"),
			Timeout: envDuration("STOREFRONT_API_TIMEOUT", defaultUpstreamTimeout),
		},
		Realtime: RealtimeConfig{
			URL: strings.TrimSpace(os.Getenv("STOREFRONT_REALTIME_URL")),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(os.Getenv("STOREFRONT_REDIS_ADDR")),
			Password: os.Getenv("STOREFRONT_REDIS_PASSWORD"),
			DB:       envInt("STOREFRONT_REDIS_DB", 0),
		},
		Chat: ChatConfig{
			PageSize:  envInt("STOREFRONT_CHAT_PAGE_SIZE", defaultChatPageSize),
			TypingTTL: envDuration("STOREFRONT_CHAT_TYPING_TTL", defaultTypingTTL),
		},
		Pricing: PricingConfig{
			TableFile: envOr("STOREFRONT_PRICING_FILE", defaultPricingFile),
		},
	}

	if cfg.Upstream.BaseURL == "" {
		return Config{}, fmt.Errorf("config: STOREFRONT_API_BASE_URL is required")
	}
	if cfg.Chat.PageSize <= 0 {
		return Config{}, fmt.Errorf("config: chat page size must be positive")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
