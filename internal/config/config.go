// README: Config loader with env defaults for HTTP, Redis events, seeding, ids, pricing and matching.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"taxihub/internal/modules/pricing"
)

type PricingConfig struct {
	FareMin int64
	FareMax int64
}

type MatchingConfig struct {
	TopN int
}

type Config struct {
	HTTP struct {
		Addr string
	}
	Redis struct {
		// Addr empty disables event publishing to Redis.
		Addr    string
		Channel string
	}
	Seed struct {
		File string
	}
	// RandomSeed of 0 seeds the generators from the clock.
	RandomSeed uint64
	IDScheme   string
	LogLevel   string
	Pricing    PricingConfig
	Matching   MatchingConfig
}

func Load() (Config, error) {
	var cfg Config
	cfg.HTTP.Addr = envOrDefault("TAXIHUB_HTTP_ADDR", ":8080")
	cfg.Redis.Addr = envOrDefault("TAXIHUB_REDIS_ADDR", "")
	cfg.Redis.Channel = envOrDefault("TAXIHUB_EVENTS_CHANNEL", "taxihub:events")
	cfg.Seed.File = envOrDefault("TAXIHUB_SEED_FILE", "")
	cfg.RandomSeed = envOrDefaultUint("TAXIHUB_RANDOM_SEED", 0)
	cfg.IDScheme = strings.ToLower(envOrDefault("TAXIHUB_ID_SCHEME", "counter"))
	cfg.LogLevel = envOrDefault("TAXIHUB_LOG_LEVEL", "info")
	cfg.Pricing.FareMin = envOrDefaultInt64("TAXIHUB_FARE_MIN", 15)
	cfg.Pricing.FareMax = envOrDefaultInt64("TAXIHUB_FARE_MAX", 54)
	cfg.Matching.TopN = envOrDefaultInt("TAXIHUB_TOP_N", 3)

	if cfg.IDScheme != "counter" && cfg.IDScheme != "uuid" {
		return Config{}, fmt.Errorf("TAXIHUB_ID_SCHEME: unknown scheme %q", cfg.IDScheme)
	}
	rate := pricing.Rate{MinFare: cfg.Pricing.FareMin, MaxFare: cfg.Pricing.FareMax}
	if err := rate.Validate(); err != nil {
		return Config{}, fmt.Errorf("fare range [%d,%d]: %w", cfg.Pricing.FareMin, cfg.Pricing.FareMax, err)
	}
	if cfg.Matching.TopN <= 0 {
		return Config{}, fmt.Errorf("TAXIHUB_TOP_N must be positive, got %d", cfg.Matching.TopN)
	}
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultUint(key string, def uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
