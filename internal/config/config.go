package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	SummaryCacheTTLSeconds int
	Timezone               string
	PharmacyName           string
	MetricsEnabled         bool
	SeedCatalog            bool
}

// Load reads the environment, after filling unset keys from ENV_FILE
// (default ".env") when that file exists. Real environment variables win.
func Load() Config {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[config] WARN: failed to read %s: %v", envFile, err)
		}
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("SUMMARY_CACHE_TTL_SECONDS", "30"))
	if err != nil || ttl < 1 {
		ttl = 30
	}

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:5173"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		SummaryCacheTTLSeconds: ttl,
		Timezone:               getEnv("TIMEZONE", "UTC"),
		PharmacyName:           strings.TrimSpace(getEnv("PHARMACY_NAME", "PharmaCare Pharmacy")),
		MetricsEnabled:         getBool("METRICS_ENABLED", true),
		SeedCatalog:            getBool("SEED_CATALOG", true),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves Timezone, the zone period ranges and report dates use.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c Config) SummaryCacheTTL() time.Duration {
	return time.Duration(c.SummaryCacheTTLSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return val
}
