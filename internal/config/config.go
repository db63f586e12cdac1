package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds service configuration read from the environment.
type Config struct {
	Port string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	RedisAddr string
	JWTSecret string

	// Default and cap for nearby searches, in kilometers.
	SearchRadiusKm    float64
	SearchRadiusMaxKm float64

	// How long a completed negotiation and its messages are retained
	// before the purge worker removes them.
	PurgeRetention time.Duration
}

// Load reads config from environment variables with sensible defaults.
func Load() *Config {
	cfg := &Config{
		Port:              getenv("PORT", "8080"),
		DBUser:            getenv("DB_USER", "postgres"),
		DBPassword:        getenv("DB_PASSWORD", "postgres"),
		DBHost:            getenv("DB_HOST", "localhost"),
		DBPort:            getenv("DB_PORT", "5432"),
		DBName:            getenv("DB_NAME", "sharefood"),
		RedisAddr:         getenv("REDIS_ADDR", "127.0.0.1:6379"),
		JWTSecret:         getenv("JWT_SECRET", "supersecret"),
		SearchRadiusKm:    getfloat("SEARCH_RADIUS_KM", 10),
		SearchRadiusMaxKm: getfloat("SEARCH_RADIUS_MAX_KM", 50),
		PurgeRetention:    getduration("PURGE_RETENTION", 24*time.Hour),
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getfloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return fallback
}
