package config

import (
	"os"
	"strconv"
	"time"
)

// QuotaPolicy is one fixed rate-limiting configuration: at most Max events
// per identity inside the trailing Window.
type QuotaPolicy struct {
	Name   string
	Max    int
	Window time.Duration
	// RequiresLogin is set on the anonymous policy so a denial can prompt
	// authentication instead of a bare rejection.
	RequiresLogin bool
}

type QuotaConfig struct {
	Anonymous     QuotaPolicy
	Authenticated QuotaPolicy
}

func LoadQuotaConfig() *QuotaConfig {
	return &QuotaConfig{
		Anonymous: QuotaPolicy{
			Name:          "anonymous",
			Max:           getEnvAsInt("QUOTA_ANON_MAX", 3),
			Window:        getEnvAsDuration("QUOTA_ANON_WINDOW", 24*time.Hour),
			RequiresLogin: true,
		},
		Authenticated: QuotaPolicy{
			Name:   "authenticated",
			Max:    getEnvAsInt("QUOTA_USER_MAX", 30),
			Window: getEnvAsDuration("QUOTA_USER_WINDOW", 1*time.Hour),
		},
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
