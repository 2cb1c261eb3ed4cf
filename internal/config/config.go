package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DBPath        string
	APIBaseURL    string
	APIToken      string
	ProbeURL      string
	HTTPTimeout   time.Duration
	ProbeInterval time.Duration
	SyncInterval  time.Duration
	RetryInitial  time.Duration
	RetryCap      time.Duration
	RetryAttempts int
	LogLevel      string
	LogFile       string
}

func Load() *Config {
	baseURL := getEnv("API_BASE_URL", "http://localhost:8080")
	return &Config{
		DBPath:        getEnv("DB_PATH", "/data/fieldsync.db"),
		APIBaseURL:    baseURL,
		APIToken:      getEnv("API_TOKEN", ""),
		ProbeURL:      getEnv("PROBE_URL", baseURL+"/healthz"),
		HTTPTimeout:   getDuration("HTTP_TIMEOUT", 30*time.Second),
		ProbeInterval: getDuration("PROBE_INTERVAL", 15*time.Second),
		SyncInterval:  getDuration("SYNC_INTERVAL", 5*time.Minute),
		RetryInitial:  getDuration("RETRY_INITIAL", 30*time.Second),
		RetryCap:      getDuration("RETRY_CAP", time.Hour),
		RetryAttempts: getInt("RETRY_MAX_ATTEMPTS", 25),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}
