package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	WorkerPort       string
	DatabaseURL      string
	JWTSecret        string
	MirrorPath       string
	MirrorCollection string
	PollInterval     time.Duration
	PollMaxDuration  time.Duration
	PollFallback     time.Duration
	ChangeFeed       bool
	ProcessorURL     string
	ProcessorToken   string
	ProcessorTimeout time.Duration
	RedisURL         string
	EventsChannel    string
	ReconcileCron    string
	StoragePath      string
	StorageBaseURL   string
	GeminiAPIKey     string
	GeminiModel      string
	GeminiBaseURL    string
	GoogleClientID   string
	GoogleSecret     string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string
	// WorkerConcurrency bounds how many jobs one worker generates at once.
	WorkerConcurrency int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             port,
		WorkerPort:       getEnv("WORKER_PORT", "8090"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		MirrorPath:       getEnv("MIRROR_PATH", "./data/mirror.db"),
		MirrorCollection: getEnv("MIRROR_COLLECTION", "carousel_jobs"),
		PollInterval:     getEnvDuration("POLL_INTERVAL", 2*time.Second),
		PollMaxDuration:  getEnvDuration("POLL_MAX_DURATION", 30*time.Minute),
		PollFallback:     getEnvDuration("POLL_FALLBACK_INTERVAL", 15*time.Second),
		ChangeFeed:       getEnvBool("CHANGE_FEED_ENABLED", true),
		ProcessorURL:     getEnv("PROCESSOR_URL", "http://localhost:8090/functions/generate-images"),
		ProcessorToken:   os.Getenv("PROCESSOR_TOKEN"),
		ProcessorTimeout: getEnvDuration("PROCESSOR_TIMEOUT", 30*time.Second),
		RedisURL:         os.Getenv("REDIS_URL"),
		EventsChannel:    getEnv("EVENTS_CHANNEL", "carousel:job-events"),
		ReconcileCron:    getEnv("RECONCILE_SCHEDULE", "@every 5m"),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:   strings.TrimRight(getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"), "/"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GoogleClientID:   os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleSecret:     os.Getenv("GOOGLE_CLIENT_SECRET"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		CORSOrigins:      getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.PollInterval <= 0 || cfg.PollMaxDuration < cfg.PollInterval {
		return nil, fmt.Errorf("POLL_MAX_DURATION must be at least POLL_INTERVAL")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("2s", "30m") or bare seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
