package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisAddr   string
	RedisDB     int
	JWTSecret   string
	CronSecret  string

	// Provider (KIE.AI Runway-compatible video generation API).
	RunwayAPIKey        string
	RunwayBaseURL       string
	RunwaySubmitTimeout time.Duration
	RunwayStatusTimeout time.Duration

	// Generation defaults.
	VideoAspectRatio string
	VideoDuration    int
	VideoQuality     string
	DefaultPrompt    string

	// Polling budget and pacing.
	PollMaxAttempts  int
	PollInterval     time.Duration
	PollRateLimDelay time.Duration
	StaleAfter       time.Duration

	// Chat channel push delivery.
	LineAccessToken string
	LinePushURL     string

	DefaultLocale string
	GeoIPDBPath   string

	DefaultMonthlyQuota int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:     getEnvInt("REDIS_DB", 0),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		CronSecret:  os.Getenv("CRON_SECRET"),

		RunwayAPIKey:        os.Getenv("RUNWAY_API_KEY"),
		RunwayBaseURL:       getEnv("RUNWAY_BASE_URL", "https://api.kie.ai"),
		RunwaySubmitTimeout: time.Second * time.Duration(getEnvInt("RUNWAY_SUBMIT_TIMEOUT_SECONDS", 60)),
		RunwayStatusTimeout: time.Second * time.Duration(getEnvInt("RUNWAY_STATUS_TIMEOUT_SECONDS", 30)),

		VideoAspectRatio: getEnv("VIDEO_ASPECT_RATIO", "1:1"),
		VideoDuration:    getEnvInt("VIDEO_DURATION_SECONDS", 5),
		VideoQuality:     getEnv("VIDEO_QUALITY", "720p"),
		DefaultPrompt: getEnv("VIDEO_DEFAULT_PROMPT",
			"Transform this photo into a dynamic video with natural movements and expressions, bringing the person to life with subtle animations and realistic motion"),

		PollMaxAttempts:  getEnvInt("POLL_MAX_ATTEMPTS", 25),
		PollInterval:     time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 8)),
		PollRateLimDelay: time.Second * time.Duration(getEnvInt("POLL_RATE_LIMIT_DELAY_SECONDS", 20)),
		StaleAfter:       time.Minute * time.Duration(getEnvInt("TASK_STALE_AFTER_MINUTES", 2)),

		LineAccessToken: os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		LinePushURL:     getEnv("LINE_PUSH_URL", "https://api.line.me/v2/bot/message/push"),

		DefaultLocale: getEnv("DEFAULT_LOCALE", "zh"),
		GeoIPDBPath:   os.Getenv("GEOIP_DB_PATH"),

		DefaultMonthlyQuota: getEnvInt("DEFAULT_MONTHLY_QUOTA", 8),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.PollMaxAttempts <= 0 {
		return nil, fmt.Errorf("POLL_MAX_ATTEMPTS must be positive")
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
