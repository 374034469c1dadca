// internal/config/config.go
// Centralized configuration management
// Loads from environment variables with sensible defaults

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration
type Config struct {
	// Server
	Environment string `validate:"oneof=development staging production"`
	MetricsPort string

	// Database
	DatabaseURL string `validate:"required"`
	RedisURL    string `validate:"required"`

	// Scoring weights, must sum to 1.0
	WeightAge       float64 `validate:"gte=0,lte=1"`
	WeightLocation  float64 `validate:"gte=0,lte=1"`
	WeightEducation float64 `validate:"gte=0,lte=1"`
	WeightReligion  float64 `validate:"gte=0,lte=1"`
	WeightLifestyle float64 `validate:"gte=0,lte=1"`
	WeightInterests float64 `validate:"gte=0,lte=1"`
	WeightHoroscope float64 `validate:"gte=0,lte=1"`
	WeightActivity  float64 `validate:"gte=0,lte=1"`

	// Score boosts, applied after the weighted composite
	PremiumBoost      float64 `validate:"gte=0,lte=25"`
	VerificationBoost float64 `validate:"gte=0,lte=25"`

	// Daily generation
	FreeDailyLimit       int `validate:"min=1"`
	PremiumDailyLimit    int `validate:"min=1"`
	GenerationChunkSize  int `validate:"min=1"`
	CandidatePoolSize    int `validate:"min=1"`
	CompletionThreshold  int `validate:"min=0,max=100"`
	GenerationHourOfDay  int `validate:"min=0,max=23"`
	InterUserDelay       time.Duration
	FanoutNotifyTopN     int `validate:"min=0"`
	FanoutJitterMin      time.Duration
	FanoutJitterMax      time.Duration
	ScoreCacheTTLPadding time.Duration

	// Notification policy
	QuietHoursStart            int `validate:"min=0,max=23"`
	QuietHoursEnd              int `validate:"min=0,max=23"`
	DefaultTimezone            string
	NewMatchDailyCap           int `validate:"min=0"`
	ProfileViewDailyCap        int `validate:"min=0"`
	ProfileViewDailyCapPremium int `validate:"min=0"`
	InterestDailyCap           int `validate:"min=0"`
	MessageRatePerMinute       int `validate:"min=0"`

	// Notification retention
	MatchRetention   time.Duration
	MessageRetention time.Duration
	CleanupInterval  time.Duration

	// Task queue
	MatchingWorkers     int `validate:"min=1"`
	NotificationWorkers int `validate:"min=1"`
	EmailWorkers        int `validate:"min=1"`
	BatchTaskTimeout    time.Duration
	GenerateTaskTimeout time.Duration
	NotifyTaskTimeout   time.Duration
	EmailTaskTimeout    time.Duration
	TaskMaxAttempts     int `validate:"min=1,max=10"`
	TaskBaseBackoff     time.Duration

	// Email
	EmailProvider string `validate:"oneof=smtp sendgrid mock"`
	EmailFrom     string
	EmailFromName string

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	// SendGrid
	SendGridAPIKey string

	// Push
	PushProvider            string `validate:"oneof=fcm mock"`
	FirebaseCredentialsPath string
	FirebaseCredentialsJSON string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		MetricsPort: getEnv("METRICS_PORT", "9090"),

		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/sangam?sslmode=disable"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		WeightAge:       getEnvFloat("WEIGHT_AGE", 0.15),
		WeightLocation:  getEnvFloat("WEIGHT_LOCATION", 0.15),
		WeightEducation: getEnvFloat("WEIGHT_EDUCATION", 0.10),
		WeightReligion:  getEnvFloat("WEIGHT_RELIGION", 0.20),
		WeightLifestyle: getEnvFloat("WEIGHT_LIFESTYLE", 0.10),
		WeightInterests: getEnvFloat("WEIGHT_INTERESTS", 0.10),
		WeightHoroscope: getEnvFloat("WEIGHT_HOROSCOPE", 0.10),
		WeightActivity:  getEnvFloat("WEIGHT_ACTIVITY", 0.10),

		PremiumBoost:      getEnvFloat("PREMIUM_BOOST", 5),
		VerificationBoost: getEnvFloat("VERIFICATION_BOOST", 3),

		FreeDailyLimit:       getEnvInt("FREE_DAILY_LIMIT", 5),
		PremiumDailyLimit:    getEnvInt("PREMIUM_DAILY_LIMIT", 20),
		GenerationChunkSize:  getEnvInt("GENERATION_CHUNK_SIZE", 100),
		CandidatePoolSize:    getEnvInt("CANDIDATE_POOL_SIZE", 500),
		CompletionThreshold:  getEnvInt("COMPLETION_THRESHOLD", 50),
		GenerationHourOfDay:  getEnvInt("GENERATION_HOUR", 9),
		InterUserDelay:       getEnvDuration("INTER_USER_DELAY", "200ms"),
		FanoutNotifyTopN:     getEnvInt("FANOUT_NOTIFY_TOP_N", 3),
		FanoutJitterMin:      getEnvDuration("FANOUT_JITTER_MIN", "5s"),
		FanoutJitterMax:      getEnvDuration("FANOUT_JITTER_MAX", "3m"),
		ScoreCacheTTLPadding: getEnvDuration("SCORE_CACHE_TTL_PADDING", "1h"),

		QuietHoursStart:            getEnvInt("QUIET_HOURS_START", 22),
		QuietHoursEnd:              getEnvInt("QUIET_HOURS_END", 7),
		DefaultTimezone:            getEnv("DEFAULT_TIMEZONE", "Asia/Kolkata"),
		NewMatchDailyCap:           getEnvInt("NEW_MATCH_DAILY_CAP", 5),
		ProfileViewDailyCap:        getEnvInt("PROFILE_VIEW_DAILY_CAP", 5),
		ProfileViewDailyCapPremium: getEnvInt("PROFILE_VIEW_DAILY_CAP_PREMIUM", 20),
		InterestDailyCap:           getEnvInt("INTEREST_DAILY_CAP", 10),
		MessageRatePerMinute:       getEnvInt("MESSAGE_RATE_PER_MINUTE", 3),

		MatchRetention:   getEnvDuration("MATCH_RETENTION", "720h"),   // 30 days
		MessageRetention: getEnvDuration("MESSAGE_RETENTION", "168h"), // 7 days
		CleanupInterval:  getEnvDuration("CLEANUP_INTERVAL", "24h"),

		MatchingWorkers:     getEnvInt("MATCHING_WORKERS", 2),
		NotificationWorkers: getEnvInt("NOTIFICATION_WORKERS", 4),
		EmailWorkers:        getEnvInt("EMAIL_WORKERS", 2),
		BatchTaskTimeout:    getEnvDuration("BATCH_TASK_TIMEOUT", "10m"),
		GenerateTaskTimeout: getEnvDuration("GENERATE_TASK_TIMEOUT", "2m"),
		NotifyTaskTimeout:   getEnvDuration("NOTIFY_TASK_TIMEOUT", "30s"),
		EmailTaskTimeout:    getEnvDuration("EMAIL_TASK_TIMEOUT", "30s"),
		TaskMaxAttempts:     getEnvInt("TASK_MAX_ATTEMPTS", 3),
		TaskBaseBackoff:     getEnvDuration("TASK_BASE_BACKOFF", "10s"),

		EmailProvider: getEnv("EMAIL_PROVIDER", "mock"),
		EmailFrom:     getEnv("EMAIL_FROM", "noreply@sangam.app"),
		EmailFromName: getEnv("EMAIL_FROM_NAME", "Sangam"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),

		PushProvider:            getEnv("PUSH_PROVIDER", "mock"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		FirebaseCredentialsJSON: getEnv("FIREBASE_CREDENTIALS_JSON", ""),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	sum := c.WeightAge + c.WeightLocation + c.WeightEducation + c.WeightReligion +
		c.WeightLifestyle + c.WeightInterests + c.WeightHoroscope + c.WeightActivity
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.3f", sum)
	}

	if c.FanoutJitterMax < c.FanoutJitterMin {
		return fmt.Errorf("FANOUT_JITTER_MAX must be >= FANOUT_JITTER_MIN")
	}

	if c.PremiumDailyLimit < c.FreeDailyLimit {
		return fmt.Errorf("premium daily limit must be >= free daily limit")
	}

	switch c.EmailProvider {
	case "smtp":
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			if c.Environment == "production" {
				return fmt.Errorf("SMTP configuration incomplete for production")
			}
		}
	case "sendgrid":
		if c.SendGridAPIKey == "" && c.Environment == "production" {
			return fmt.Errorf("SendGrid API key is required for production")
		}
	case "mock":
		if c.Environment == "production" {
			return fmt.Errorf("mock email provider cannot be used in production")
		}
	}

	if c.PushProvider == "fcm" && c.FirebaseCredentialsPath == "" && c.FirebaseCredentialsJSON == "" {
		return fmt.Errorf("FCM push requires FIREBASE_CREDENTIALS_PATH or FIREBASE_CREDENTIALS_JSON")
	}

	return nil
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions

// getEnv gets a string value from environment with a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment with a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment with a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration value from environment with a default
func getEnvDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}
