package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/rumi-monitor/internal/domain"
)

// Config aggregates runtime configuration for the monitor.
type Config struct {
	App      AppConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Helpdesk HelpdeskConfig
	Monitor  MonitorConfig
	Trigger  TriggerConfig
	Kafka    KafkaConfig
}

// AppConfig controls the control-API server.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// RedisConfig holds Redis connection values for the settings store.
type RedisConfig struct {
	Addr              string
	Password          string
	DB                int
	KeyPrefix         string
	SessionTTLMinutes int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// AuthConfig defines operator authentication for the control API.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	OperatorUsername      string
	OperatorPasswordHash  string
}

// HelpdeskConfig describes the helpdesk REST API.
type HelpdeskConfig struct {
	BaseURL               string
	Email                 string
	APIToken              string
	CSRFToken             string
	AgentPagePath         string
	RequestTimeoutSeconds int
	RetryDelayMillis      int
	MaxViewPages          int
	RateLimitPerMinute    int
}

// MonitorConfig tunes polling, backoff and the status update rule.
type MonitorConfig struct {
	PollIntervalSeconds    int
	MinPollIntervalSeconds int
	MaxPollIntervalSeconds int
	// MaxBackoffSeconds caps the interval after repeated circuit trips.
	MaxBackoffSeconds      int
	BackoffMultiplier      float64
	CircuitThreshold       int
	CircuitCooldownSeconds int
	TicketDelayMillis      int
	TestConcurrency        int
	DryRun                 bool
	DowngradeViewMarkers   []string
	ElevatedPriorities     []string
	DowngradePriority      string
}

// TriggerConfig holds the phrase list and the required author.
type TriggerConfig struct {
	RequiredAuthorID int64         `yaml:"required_author_id"`
	Phrases          []string      `yaml:"phrases"`
	Views            []domain.View `yaml:"views"`
	File             string        `yaml:"-"`
}

// KafkaConfig enables the outcome publisher when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	requiredAuthor, err := strconv.ParseInt(getEnv("TRIGGER_REQUIRED_AUTHOR_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TRIGGER_REQUIRED_AUTHOR_ID: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "rumi-monitor"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "127.0.0.1"),
			Port:                  getEnv("APP_PORT", "8085"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Redis: RedisConfig{
			Addr:              getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:          os.Getenv("REDIS_PASSWORD"),
			DB:                redisDB,
			KeyPrefix:         getEnv("REDIS_KEY_PREFIX", "rumi:settings:"),
			SessionTTLMinutes: getEnvAsInt("SESSION_TTL_MINUTES", 720),
		},
		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 14),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 480),
			OperatorUsername:      getEnv("OPERATOR_USERNAME", "operator"),
			OperatorPasswordHash:  os.Getenv("OPERATOR_PASSWORD_HASH"),
		},
		Helpdesk: HelpdeskConfig{
			BaseURL:               os.Getenv("HELPDESK_BASE_URL"),
			Email:                 os.Getenv("HELPDESK_EMAIL"),
			APIToken:              os.Getenv("HELPDESK_API_TOKEN"),
			CSRFToken:             os.Getenv("HELPDESK_CSRF_TOKEN"),
			AgentPagePath:         getEnv("HELPDESK_AGENT_PAGE", "/agent"),
			RequestTimeoutSeconds: getEnvAsInt("HELPDESK_TIMEOUT_SECONDS", 20),
			RetryDelayMillis:      getEnvAsInt("HELPDESK_RETRY_DELAY_MS", 2000),
			MaxViewPages:          getEnvAsInt("HELPDESK_MAX_VIEW_PAGES", 10),
			RateLimitPerMinute:    getEnvAsInt("HELPDESK_RATE_LIMIT_PER_MINUTE", 400),
		},
		Monitor: MonitorConfig{
			PollIntervalSeconds:    getEnvAsInt("MONITOR_POLL_INTERVAL_SECONDS", 15),
			MinPollIntervalSeconds: getEnvAsInt("MONITOR_MIN_POLL_INTERVAL_SECONDS", 10),
			MaxPollIntervalSeconds: getEnvAsInt("MONITOR_MAX_POLL_INTERVAL_SECONDS", 60),
			MaxBackoffSeconds:      getEnvAsInt("MONITOR_MAX_BACKOFF_SECONDS", 180),
			BackoffMultiplier:      getEnvAsFloat("MONITOR_BACKOFF_MULTIPLIER", 1.5),
			CircuitThreshold:       getEnvAsInt("MONITOR_CIRCUIT_THRESHOLD", 5),
			CircuitCooldownSeconds: getEnvAsInt("MONITOR_CIRCUIT_COOLDOWN_SECONDS", 120),
			TicketDelayMillis:      getEnvAsInt("MONITOR_TICKET_DELAY_MS", 1000),
			TestConcurrency:        getEnvAsInt("MONITOR_TEST_CONCURRENCY", 5),
			DryRun:                 getEnvAsBool("MONITOR_DRY_RUN", false),
			DowngradeViewMarkers:   getEnvAsList("MONITOR_DOWNGRADE_VIEW_MARKERS", []string{"SSOC - Egypt", "SSOC - GCC"}),
			ElevatedPriorities:     getEnvAsList("MONITOR_ELEVATED_PRIORITIES", []string{"urgent", "high"}),
			DowngradePriority:      getEnv("MONITOR_DOWNGRADE_PRIORITY", "normal"),
		},
		Trigger: TriggerConfig{
			RequiredAuthorID: requiredAuthor,
			File:             os.Getenv("TRIGGER_CONFIG_FILE"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "rumi-ticket-events"),
		},
	}

	if cfg.Trigger.File != "" {
		if err := LoadTriggerFile(cfg.Trigger.File, &cfg.Trigger); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// LoadTriggerFile overlays phrases, the required author and the view
// catalog from a YAML file. Keys absent from the file keep their values.
func LoadTriggerFile(path string, trig *TriggerConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read trigger file: %w", err)
	}
	var file TriggerConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse trigger file %s: %w", path, err)
	}
	if file.RequiredAuthorID != 0 {
		trig.RequiredAuthorID = file.RequiredAuthorID
	}
	if len(file.Phrases) > 0 {
		trig.Phrases = file.Phrases
	}
	if len(file.Views) > 0 {
		trig.Views = file.Views
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SessionTTL is the lifetime of session-scoped settings.
func (r RedisConfig) SessionTTL() time.Duration {
	return time.Duration(r.SessionTTLMinutes) * time.Minute
}

// Timeout is the per-request helpdesk timeout.
func (h HelpdeskConfig) Timeout() time.Duration {
	return time.Duration(h.RequestTimeoutSeconds) * time.Second
}

// RetryDelay is the pause before the single retry.
func (h HelpdeskConfig) RetryDelay() time.Duration {
	return time.Duration(h.RetryDelayMillis) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
