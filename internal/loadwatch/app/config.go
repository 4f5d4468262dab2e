package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/domain"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the YAML file when --config is not given.
const ConfigFileEnv = "LOADWATCH_CONFIG"

type ScheduleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Reminder string `yaml:"reminder"` // cron spec, empty disables the job
	Missing  string `yaml:"missing"`
	Summary  string `yaml:"summary"`
	ACWR     string `yaml:"acwr"`
}

type Config struct {
	Env                 string        `yaml:"env"`                   // dev, staging, prod (default: dev)
	LogLevel            string        `yaml:"log_level"`             // debug, info, warn, error (default: info)
	LogFormat           string        `yaml:"log_format"`            // json, text (default: json)
	Port                int           `yaml:"port"`                  // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period"` // default: 10s
	Timezone            string        `yaml:"timezone"`              // IANA name; calendar days are cut here (default: Local)

	DatabaseDriver string `yaml:"database_driver"` // sqlite, postgres (default: sqlite)
	DatabaseFile   string `yaml:"database_file"`   // sqlite file (default: loadwatch.db)
	DatabaseURL    string `yaml:"database_url"`    // postgres URL

	Transport              string `yaml:"transport"` // line, telegram, none (default: line)
	LineChannelSecret      string `yaml:"line_channel_secret"`
	LineChannelAccessToken string `yaml:"line_channel_access_token"`
	LineAPIEndpoint        string `yaml:"line_api_endpoint"` // overrides https://api.line.me
	TelegramBotToken       string `yaml:"telegram_bot_token"`

	// VerifyCodes maps a verification code to a role name.
	VerifyCodes   map[string]string `yaml:"verify_codes"`
	RiskModerate  float64           `yaml:"risk_moderate_threshold"`
	RiskHigh      float64           `yaml:"risk_high_threshold"`
	Schedule      ScheduleConfig    `yaml:"schedule"`
	RedisAddr     string            `yaml:"redis_addr"` // optional job slot guard
	RedisPassword string            `yaml:"redis_password"`
	RedisDB       int               `yaml:"redis_db"`

	JobsToken        string `yaml:"jobs_token"`         // bearer for POST /v1/jobs/{job}/run; empty disables
	WebhookRateLimit int    `yaml:"webhook_rate_limit"` // requests per minute per IP
}

func defaultConfig() Config {
	return Config{
		Env:                 "dev",
		LogLevel:            "info",
		LogFormat:           "json",
		Port:                8080,
		ShutdownGracePeriod: 10 * time.Second,
		Timezone:            "Local",
		DatabaseDriver:      "sqlite",
		DatabaseFile:        "loadwatch.db",
		Transport:           "line",
		VerifyCodes:         map[string]string{"1111": "player", "0607": "coach"},
		RiskModerate:        domain.DefaultThresholds.Moderate,
		RiskHigh:            domain.DefaultThresholds.High,
		Schedule: ScheduleConfig{
			Enabled:  true,
			Reminder: "0 22 * * 1-5",
			Missing:  "0 22 * * 1-5",
			Summary:  "30 23 * * 1-5",
			ACWR:     "0 22 * * 0",
		},
		WebhookRateLimit: 600,
	}
}

// LoadConfig builds the configuration from defaults, then the optional YAML
// file at path (or $LOADWATCH_CONFIG), then environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Port = getEnvIntOrDefault("PORT", cfg.Port)
	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)
	cfg.Timezone = getEnvOrDefault("TIMEZONE", cfg.Timezone)

	cfg.DatabaseDriver = getEnvOrDefault("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabaseFile = getEnvOrDefault("DATABASE_FILE", cfg.DatabaseFile)
	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseURL)

	cfg.Transport = getEnvOrDefault("TRANSPORT", cfg.Transport)
	cfg.LineChannelSecret = getEnvOrDefault("LINE_CHANNEL_SECRET", cfg.LineChannelSecret)
	cfg.LineChannelAccessToken = getEnvOrDefault("LINE_CHANNEL_ACCESS_TOKEN", cfg.LineChannelAccessToken)
	cfg.LineAPIEndpoint = getEnvOrDefault("LINE_API_ENDPOINT", cfg.LineAPIEndpoint)
	cfg.TelegramBotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)

	if raw := os.Getenv("VERIFY_CODES"); raw != "" {
		codes, err := parseCodeList(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.VerifyCodes = codes
	}
	cfg.RiskModerate = getEnvFloatOrDefault("RISK_MODERATE_THRESHOLD", cfg.RiskModerate)
	cfg.RiskHigh = getEnvFloatOrDefault("RISK_HIGH_THRESHOLD", cfg.RiskHigh)

	cfg.Schedule.Enabled = getEnvBoolOrDefault("SCHEDULE_ENABLED", cfg.Schedule.Enabled)
	cfg.Schedule.Reminder = getEnvOrDefault("SCHEDULE_REMINDER", cfg.Schedule.Reminder)
	cfg.Schedule.Missing = getEnvOrDefault("SCHEDULE_MISSING", cfg.Schedule.Missing)
	cfg.Schedule.Summary = getEnvOrDefault("SCHEDULE_SUMMARY", cfg.Schedule.Summary)
	cfg.Schedule.ACWR = getEnvOrDefault("SCHEDULE_ACWR", cfg.Schedule.ACWR)

	cfg.RedisAddr = getEnvOrDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvIntOrDefault("REDIS_DB", cfg.RedisDB)

	cfg.JobsToken = getEnvOrDefault("JOBS_TOKEN", cfg.JobsToken)
	cfg.WebhookRateLimit = getEnvIntOrDefault("WEBHOOK_RATE_LIMIT", cfg.WebhookRateLimit)

	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Codes(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Thresholds().Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.DatabaseDriver {
	case "sqlite":
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("DATABASE_FILE is required for the sqlite driver"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.DatabaseDriver))
	}

	switch c.Transport {
	case "line":
		if c.LineChannelSecret == "" || c.LineChannelAccessToken == "" {
			errs = append(errs, errors.New("LINE_CHANNEL_SECRET and LINE_CHANNEL_ACCESS_TOKEN are required for the line transport"))
		}
	case "telegram":
		if c.TelegramBotToken == "" {
			errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required for the telegram transport"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}

	for name, spec := range map[string]string{
		"reminder": c.Schedule.Reminder,
		"missing":  c.Schedule.Missing,
		"summary":  c.Schedule.Summary,
		"acwr":     c.Schedule.ACWR,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", name, err))
		}
	}

	if c.WebhookRateLimit <= 0 {
		errs = append(errs, errors.New("WEBHOOK_RATE_LIMIT must be positive"))
	}

	return errors.Join(errs...)
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Codes resolves the role names in VerifyCodes.
func (c Config) Codes() (map[string]domain.Role, error) {
	if len(c.VerifyCodes) == 0 {
		return nil, errors.New("at least one verification code is required")
	}
	out := make(map[string]domain.Role, len(c.VerifyCodes))
	for code, name := range c.VerifyCodes {
		code = strings.TrimSpace(code)
		if code == "" {
			return nil, errors.New("verification codes must not be empty")
		}
		role, err := domain.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("verification code %s: %w", code, err)
		}
		out[code] = role
	}
	return out, nil
}

func (c Config) Thresholds() domain.Thresholds {
	return domain.Thresholds{Moderate: c.RiskModerate, High: c.RiskHigh}
}

// parseCodeList parses "code:role,code:role".
func parseCodeList(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for pair := range strings.SplitSeq(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, role, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("VERIFY_CODES entry %q must look like code:role", pair)
		}
		out[strings.TrimSpace(code)] = strings.TrimSpace(role)
	}
	return out, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
