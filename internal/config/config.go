package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	Port        string `yaml:"port"`
	JWTSecret   string `yaml:"jwt_secret"`
	DevMode     bool   `yaml:"dev_mode"`

	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`

	IdentityEmailDomain string        `yaml:"identity_email_domain"`
	IdentityTimeout     time.Duration `yaml:"identity_timeout"`
	BcryptCost          int           `yaml:"bcrypt_cost"`

	TrialDefaultDays int `yaml:"trial_default_days"`

	RedisAddr          string        `yaml:"redis_addr"`
	RedisPassword      string        `yaml:"redis_password"`
	LoginMaxFailures   int           `yaml:"login_max_failures"`
	LoginFailureWindow time.Duration `yaml:"login_failure_window"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

func defaults() *Config {
	return &Config{
		Port:                "8080",
		AccessTokenTTL:      time.Hour,
		IdentityEmailDomain: "academia.local",
		IdentityTimeout:     5 * time.Second,
		BcryptCost:          10,
		TrialDefaultDays:    7,
		LoginMaxFailures:    10,
		LoginFailureWindow:  15 * time.Minute,
		CORSAllowedOrigins:  []string{"*"},
	}
}

// Load reads configuration from an optional YAML file (CONFIG_FILE) and then
// from environment variables, which take precedence.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("DEV_MODE"); v != "" {
		cfg.DevMode = v == "true"
	}
	if v := os.Getenv("IDENTITY_EMAIL_DOMAIN"); v != "" {
		cfg.IdentityEmailDomain = strings.TrimPrefix(v, "@")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}

	cfg.AccessTokenTTL = getenvDuration("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL)
	cfg.IdentityTimeout = getenvDuration("IDENTITY_TIMEOUT", cfg.IdentityTimeout)
	cfg.LoginFailureWindow = getenvDuration("LOGIN_FAILURE_WINDOW", cfg.LoginFailureWindow)
	cfg.BcryptCost = getenvInt("BCRYPT_COST", cfg.BcryptCost)
	cfg.TrialDefaultDays = getenvInt("TRIAL_DEFAULT_DAYS", cfg.TrialDefaultDays)
	cfg.LoginMaxFailures = getenvInt("LOGIN_MAX_FAILURES", cfg.LoginMaxFailures)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.TrialDefaultDays <= 0 {
		return fmt.Errorf("TRIAL_DEFAULT_DAYS must be positive, got %d", c.TrialDefaultDays)
	}
	if c.LoginMaxFailures <= 0 {
		return fmt.Errorf("LOGIN_MAX_FAILURES must be positive, got %d", c.LoginMaxFailures)
	}
	if c.IdentityTimeout <= 0 {
		return fmt.Errorf("IDENTITY_TIMEOUT must be positive")
	}
	return nil
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
