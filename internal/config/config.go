package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port              int    `env:"PORT" envDefault:"8080"`
	DatabaseURL       string `env:"DATABASE_URL,required"`
	RedisURL          string `env:"REDIS_URL,required"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	JWTSecret         string `env:"JWT_SECRET"`
	FacilityTokenHash string `env:"FACILITY_TOKEN_HASH"`
	LocksFile         string `env:"LOCKS_FILE" envDefault:"locks.yaml"`
	FacilityTimezone  string `env:"FACILITY_TIMEZONE" envDefault:"Asia/Tokyo"`
	InviteBaseURL     string `env:"INVITE_BASE_URL" envDefault:"http://localhost:8080/invite"`

	CredentialTTLSeconds  int  `env:"CREDENTIAL_TTL_SECONDS" envDefault:"300"`
	ActuationAttempts     int  `env:"ACTUATION_ATTEMPTS" envDefault:"3"`
	ActuationBackoffMS    int  `env:"ACTUATION_BACKOFF_MS" envDefault:"250"`
	VerifyRateLimitPerMin int  `env:"VERIFY_RATE_LIMIT_PER_MIN" envDefault:"30"`
	VaccinationRequired   bool `env:"VACCINATION_REQUIRED" envDefault:"false"`

	TTLockBaseURL      string `env:"TTLOCK_BASE_URL" envDefault:"https://euapi.ttlock.com"`
	TTLockClientID     string `env:"TTLOCK_CLIENT_ID"`
	TTLockClientSecret string `env:"TTLOCK_CLIENT_SECRET"`
	TTLockUsername     string `env:"TTLOCK_USERNAME"`
	TTLockPassword     string `env:"TTLOCK_PASSWORD"`
}

func (c *Config) CredentialTTL() time.Duration {
	return time.Duration(c.CredentialTTLSeconds) * time.Second
}

func (c *Config) ActuationBackoff() time.Duration {
	return time.Duration(c.ActuationBackoffMS) * time.Millisecond
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.FacilityTimezone)
	if err != nil {
		return nil, fmt.Errorf("load FACILITY_TIMEZONE %q: %w", c.FacilityTimezone, err)
	}
	return loc, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// TTLockConfigured reports whether cloud lock credentials are present.
func (c *Config) TTLockConfigured() bool {
	return c.TTLockClientID != "" && c.TTLockClientSecret != "" &&
		c.TTLockUsername != "" && c.TTLockPassword != ""
}

func (c *Config) Validate(isProduction bool) error {
	if c.FacilityTokenHash != "" {
		if !strings.HasPrefix(c.FacilityTokenHash, "$2a$") &&
			!strings.HasPrefix(c.FacilityTokenHash, "$2b$") &&
			!strings.HasPrefix(c.FacilityTokenHash, "$2y$") {
			return fmt.Errorf("FACILITY_TOKEN_HASH must be a bcrypt hash (generate with: accessctl hash-token <token>)")
		}
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.CredentialTTLSeconds <= 0 {
		return fmt.Errorf("CREDENTIAL_TTL_SECONDS must be positive")
	}
	if c.ActuationAttempts < 1 {
		return fmt.Errorf("ACTUATION_ATTEMPTS must be at least 1")
	}
	if c.ActuationBackoffMS < 0 {
		return fmt.Errorf("ACTUATION_BACKOFF_MS must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if isProduction {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
		if c.FacilityTokenHash == "" {
			return fmt.Errorf("FACILITY_TOKEN_HASH is required in production")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
