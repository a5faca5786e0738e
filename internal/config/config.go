// Package config reads runtime settings from MEMBERQR_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const prefix = "MEMBERQR_"

const (
	devSessionSecret = "dev-session-secret-change-me"
	devTokenSecret   = "dev-token-secret-change-me"
)

type S3Config struct {
	Endpoint       string
	Bucket         string
	Region         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// Enabled reports whether enough is configured to upload backups.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Config struct {
	Env       string
	Port      string
	DBPath    string
	BaseURL   string
	LogLevel  string
	LogFormat string

	SessionSecret   string
	SessionLifetime time.Duration
	TokenSecret     string

	AdminUsername         string
	AdminPassword         string
	DefaultMemberPassword string

	SeedXLSX string
	QRSize   int

	// TrustProxy honours CF-Connecting-IP, X-Real-IP and X-Forwarded-For
	// when identifying clients. Enable only behind a proxy that sets them.
	TrustProxy bool

	S3               S3Config
	BackupPassphrase string
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := getenv(prefix + key); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Env:                   get("ENV", "development"),
		Port:                  get("PORT", "8080"),
		DBPath:                get("DB_PATH", "memberqr.db"),
		LogLevel:              get("LOG_LEVEL", "info"),
		LogFormat:             get("LOG_FORMAT", "text"),
		SessionSecret:         get("SESSION_SECRET", devSessionSecret),
		TokenSecret:           get("TOKEN_SECRET", devTokenSecret),
		AdminUsername:         get("ADMIN_USERNAME", "admin"),
		AdminPassword:         get("ADMIN_PASSWORD", "admin123"),
		DefaultMemberPassword: get("DEFAULT_MEMBER_PASSWORD", "123456"),
		SeedXLSX:              get("SEED_XLSX", ""),
		BackupPassphrase:      get("BACKUP_PASSPHRASE", ""),
		S3: S3Config{
			Endpoint:  get("S3_ENDPOINT", ""),
			Bucket:    get("S3_BUCKET", ""),
			Region:    get("S3_REGION", "us-east-1"),
			AccessKey: get("S3_ACCESS_KEY", ""),
			SecretKey: get("S3_SECRET_KEY", ""),
		},
	}
	cfg.BaseURL = get("BASE_URL", "http://localhost:"+cfg.Port)

	var err error
	if cfg.SessionLifetime, err = time.ParseDuration(get("SESSION_LIFETIME", "1h")); err != nil {
		return nil, fmt.Errorf("parse %sSESSION_LIFETIME: %w", prefix, err)
	}
	if cfg.QRSize, err = strconv.Atoi(get("QR_SIZE", "256")); err != nil {
		return nil, fmt.Errorf("parse %sQR_SIZE: %w", prefix, err)
	}
	if cfg.S3.ForcePathStyle, err = strconv.ParseBool(get("S3_FORCE_PATH_STYLE", "true")); err != nil {
		return nil, fmt.Errorf("parse %sS3_FORCE_PATH_STYLE: %w", prefix, err)
	}
	if cfg.TrustProxy, err = strconv.ParseBool(get("TRUST_PROXY", "false")); err != nil {
		return nil, fmt.Errorf("parse %sTRUST_PROXY: %w", prefix, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SessionLifetime <= 0 {
		return errors.New("session lifetime must be positive")
	}
	if c.QRSize < 64 {
		return fmt.Errorf("qr size %d is too small", c.QRSize)
	}
	if c.IsProduction() {
		if c.SessionSecret == devSessionSecret {
			return fmt.Errorf("%sSESSION_SECRET must be set in production", prefix)
		}
		if c.TokenSecret == devTokenSecret {
			return fmt.Errorf("%sTOKEN_SECRET must be set in production", prefix)
		}
	}
	if c.S3.Enabled() && c.BackupPassphrase == "" {
		return fmt.Errorf("%sBACKUP_PASSPHRASE is required when S3 backups are configured", prefix)
	}
	return nil
}
