// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type AdminConfig struct {
	APIKey       string        `yaml:"api_key"`
	JWTSecret    string        `yaml:"jwt_secret"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
	CookieDomain string        `yaml:"cookie_domain"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// SettlementConfig tunes the orchestrator itself.
type SettlementConfig struct {
	// CoinsPerUnit is the number of coins granted per whole currency unit
	// on one-time purchases (subscription purchases grant Plan.Coins).
	CoinsPerUnit int64 `yaml:"coins_per_unit"`
	// TxTimeout bounds every ledger-mutating transaction. An indefinitely
	// held row lock would stall every concurrent reconciliation attempt.
	TxTimeout time.Duration `yaml:"tx_timeout"`
	// Reconciler worker cadence.
	ReconcileInterval   time.Duration `yaml:"reconcile_interval"`
	ReconcileStaleAfter time.Duration `yaml:"reconcile_stale_after"`
}

type PaystackConfig struct {
	SecretKey      string `yaml:"secret_key"`
	CallbackURL    string `yaml:"callback_url"`
	Currency       string `yaml:"currency"`
	MinAmountMinor int64  `yaml:"min_amount_minor"`
}

type FlutterwaveConfig struct {
	SecretKey      string `yaml:"secret_key"`
	VerifHash      string `yaml:"verif_hash"` // webhook secret hash; required
	RedirectURL    string `yaml:"redirect_url"`
	Currency       string `yaml:"currency"`
	MinAmountMinor int64  `yaml:"min_amount_minor"`
}

type PaymentConfig struct {
	Paystack    PaystackConfig    `yaml:"paystack"`
	Flutterwave FlutterwaveConfig `yaml:"flutterwave"`
	MockEnabled bool              `yaml:"mock_enabled"` // register the mock driver (dev/test)
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Admin      AdminConfig      `yaml:"admin"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Settlement SettlementConfig `yaml:"settlement"`
	Payment    PaymentConfig    `yaml:"payment"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}
	if cfg.Settlement.CoinsPerUnit <= 0 {
		cfg.Settlement.CoinsPerUnit = 10
	}
	if cfg.Settlement.TxTimeout <= 0 {
		cfg.Settlement.TxTimeout = 30 * time.Second
	}
	if cfg.Settlement.ReconcileInterval <= 0 {
		cfg.Settlement.ReconcileInterval = time.Minute
	}
	if cfg.Settlement.ReconcileStaleAfter <= 0 {
		cfg.Settlement.ReconcileStaleAfter = 10 * time.Minute
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
