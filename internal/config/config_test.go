//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		path := writeConfig(t, `
log:
  level: debug
  format: console
server:
  port: 9090
admin:
  api_key: admin-key
  jwt_secret: jwt-secret
  session_ttl: 1h
database:
  url: postgres://localhost:5432/settlement
redis:
  url: localhost:6379
  ttl: 5m
settlement:
  coins_per_unit: 20
  tx_timeout: 10s
payment:
  paystack:
    secret_key: sk_test_abc
  flutterwave:
    secret_key: FLWSECK-abc
    verif_hash: hash-1
  mock_enabled: true
`)
		cfg, err := LoadConfig(path, true)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.Server.Port != 9090 || cfg.Log.Level != "debug" {
			t.Fatalf("unexpected config %+v", cfg)
		}
		if cfg.Settlement.CoinsPerUnit != 20 || cfg.Settlement.TxTimeout != 10*time.Second {
			t.Fatalf("settlement config %+v", cfg.Settlement)
		}
		if cfg.Redis.TTL != 5*time.Minute {
			t.Fatalf("redis ttl %v", cfg.Redis.TTL)
		}
		if !cfg.Payment.MockEnabled || cfg.Payment.Flutterwave.VerifHash != "hash-1" {
			t.Fatalf("payment config %+v", cfg.Payment)
		}
		if !cfg.Runtime.Dev {
			t.Fatal("dev flag should carry into runtime config")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		path := writeConfig(t, `
database:
  url: postgres://localhost:5432/settlement
redis:
  url: localhost:6379
`)
		cfg, err := LoadConfig(path, false)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.Server.Port != 8080 || cfg.Log.Level != "info" || cfg.Log.Format != "json" {
			t.Fatalf("defaults not applied: %+v", cfg)
		}
		if cfg.Settlement.CoinsPerUnit != 10 {
			t.Fatalf("coins per unit default, got %d", cfg.Settlement.CoinsPerUnit)
		}
		if cfg.Settlement.ReconcileInterval != time.Minute || cfg.Settlement.ReconcileStaleAfter != 10*time.Minute {
			t.Fatalf("reconciler defaults %+v", cfg.Settlement)
		}
		if cfg.Admin.SessionTTL != 30*time.Minute {
			t.Fatalf("session ttl default, got %v", cfg.Admin.SessionTTL)
		}
		if cfg.Redis.TTL != time.Hour {
			t.Fatalf("redis ttl default, got %v", cfg.Redis.TTL)
		}
	})

	t.Run("missing database url", func(t *testing.T) {
		path := writeConfig(t, `
redis:
  url: localhost:6379
`)
		if _, err := LoadConfig(path, false); err == nil {
			t.Fatal("expected error for missing database.url")
		}
	})

	t.Run("missing redis url", func(t *testing.T) {
		path := writeConfig(t, `
database:
  url: postgres://localhost:5432/settlement
`)
		if _, err := LoadConfig(path, false); err == nil {
			t.Fatal("expected error for missing redis.url")
		}
	})

	t.Run("nonexistent file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), false); err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, "::not yaml::")
		if _, err := LoadConfig(path, false); err == nil {
			t.Fatal("expected error for invalid yaml")
		}
	})
}
