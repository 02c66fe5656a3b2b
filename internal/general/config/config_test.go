package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db.internal
  user: svc
  password: secret
  name: servicelink
rabbitmq:
  user: guest
  password: guest
tracking:
  sweep_interval: 1m
  sample_ttl: 10m
  assumed_speed_kmh: 40
  subscriber_cap: 100
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Database.Host != "db.internal" || cfg.Database.Name != "servicelink" {
		t.Fatalf("database section not parsed: %+v", cfg.Database)
	}
	if cfg.Tracking.SweepInterval != time.Minute || cfg.Tracking.SampleTTL != 10*time.Minute {
		t.Fatalf("tracking durations not parsed: %+v", cfg.Tracking)
	}
	if cfg.Tracking.AssumedSpeedKMH != 40 || cfg.Tracking.SubscriberCap != 100 {
		t.Fatalf("tracking tuning not parsed: %+v", cfg.Tracking)
	}

	// defaults fill in the unset fields
	if cfg.Database.Port != 5432 || cfg.RabbitMQ.Port != 5672 || cfg.HTTP.Port != 3002 {
		t.Fatalf("port defaults missing: db=%d mq=%d http=%d", cfg.Database.Port, cfg.RabbitMQ.Port, cfg.HTTP.Port)
	}
	if cfg.JWT.SecretKey == "" {
		t.Fatal("a JWT secret should be generated when none is configured")
	}
}

func TestLoadDefaultsTracking(t *testing.T) {
	path := writeConfig(t, `
database:
  user: svc
  password: secret
  name: servicelink
rabbitmq:
  user: guest
  password: guest
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tracking.SweepInterval != 5*time.Minute {
		t.Fatalf("sweep_interval default = %v", cfg.Tracking.SweepInterval)
	}
	if cfg.Tracking.SampleTTL != 30*time.Minute {
		t.Fatalf("sample_ttl default = %v", cfg.Tracking.SampleTTL)
	}
	if cfg.Tracking.AssumedSpeedKMH != 30 {
		t.Fatalf("assumed_speed_kmh default = %v", cfg.Tracking.AssumedSpeedKMH)
	}
	if cfg.Tracking.SubscriberCap != 0 {
		t.Fatalf("subscriber_cap should default to unlimited, got %d", cfg.Tracking.SubscriberCap)
	}
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	path := writeConfig(t, `
database:
  user: svc
rabbitmq:
  user: guest
  password: guest
`)

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("missing database credentials should fail validation")
	}
	for _, want := range []string{"database.password", "database.name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "database: [not a mapping")
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("malformed yaml should fail")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file should fail")
	}
}
