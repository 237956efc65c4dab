package config

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	t.Setenv("CODEREVIEW_SESSION_SIGNING_SECRET", testSecret)
	t.Setenv("CODEREVIEW_APP_PORT", "9000")
	t.Setenv("CODEREVIEW_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("CODEREVIEW_RESET_NOTIFY_TIMEOUT", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Port != 9000 {
		t.Fatalf("expected port 9000, got %d", cfg.App.Port)
	}
	if cfg.Session.TTL != 168*time.Hour {
		t.Fatalf("expected default session ttl of 7 days, got %v", cfg.Session.TTL)
	}
	if cfg.Reset.NotifyTimeout != 2*time.Second {
		t.Fatalf("expected notify timeout 2s, got %v", cfg.Reset.NotifyTimeout)
	}
	if cfg.Reset.Store != ResetStorePostgres {
		t.Fatalf("expected postgres reset store, got %q", cfg.Reset.Store)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.App.DevMode {
		t.Fatal("dev mode must be off by default")
	}
}

func TestLoadRejectsMissingSigningSecret(t *testing.T) {
	t.Setenv("CODEREVIEW_SESSION_SIGNING_SECRET", "short")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for short signing secret")
	}
}

func TestLoadPostgresSkipsServiceValidation(t *testing.T) {
	t.Setenv("CODEREVIEW_SESSION_SIGNING_SECRET", "")
	t.Setenv("CODEREVIEW_POSTGRES_HOST", "db.internal")

	pg, err := LoadPostgres()
	if err != nil {
		t.Fatalf("LoadPostgres returned error: %v", err)
	}
	if pg.Host != "db.internal" || pg.Port != 5432 {
		t.Fatalf("unexpected postgres settings: %+v", pg)
	}
}

func TestValidate(t *testing.T) {
	base := func() AppConfig {
		return AppConfig{
			App:     AppSettings{Env: "development", FrontendBaseURL: "http://localhost:3000"},
			Session: SessionSettings{SigningSecret: testSecret, TTL: time.Hour},
			Reset:   ResetSettings{Store: ResetStorePostgres},
		}
	}

	cases := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*AppConfig) {}},
		{
			name: "dev mode in production",
			mutate: func(c *AppConfig) {
				c.App.Env = "production"
				c.App.DevMode = true
			},
			wantErr: "dev_mode",
		},
		{
			name:    "redis store without redis",
			mutate:  func(c *AppConfig) { c.Reset.Store = ResetStoreRedis },
			wantErr: "redis.enabled",
		},
		{
			name:    "unknown store",
			mutate:  func(c *AppConfig) { c.Reset.Store = "memory" },
			wantErr: "not supported",
		},
		{
			name:    "missing frontend url",
			mutate:  func(c *AppConfig) { c.App.FrontendBaseURL = " " },
			wantErr: "frontend_base_url",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
