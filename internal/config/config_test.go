package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_NAME", "APP_ENV", "PORT", "LOG_LEVEL", "DATABASE_URL", "REDIS_URL",
		shutdownSecondsEnvVar, shutdownDurationEnvVar, idemTTLSecondsEnvVar, idemTTLDurEnvVar,
		"WITHDRAWAL_FEE", "SUPER_ADMIN_ID", "DB_AUTOMIGRATE", "KAFKA_BROKERS", "KAFKA_TOPIC",
		"FUND_REQUEST_RATE_LIMIT", "DB_MAX_CONNS",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultsInDevelopment(t *testing.T) {
	clearEnv(t)
	cfg, err := fromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsDev() || cfg.Address() != ":8080" || cfg.SuperAdminID != "root" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.WithdrawalFee != 0 || cfg.IdempotencyTTL != 24*time.Hour || cfg.ShutdownPeriod != 10*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected no brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestParsesValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("WITHDRAWAL_FEE", "50.00")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv(idemTTLSecondsEnvVar, "60")
	t.Setenv(shutdownDurationEnvVar, "3s")
	t.Setenv("DB_AUTOMIGRATE", "true")
	t.Setenv("PORT", ":9000")
	t.Setenv("DB_MAX_CONNS", "12")

	cfg, err := fromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WithdrawalFee != 5000 {
		t.Fatalf("expected fee 5000 paise, got %d", cfg.WithdrawalFee)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.IdempotencyTTL != time.Minute || cfg.ShutdownPeriod != 3*time.Second || !cfg.AutoMigrate {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.DBMaxConns != 12 {
		t.Fatalf("expected 12 pool conns, got %d", cfg.DBMaxConns)
	}
	if cfg.Address() != ":9000" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}

func TestRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"negative fee":          {"WITHDRAWAL_FEE": "-1"},
		"fractional paise":      {"WITHDRAWAL_FEE": "0.001"},
		"bad ttl":               {idemTTLSecondsEnvVar: "soon"},
		"bad automigrate":       {"DB_AUTOMIGRATE": "maybe"},
		"negative pool size":    {"DB_MAX_CONNS": "-2"},
		"production without db": {"APP_ENV": "production", "REDIS_URL": "redis://localhost:6379"},
		"production without redis": {
			"APP_ENV": "production", "DATABASE_URL": "postgres://localhost/ledger",
		},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := fromEnv(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
