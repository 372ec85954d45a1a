package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolConfig_Defaults(t *testing.T) {
	cfg := PostgresPoolConfig{}.withDefaults()
	if cfg.MaxOpenConns <= 0 || cfg.MaxIdleConns <= 0 {
		t.Fatalf("expected positive pool defaults, got %+v", cfg)
	}
	if cfg.PingTimeout <= 0 {
		t.Fatalf("expected ping timeout default")
	}
}

func TestPostgresPoolConfig_KeepsExplicitValues(t *testing.T) {
	cfg := PostgresPoolConfig{MaxOpenConns: 5, PingTimeout: time.Second}.withDefaults()
	if cfg.MaxOpenConns != 5 {
		t.Fatalf("expected explicit MaxOpenConns kept, got %d", cfg.MaxOpenConns)
	}
	if cfg.PingTimeout != time.Second {
		t.Fatalf("expected explicit PingTimeout kept, got %v", cfg.PingTimeout)
	}
}
