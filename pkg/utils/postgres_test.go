package utils

import (
	"context"
	"testing"
	"time"
)

func TestPostgresPoolDefaults(t *testing.T) {
	c := PostgresPoolConfig{MaxOpenConns: 8}.withDefaults()
	if c.MaxIdleConns != 8 {
		t.Fatalf("expected idle conns to follow open conns, got %d", c.MaxIdleConns)
	}
	if c.PingTimeout != 5*time.Second {
		t.Fatalf("expected 5s ping timeout, got %s", c.PingTimeout)
	}
}

func TestHealthCheck_NilDB(t *testing.T) {
	if err := HealthCheck(context.Background(), nil, time.Second); err == nil {
		t.Fatalf("expected error for nil db")
	}
}
