package utils

import (
	"context"
	"testing"
	"time"
)

func TestDeliveryScriptsCompile(t *testing.T) {
	if claimDeliveryScript == nil || releaseDeliveryScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
	if claimDeliveryScript.Hash() == releaseDeliveryScript.Hash() {
		t.Fatalf("expected distinct script hashes")
	}
}

func TestClaimDelivery_ValidatesArguments(t *testing.T) {
	ctx := context.Background()
	if _, err := ClaimDelivery(ctx, nil, "k", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestRedisConfigDefaults(t *testing.T) {
	c := RedisConfig{}.withDefaults()
	if c.PoolSize != 20 || c.ReadTimeout != time.Second || c.PingTimeout != 2*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}
