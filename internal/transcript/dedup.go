package transcript

import (
	"context"
	"sync"
	"time"

	"calorie-coach/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const (
	defaultInFlightTTL  = 30 * time.Second
	defaultDeliveredTTL = 7 * 24 * time.Hour

	inFlightMargin = 10 * time.Second
)

// InFlightTTL is how long a delivery claim lives. It must outlast one forward
// attempt, or a resend could claim the key while the first forward is running.
func InFlightTTL(forwardTimeout time.Duration) time.Duration {
	if ttl := forwardTimeout + inFlightMargin; ttl > defaultInFlightTTL {
		return ttl
	}
	return defaultInFlightTTL
}

// Deduper tracks which completion events were already handed to the workflow
// processor, so agent resends are acknowledged without a second delivery.
type Deduper interface {
	Claim(ctx context.Context, key string) (utils.ClaimState, error)
	Done(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// DeliveryKey identifies one completion event.
func DeliveryKey(callLogID, conversationID string) string {
	return "transcript:delivery:" + callLogID + ":" + conversationID
}

type RedisDeduper struct {
	rdb          redis.UniversalClient
	inFlightTTL  time.Duration
	deliveredTTL time.Duration
}

// NewRedisDeduper sizes the in-flight claim from the workflow forward timeout.
func NewRedisDeduper(rdb redis.UniversalClient, forwardTimeout time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, inFlightTTL: InFlightTTL(forwardTimeout), deliveredTTL: defaultDeliveredTTL}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (utils.ClaimState, error) {
	return utils.ClaimDelivery(ctx, d.rdb, key, d.inFlightTTL)
}

func (d *RedisDeduper) Done(ctx context.Context, key string) error {
	return utils.MarkDelivered(ctx, d.rdb, key, d.deliveredTTL)
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return utils.ReleaseDelivery(ctx, d.rdb, key)
}

// MemoryDeduper is a process-local Deduper for tests and single-instance local runs.
type MemoryDeduper struct {
	mu    sync.Mutex
	state map[string]utils.ClaimState
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{state: map[string]utils.ClaimState{}}
}

func (d *MemoryDeduper) Claim(ctx context.Context, key string) (utils.ClaimState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.state[key]; ok {
		return st, nil
	}
	d.state[key] = utils.ClaimInFlight
	return utils.ClaimAcquired, nil
}

func (d *MemoryDeduper) Done(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state[key] = utils.ClaimDelivered
	return nil
}

func (d *MemoryDeduper) Release(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state[key] == utils.ClaimInFlight {
		delete(d.state, key)
	}
	return nil
}
