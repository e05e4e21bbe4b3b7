package admission

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/busbox/internal/message"
	"github.com/adred-codev/busbox/internal/message/slabpool"
	"github.com/adred-codev/busbox/internal/pubsub"
)

func newTestLimiter(t *testing.T, ratePerSecond float64, burst int) (*Limiter, *message.Registry, uint8, context.CancelFunc) {
	t.Helper()
	pool := slabpool.New(8, 8)
	reg := message.NewRegistry(zerolog.Nop())
	allocatorID, err := reg.Register(pool)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	broker := pubsub.NewBroker(reg, zerolog.Nop(), 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	broker.Start(ctx)
	return New(broker, ratePerSecond, burst), reg, allocatorID, cancel
}

func TestLimiterAdmitsWithinBurst(t *testing.T) {
	limiter, reg, allocatorID, cancel := newTestLimiter(t, 1, 2)
	defer cancel()

	for i := 0; i < 2; i++ {
		blk, err := reg.NewMessage(context.Background(), allocatorID, 1)
		if err != nil {
			t.Fatalf("new message: %v", err)
		}
		if err := limiter.Publish(blk); err != nil {
			t.Fatalf("Publish %d: %v, want nil", i, err)
		}
	}
}

func TestLimiterThrottlesPastBurst(t *testing.T) {
	limiter, reg, allocatorID, cancel := newTestLimiter(t, 1, 1)
	defer cancel()

	blk1, err := reg.NewMessage(context.Background(), allocatorID, 1)
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if err := limiter.Publish(blk1); err != nil {
		t.Fatalf("first Publish: %v, want nil", err)
	}

	blk2, err := reg.NewMessage(context.Background(), allocatorID, 1)
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if err := limiter.Publish(blk2); err != ErrPublishThrottled {
		t.Fatalf("second Publish = %v, want ErrPublishThrottled", err)
	}

	// blk2 was never handed to the broker — its reference is still live
	// and must be released by the caller.
	reg.Release(blk2)

	time.Sleep(1100 * time.Millisecond)
	blk3, err := reg.NewMessage(context.Background(), allocatorID, 1)
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if err := limiter.Publish(blk3); err != nil {
		t.Fatalf("Publish after refill: %v, want nil", err)
	}
}
