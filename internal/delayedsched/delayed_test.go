package delayedsched

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/busbox/internal/message"
	"github.com/adred-codev/busbox/internal/pubsub"
)

// S6 — Delayed msg abort after fire.
func TestDelayedMessageAbortAfterFire(t *testing.T) {
	reg := message.NewRegistry(zerolog.Nop())
	sub := pubsub.NewMailboxSubscriber(reg, 10, 0, 4)

	// msgID must be private (> sub's max_pub_msg_id) for publish_direct.
	msg := message.NewStaticMessage(42, nil, true)
	dm := New(msg, sub)

	dm.Start(30 * time.Millisecond)
	time.Sleep(80 * time.Millisecond) // let it fire; do not handle yet

	if err := dm.Abort(); err != ErrInvalidState {
		t.Fatalf("Abort after fire = %v, want ErrInvalidState", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := sub.HandleOne(ctx)
	if err != nil || res != pubsub.ResultHandled {
		t.Fatalf("HandleOne: res=%v err=%v", res, err)
	}

	time.Sleep(10 * time.Millisecond)
	if got := msg.Header.Refcount(); got != 0 {
		t.Fatalf("refcount after handling = %d, want 0 (idle)", got)
	}

	if err := dm.Abort(); err != nil {
		t.Fatalf("Abort with no arming = %v, want nil", err)
	}
}

func TestDelayedMessageUpdateTimeoutReArms(t *testing.T) {
	reg := message.NewRegistry(zerolog.Nop())
	sub := pubsub.NewMailboxSubscriber(reg, 10, 0, 4)
	msg := message.NewStaticMessage(42, nil, true)
	dm := New(msg, sub)

	dm.Start(time.Hour) // effectively never, for this test
	if err := dm.UpdateTimeout(20 * time.Millisecond); err != nil {
		t.Fatalf("UpdateTimeout: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := sub.HandleOne(ctx)
	if err != nil || res != pubsub.ResultHandled {
		t.Fatalf("HandleOne: res=%v err=%v", res, err)
	}
}
