package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/busbox/internal/message"
	"github.com/adred-codev/busbox/internal/message/slabpool"
)

func newTestBroker(t *testing.T, pool message.Pool) (*Broker, *message.Registry, uint8, context.CancelFunc) {
	t.Helper()
	reg := message.NewRegistry(zerolog.Nop())
	id, err := reg.Register(pool)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	b := NewBroker(reg, zerolog.Nop(), 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)
	return b, reg, id, cancel
}

// S1 — Basic callback fan-out.
func TestBrokerCallbackFanOut(t *testing.T) {
	pool := slabpool.New(8, 8)
	broker, reg, allocatorID, cancel := newTestBroker(t, pool)
	defer cancel()

	var received []uint16
	done := make(chan struct{}, 4)
	sub := NewCallbackSubscriber(reg, 3, 0)
	sub.SetHandler(func(msgID uint16, blk message.Block) {
		received = append(received, msgID)
		done <- struct{}{}
	})
	sub.Subscribe(0)
	sub.Subscribe(2)
	if err := broker.Attach(sub); err != nil {
		t.Fatalf("attach: %v", err)
	}

	for _, id := range []uint16{0, 1, 2, 3} {
		blk, err := reg.NewMessage(context.Background(), allocatorID, id)
		if err != nil {
			t.Fatalf("new message %d: %v", id, err)
		}
		broker.Publish(blk)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for callback delivery")
		}
	}
	time.Sleep(20 * time.Millisecond) // ensure no extra deliveries arrive

	if len(received) != 2 || received[0] != 0 || received[1] != 2 {
		t.Fatalf("received = %v, want [0 2]", received)
	}
	if pool.InUse() != 0 {
		t.Fatalf("pool InUse = %d, want 0", pool.InUse())
	}
}

// S2 — WorkQueue hand-off.
func TestBrokerWorkQueueHandoff(t *testing.T) {
	pool := slabpool.New(4, 8)
	broker, reg, allocatorID, cancel := newTestBroker(t, pool)
	defer cancel()

	var order []string
	s1 := NewWorkQueueSubscriber(reg, 10, 0, 4)
	s2 := NewWorkQueueSubscriber(reg, 10, 1, 4)
	s3 := NewWorkQueueSubscriber(reg, 10, 2, 4)
	s1.SetHandler(func(uint16, message.Block) { order = append(order, "s1") })
	s2.SetHandler(func(uint16, message.Block) { order = append(order, "s2") })
	s3.SetHandler(func(uint16, message.Block) { order = append(order, "s3") })
	for _, s := range []*Subscriber{s1, s2, s3} {
		s.Subscribe(5)
		if err := broker.Attach(s); err != nil {
			t.Fatalf("attach: %v", err)
		}
	}

	blk, err := reg.NewMessage(context.Background(), allocatorID, 5)
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	broker.Publish(blk)

	ctx, cancelH := context.WithTimeout(context.Background(), time.Second)
	defer cancelH()
	for _, s := range []*Subscriber{s1, s2, s3} {
		res, err := s.HandleOne(ctx)
		if err != nil || res != ResultHandled {
			t.Fatalf("HandleOne: res=%v err=%v", res, err)
		}
	}

	if len(order) != 3 || order[0] != "s1" || order[1] != "s2" || order[2] != "s3" {
		t.Fatalf("order = %v, want [s1 s2 s3]", order)
	}
	time.Sleep(10 * time.Millisecond)
	if pool.InUse() != 0 {
		t.Fatalf("pool InUse = %d, want 0", pool.InUse())
	}
}

// S3 — Priority within Mailbox.
func TestBrokerMailboxPriorityOrder(t *testing.T) {
	pool := slabpool.New(4, 8)
	broker, reg, allocatorID, cancel := newTestBroker(t, pool)
	defer cancel()

	priorities := []uint8{4, 3, 2, 1}
	subs := make([]*Subscriber, len(priorities))
	for i, p := range priorities {
		s := NewMailboxSubscriber(reg, 10, p, 4)
		s.Subscribe(7)
		subs[i] = s
		if err := broker.Attach(s); err != nil {
			t.Fatalf("attach: %v", err)
		}
	}

	// The broker enqueues in list order, so the list must hold the
	// subscribers by ascending priority regardless of attach order.
	broker.mu.Lock()
	var listed []uint8
	for cur := broker.head; cur != nil; cur = cur.next {
		listed = append(listed, cur.priority)
	}
	broker.mu.Unlock()
	if len(listed) != 4 || listed[0] != 1 || listed[1] != 2 || listed[2] != 3 || listed[3] != 4 {
		t.Fatalf("list priorities = %v, want [1 2 3 4]", listed)
	}

	blk, err := reg.NewMessage(context.Background(), allocatorID, 7)
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	broker.Publish(blk)

	// Every subscriber receives the message.
	byPriority := []*Subscriber{subs[3], subs[2], subs[1], subs[0]} // priorities 1,2,3,4
	for _, s := range byPriority {
		ctx, cancelH := context.WithTimeout(context.Background(), time.Second)
		res, err := s.HandleOne(ctx)
		cancelH()
		if err != nil || res != ResultHandled {
			t.Fatalf("HandleOne for priority %d: res=%v err=%v", s.Priority(), res, err)
		}
	}
}
