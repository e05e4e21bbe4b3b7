package pubsub

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/adred-codev/busbox/internal/assert"
	"github.com/adred-codev/busbox/internal/message"
)

// ErrAlreadyAttached describes the double-attach programming error.
// Attach asserts (panics) with it rather than returning it.
var ErrAlreadyAttached = errors.New("pubsub: subscriber already attached to a broker")

const defaultPublishQueueCapacity = 4096

// Broker is the fan-out engine for one bus instance: ordered subscriber
// list, publish queue, single dispatch worker.
type Broker struct {
	mu   sync.Mutex // list_mutex
	head *Subscriber

	queue    chan message.Block
	registry *message.Registry
	logger   zerolog.Logger
	metrics  Metrics

	cancel context.CancelFunc
	done    chan struct{}
}

// Metrics lets callers observe dispatch without pubsub importing a
// concrete metrics backend; telemetry.BrokerMetrics implements this.
type Metrics interface {
	ObserveDispatch(msgID uint16, discipline Discipline)
}

type noopMetrics struct{}

func (noopMetrics) ObserveDispatch(uint16, Discipline) {}

// NewBroker constructs a Broker. Pass queueCapacity <= 0 for a sensible
// default.
func NewBroker(registry *message.Registry, logger zerolog.Logger, queueCapacity int, metrics Metrics) *Broker {
	if queueCapacity <= 0 {
		queueCapacity = defaultPublishQueueCapacity
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Broker{
		queue:    make(chan message.Block, queueCapacity),
		registry: registry,
		logger:   logger,
		metrics:  metrics,
	}
}

// Start launches the dispatch worker. Stop it by cancelling ctx, or by
// calling Shutdown.
func (b *Broker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.worker(ctx)
}

// Shutdown stops the dispatch worker and waits for it to exit.
func (b *Broker) Shutdown() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
}

func (b *Broker) worker(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case blk := <-b.queue:
			b.process(blk)
			b.drainWithoutBlocking()
		case <-ctx.Done():
			return
		}
	}
}

func (b *Broker) drainWithoutBlocking() {
	for {
		select {
		case blk := <-b.queue:
			b.process(blk)
		default:
			return
		}
	}
}

// Publish enqueues msg. Ownership transfers: the caller must not touch
// the message afterward. The broker does not acquire — it holds exactly
// the single reference the caller handed it.
func (b *Broker) Publish(blk message.Block) {
	b.queue <- blk
}

func orderKey(d Discipline, priority uint8) uint16 {
	return uint16(d)<<8 | uint16(priority)
}

// Attach inserts s into the ordered subscriber list (discipline, then
// priority, then insertion order) and records the back-reference.
// Attaching a subscriber that is already attached to a broker asserts;
// the returned error is always nil.
func (b *Broker) Attach(s *Subscriber) error {
	assert.That(s.broker.Load() == nil, "%v", ErrAlreadyAttached)
	b.mu.Lock()
	defer b.mu.Unlock()

	key := orderKey(s.discipline, s.priority)
	var prev *Subscriber
	cur := b.head
	for cur != nil && orderKey(cur.discipline, cur.priority) <= key {
		prev = cur
		cur = cur.next
	}
	s.next = cur
	if prev == nil {
		b.head = s
	} else {
		prev.next = s
	}
	s.broker.Store(b)
	return nil
}

// Detach removes s from the list and clears its back-reference.
// Subscription bitmap is preserved.
func (b *Broker) Detach(s *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var prev *Subscriber
	cur := b.head
	for cur != nil && cur != s {
		prev = cur
		cur = cur.next
	}
	if cur == nil {
		return
	}
	if prev == nil {
		b.head = cur.next
	} else {
		prev.next = cur.next
	}
	cur.next = nil
	s.broker.Store(nil)
}

// process delivers one message to every matching subscriber in list
// order, then drops the publisher's original reference.
func (b *Broker) process(blk message.Block) {
	msgID := blk.Header.MsgID()

	b.mu.Lock()
dispatch:
	for cur := b.head; cur != nil; cur = cur.next {
		if !cur.subscribed(msgID) {
			continue
		}
		switch cur.discipline {
		case DisciplineCallback:
			cur.invokeHandler(msgID, blk)
			b.metrics.ObserveDispatch(msgID, DisciplineCallback)
		case DisciplineMailbox:
			blk.Header.Acquire()
			cur.enqueue(blk)
			b.metrics.ObserveDispatch(msgID, DisciplineMailbox)
		case DisciplineWorkQueue:
			blk.Header.Acquire()
			cur.enqueue(blk)
			b.metrics.ObserveDispatch(msgID, DisciplineWorkQueue)
			break dispatch
		}
	}
	b.mu.Unlock()

	b.registry.Release(blk)
}

// handoff forwards blk to the next WorkQueue subscriber after from whose
// bitmap matches, under list_mutex so detach cannot race a chain in
// flight.
func (b *Broker) handoff(from *Subscriber, blk message.Block) {
	msgID := blk.Header.MsgID()
	b.mu.Lock()
	defer b.mu.Unlock()
	for cur := from.next; cur != nil; cur = cur.next {
		if cur.discipline != DisciplineWorkQueue {
			continue
		}
		if !cur.subscribed(msgID) {
			continue
		}
		blk.Header.Acquire()
		cur.enqueue(blk)
		return
	}
}
