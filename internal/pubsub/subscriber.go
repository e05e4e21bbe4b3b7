// Package pubsub implements the subscriber and broker: priority-ordered
// fan-out dispatch across three delivery disciplines.
package pubsub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/adred-codev/busbox/internal/message"
)

// Discipline is a subscriber's delivery mechanism.
type Discipline int

const (
	DisciplineCallback Discipline = iota
	DisciplineMailbox
	DisciplineWorkQueue
)

func (d Discipline) String() string {
	switch d {
	case DisciplineCallback:
		return "callback"
	case DisciplineMailbox:
		return "mailbox"
	case DisciplineWorkQueue:
		return "workqueue"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidTarget means the msg id isn't a legal target for the
	// requested operation (e.g. publish_direct on a public id).
	ErrInvalidTarget = errors.New("pubsub: invalid target msg id")
	// ErrNotApplicable means the operation doesn't apply to this
	// subscriber's discipline (e.g. handle_one on a Callback subscriber).
	ErrNotApplicable = errors.New("pubsub: not applicable to this discipline")
)

// Result is handle_one's outcome.
type Result int

const (
	ResultHandled Result = iota
	ResultTimeout
	ResultNotApplicable
)

// HandlerFunc is a subscriber's handler. It must be fast and
// non-blocking for Callback discipline, since it runs synchronously
// inside the broker's dispatch loop holding list_mutex.
type HandlerFunc func(msgID uint16, blk message.Block)

// Subscriber is a delivery endpoint attached to at most one Broker at a
// time. Construct with New*Subscriber, call SetHandler, then Attach to a
// Broker.
type Subscriber struct {
	broker atomic.Pointer[Broker] // weak back-reference, cleared on detach

	bitmap      []atomic.Uint64
	maxPubMsgID uint16
	discipline  Discipline
	priority    uint8

	handlerMu sync.Mutex
	handler   HandlerFunc

	queue    chan message.Block // nil for Callback
	registry *message.Registry  // only needed by Mailbox/WorkQueue release path

	next *Subscriber // owned by the attached Broker's list
}

func newSubscriber(discipline Discipline, maxPubMsgID uint16, priority uint8) *Subscriber {
	return &Subscriber{
		bitmap:      make([]atomic.Uint64, maxPubMsgID/64+1),
		maxPubMsgID: maxPubMsgID,
		discipline:  discipline,
		priority:    priority,
	}
}

// NewCallbackSubscriber constructs a Callback-discipline subscriber: the
// handler runs synchronously inside the broker's dispatch loop, no
// storage of its own. registry may be nil if this subscriber is only
// ever reached through normal broker fan-out (which releases the
// publisher's reference itself) and never through PublishDirect.
func NewCallbackSubscriber(registry *message.Registry, maxPubMsgID uint16, priority uint8) *Subscriber {
	s := newSubscriber(DisciplineCallback, maxPubMsgID, priority)
	s.registry = registry
	return s
}

// NewMailboxSubscriber constructs a Mailbox-discipline subscriber backed
// by a bounded queue of capacity. The broker enqueues with an unbounded
// wait, so capacity governs memory, not correctness.
func NewMailboxSubscriber(registry *message.Registry, maxPubMsgID uint16, priority uint8, capacity int) *Subscriber {
	s := newSubscriber(DisciplineMailbox, maxPubMsgID, priority)
	s.queue = make(chan message.Block, capacity)
	s.registry = registry
	return s
}

// NewWorkQueueSubscriber constructs a WorkQueue-discipline subscriber.
// capacity bounds its own FIFO; hand-off to the next matching subscriber
// happens after HandleOne's handler call returns.
func NewWorkQueueSubscriber(registry *message.Registry, maxPubMsgID uint16, priority uint8, capacity int) *Subscriber {
	s := newSubscriber(DisciplineWorkQueue, maxPubMsgID, priority)
	s.queue = make(chan message.Block, capacity)
	s.registry = registry
	return s
}

func (s *Subscriber) Discipline() Discipline { return s.discipline }
func (s *Subscriber) Priority() uint8        { return s.priority }
func (s *Subscriber) MaxPubMsgID() uint16    { return s.maxPubMsgID }

// SetHandler must be called before Attach. After attach it is mutable
// only from inside the handler itself (single-writer discipline).
func (s *Subscriber) SetHandler(fn HandlerFunc) {
	s.handlerMu.Lock()
	s.handler = fn
	s.handlerMu.Unlock()
}

// SetPriority is only meaningful before Attach; changing it afterward has
// no effect on an already-inserted list position.
func (s *Subscriber) SetPriority(p uint8) {
	if s.broker.Load() != nil {
		return
	}
	s.priority = p
}

func (s *Subscriber) bit(msgID uint16) (word int, mask uint64) {
	return int(msgID / 64), uint64(1) << (msgID % 64)
}

// Subscribe sets the bitmap bit for msgID.
func (s *Subscriber) Subscribe(msgID uint16) error {
	if msgID > s.maxPubMsgID {
		return ErrInvalidTarget
	}
	word, mask := s.bit(msgID)
	for {
		old := s.bitmap[word].Load()
		next := old | mask
		if old == next || s.bitmap[word].CompareAndSwap(old, next) {
			return nil
		}
	}
}

// Unsubscribe clears the bitmap bit for msgID. A message already queued
// at the moment of unsubscribe is still delivered.
func (s *Subscriber) Unsubscribe(msgID uint16) error {
	if msgID > s.maxPubMsgID {
		return ErrInvalidTarget
	}
	word, mask := s.bit(msgID)
	for {
		old := s.bitmap[word].Load()
		next := old &^ mask
		if old == next || s.bitmap[word].CompareAndSwap(old, next) {
			return nil
		}
	}
}

func (s *Subscriber) subscribed(msgID uint16) bool {
	if msgID > s.maxPubMsgID {
		return false
	}
	word, mask := s.bit(msgID)
	return s.bitmap[word].Load()&mask != 0
}

func (s *Subscriber) invokeHandler(msgID uint16, blk message.Block) {
	s.handlerMu.Lock()
	h := s.handler
	s.handlerMu.Unlock()
	if h != nil {
		h(msgID, blk)
	}
}

// enqueue delivers blk into this subscriber's own FIFO, blocking
// (unbounded wait) until there's room — matching the broker's
// K_FOREVER-style enqueue semantics.
func (s *Subscriber) enqueue(blk message.Block) {
	s.queue <- blk
}

// HandleOne dequeues one message, invokes the handler, hands off to the
// next matching WorkQueue subscriber if applicable, then releases the
// reference. Returns NotApplicable for Callback subscribers.
func (s *Subscriber) HandleOne(ctx context.Context) (Result, error) {
	if s.discipline == DisciplineCallback {
		return ResultNotApplicable, ErrNotApplicable
	}
	select {
	case blk := <-s.queue:
		msgID := blk.Header.MsgID()
		s.invokeHandler(msgID, blk)
		if s.discipline == DisciplineWorkQueue {
			if b := s.broker.Load(); b != nil {
				b.handoff(s, blk)
			}
		}
		s.registry.Release(blk)
		return ResultHandled, nil
	case <-ctx.Done():
		return ResultTimeout, nil
	}
}

// PollSource exposes the underlying queue so an external event loop can
// select across multiple subscribers. NotApplicable for Callback.
func (s *Subscriber) PollSource() (<-chan message.Block, error) {
	if s.discipline == DisciplineCallback {
		return nil, ErrNotApplicable
	}
	return s.queue, nil
}

// PublishDirect delivers blk to this subscriber bypassing subscription
// checks. Only legal for private ids (msgID > maxPubMsgID) so it can
// never collide with broker fan-out.
func (s *Subscriber) PublishDirect(blk message.Block) error {
	msgID := blk.Header.MsgID()
	if msgID <= s.maxPubMsgID {
		return ErrInvalidTarget
	}
	switch s.discipline {
	case DisciplineCallback:
		s.invokeHandler(msgID, blk)
		if s.registry != nil {
			s.registry.Release(blk)
		}
	default:
		s.enqueue(blk)
	}
	return nil
}
