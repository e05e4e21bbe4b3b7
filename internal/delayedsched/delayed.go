// Package delayedsched implements the delayed-message scheduler glue:
// arms/cancels timers that publish directly to a bound subscriber on
// expiry.
package delayedsched

import (
	"errors"
	"sync"
	"time"

	"github.com/adred-codev/busbox/internal/assert"
	"github.com/adred-codev/busbox/internal/message"
	"github.com/adred-codev/busbox/internal/pubsub"
)

// ErrInvalidState means the message already fired and hasn't been
// handled yet (refcount > 0 with the timer inactive) — the caller is
// warned it will see one more delivery before any new arming fires.
var ErrInvalidState = errors.New("delayedsched: message already fired and not yet handled")

// DelayedMessage wraps a static message with a timer and a bound
// subscriber. It has no explicit state field: idle/armed/in-flight is
// derived from (timerActive, refcount) so that a handler's eventual
// registry.Release — which nobody here needs to be told about — is
// exactly what brings the message back to idle.
type DelayedMessage struct {
	mu          sync.Mutex
	msg         *message.StaticMessage
	subscriber  *pubsub.Subscriber
	timer       *time.Timer
	timerActive bool
}

// New wraps msg (constructed quiescent, i.e. NewStaticMessage(...,
// true)) with sub as the bound delivery target.
func New(msg *message.StaticMessage, sub *pubsub.Subscriber) *DelayedMessage {
	return &DelayedMessage{msg: msg, subscriber: sub}
}

type phase int

const (
	phaseIdle phase = iota
	phaseArmed
	phaseInFlight
)

// phase must be called with mu held.
func (d *DelayedMessage) phase() phase {
	if d.timerActive {
		return phaseArmed
	}
	if d.msg.Header.Refcount() > 0 {
		return phaseInFlight
	}
	return phaseIdle
}

// Start arms the timer. The message must be idle.
func (d *DelayedMessage) Start(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	assert.That(d.phase() == phaseIdle, "delayedsched: Start called while not idle")
	d.arm(delay)
}

// arm must be called with mu held.
func (d *DelayedMessage) arm(delay time.Duration) {
	d.timerActive = true
	d.timer = time.AfterFunc(delay, d.fire)
}

func (d *DelayedMessage) fire() {
	d.mu.Lock()
	d.timerActive = false
	assert.That(d.msg.Header.Refcount() == 0, "delayedsched: fire observed a nonzero refcount")
	d.msg.Header.Acquire()
	blk := d.msg.Block()
	d.mu.Unlock()

	// Must not hold mu across a potentially blocking enqueue.
	_ = d.subscriber.PublishDirect(blk)
}

// UpdateTimeout aborts any existing arming, then re-arms. Returns
// ErrInvalidState if the message already fired but hasn't been handled.
func (d *DelayedMessage) UpdateTimeout(delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.phase() {
	case phaseInFlight:
		return ErrInvalidState
	case phaseArmed:
		d.timer.Stop()
		d.timerActive = false
	}
	d.arm(delay)
	return nil
}

// Abort cancels the timer. Returns ErrInvalidState if the message
// already fired but hasn't been handled yet.
func (d *DelayedMessage) Abort() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.phase() {
	case phaseArmed:
		d.timer.Stop()
		d.timerActive = false
		return nil
	case phaseInFlight:
		return ErrInvalidState
	default:
		return nil
	}
}
