// Package admission wraps Broker.Publish with a token-bucket admission
// check built on golang.org/x/time/rate. Exhaustion is a recoverable
// result — ErrPublishThrottled — never a block; producers decide whether
// to retry.
package admission

import (
	"errors"

	"golang.org/x/time/rate"

	"github.com/adred-codev/busbox/internal/message"
	"github.com/adred-codev/busbox/internal/pubsub"
)

// ErrPublishThrottled means the publish-rate token bucket had no tokens
// available right now.
var ErrPublishThrottled = errors.New("admission: publish rate exceeded")

// Limiter gates Broker.Publish behind a token bucket.
type Limiter struct {
	broker  *pubsub.Broker
	limiter *rate.Limiter
}

// New wraps broker with a token bucket allowing ratePerSecond sustained
// publishes and up to burst in a single instant.
func New(broker *pubsub.Broker, ratePerSecond float64, burst int) *Limiter {
	return &Limiter{
		broker:  broker,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Publish admits blk if a token is available, else returns
// ErrPublishThrottled without touching blk's refcount or enqueueing it —
// the caller retains ownership and may retry or release it.
func (l *Limiter) Publish(blk message.Block) error {
	if !l.limiter.Allow() {
		return ErrPublishThrottled
	}
	l.broker.Publish(blk)
	return nil
}
