// Package natsbridge exports pool/HSM stats to a NATS subject on
// an interval, and listens on a control subject that can trigger a
// static message's republish — optional export/control tooling, never a
// transport for in-process fan-out.
package natsbridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/adred-codev/busbox/internal/message"
	"github.com/adred-codev/busbox/internal/pubsub"
)

// StatsProvider supplies the snapshot Bridge exports. Callers typically
// implement this by closing over a slabpool.Pool and an hsm.Engine.
type StatsProvider func() Stats

// Stats is one exported snapshot.
type Stats struct {
	PoolBlocksInUse int    `json:"pool_blocks_in_use"`
	HSMCurrentState string `json:"hsm_current_state,omitempty"`
}

// Bridge periodically publishes Stats to a NATS subject and can accept a
// control message that republishes a bound static message.
type Bridge struct {
	nc       *nats.Conn
	logger   zerolog.Logger
	subject  string
	provider StatsProvider
}

// New connects to a NATS server at url (e.g. nats.DefaultURL) and
// prepares a Bridge that will publish under subject.
func New(url, subject string, provider StatsProvider, logger zerolog.Logger) (*Bridge, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Bridge{nc: nc, logger: logger, subject: subject, provider: provider}, nil
}

// Close drains and closes the NATS connection.
func (b *Bridge) Close() {
	b.nc.Drain()
}

// StartExport publishes a Stats snapshot every interval until ctx is done.
func (b *Bridge) StartExport(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.export()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (b *Bridge) export() {
	payload, err := json.Marshal(b.provider())
	if err != nil {
		b.logger.Warn().Err(err).Msg("natsbridge: failed to marshal stats")
		return
	}
	if err := b.nc.Publish(b.subject, payload); err != nil {
		b.logger.Warn().Err(err).Msg("natsbridge: failed to publish stats")
	}
}

// RepublishControl subscribes to controlSubject; any message received
// there re-initializes msg (StaticMessage.Reinit) and publishes it
// through sub, for demo/operator-triggered republication.
func (b *Bridge) RepublishControl(controlSubject string, msgID uint16, msg *message.StaticMessage, sub *pubsub.Subscriber) (*nats.Subscription, error) {
	return b.nc.Subscribe(controlSubject, func(_ *nats.Msg) {
		msg.Reinit(msgID)
		sub.PublishDirect(msg.Block())
	})
}
