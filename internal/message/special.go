package message

// StaticMessage wraps storage owned by the program, never a Pool. Its
// allocator id is the reserved static value, and release() on the final
// decrement is a no-op — the message is simply idle again and may be
// republished without reinitialization.
type StaticMessage struct {
	Header  Header
	Payload []byte
}

// NewStaticMessage constructs a static message. initiallyQuiescent picks
// between two initial-refcount conventions: quiescent (refcount 0, for a
// message that must be armed/published before anyone holds a reference —
// the shape delayedsched.DelayedMessage needs) or ready (refcount 1, for
// a message about to be published immediately).
func NewStaticMessage(msgID uint16, payload []byte, initiallyQuiescent bool) *StaticMessage {
	sm := &StaticMessage{Payload: payload}
	refcount := uint8(1)
	if initiallyQuiescent {
		refcount = 0
	}
	sm.Header.Init(msgID, AllocatorIDStatic, refcount)
	return sm
}

// Block returns the header+payload pair for publishing.
func (sm *StaticMessage) Block() Block {
	return Block{Header: &sm.Header, Payload: sm.Payload}
}

// Reinit restores msgID and a fresh refcount of 1. Legal any time the
// message is idle (refcount 0), before the first acquire of a given
// publish cycle.
func (sm *StaticMessage) Reinit(msgID uint16) {
	sm.Header.Init(msgID, AllocatorIDStatic, 1)
}

// CallbackMessage embeds a function invoked on the 1→0 refcount
// transition instead of returning storage to a pool. The callback may
// republish the message only after Reinit, which is the explicit,
// required gate against reusing a message that's already back in flight.
type CallbackMessage struct {
	Header         Header
	Payload        []byte
	onFinalRelease func(*CallbackMessage)
}

// NewCallbackMessage constructs a callback message and registers it with
// r so Registry.Release can find the callback by header identity when the
// final reference drops.
func (r *Registry) NewCallbackMessage(msgID uint16, payload []byte, onFinalRelease func(*CallbackMessage)) *CallbackMessage {
	cm := &CallbackMessage{Payload: payload, onFinalRelease: onFinalRelease}
	cm.Header.Init(msgID, AllocatorIDCallback, 1)
	r.registerCallback(&cm.Header, cm)
	return cm
}

func (cm *CallbackMessage) Block() Block {
	return Block{Header: &cm.Header, Payload: cm.Payload}
}

// Reinit restores msgID and refcount 1, permitting republication after
// the callback has run.
func (cm *CallbackMessage) Reinit(msgID uint16) {
	cm.Header.Init(msgID, AllocatorIDCallback, 1)
}
