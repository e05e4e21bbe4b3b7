// Package hsm implements the hierarchical state machine engine:
// state-function dispatch, entry/exit walks and the least-common-ancestor
// transition algorithm.
//
// Reserved Walk/Entry/Exit signals are delivered as plain synchronous Go
// calls rather than routed through pubsub — they're ephemeral
// control-flow between an HSM and its own states, never pooled or
// fanned out, so giving them message.Block/registry lifecycle would add
// machinery the core dispatch path has no need for; delivery stays plain
// and task-driven. The embedded Callback subscriber (Engine.Subscriber)
// is how real bus messages reach Engine.Dispatch from a broker.
package hsm

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/adred-codev/busbox/internal/assert"
	"github.com/adred-codev/busbox/internal/message"
	"github.com/adred-codev/busbox/internal/pubsub"
)

// ReturnKind is what a State's handler decided to do with a message.
type ReturnKind int

const (
	Consumed ReturnKind = iota
	Parent
	TopState
	Transition
)

// Return is what every State handler produces.
type Return struct {
	Kind ReturnKind
	Next *State // parent (Parent) or transition target (Transition); nil otherwise
}

// MsgID distinguishes the three reserved private signals from ordinary
// application msg-ids, which the engine forwards to the state's Fn
// unmodified. Reserved ids sit at the very top of the 16-bit space so
// they can never collide with a publisher's msg-id.
type MsgID = uint16

const (
	Walk  MsgID = 0xFFFF
	Entry MsgID = 0xFFFE
	Exit  MsgID = 0xFFFD
)

// HandlerFunc is a state's response to a message. It must respond to
// Walk with Parent or TopState only, and must not return Transition in
// response to Entry or Exit.
type HandlerFunc func(e *Engine, msgID MsgID, payload []byte) Return

// State is a node in the hierarchy. States are values, compared by
// pointer identity — Go function values aren't comparable against each
// other, so a *State (not a bare HandlerFunc) is the engine's notion of
// state identity.
type State struct {
	Name string
	Fn   HandlerFunc
}

// Engine drives one HSM instance.
type Engine struct {
	mu       sync.Mutex
	current  *State
	maxDepth int
	logger   zerolog.Logger

	// Subscriber is the embedded Callback-discipline subscriber whose
	// handler bridges broker-delivered messages into Dispatch. The
	// embedding code is responsible for attaching it to a broker.
	Subscriber *pubsub.Subscriber

	// Name identifies this engine in logs/metrics; OnTransition, if set,
	// is called with the new state's name after every completed
	// transition (wired to telemetry.HSMMetrics by the composing code).
	Name        string
	OnTransition func(toState string)
}

// New constructs an Engine with initial as the starting leaf state.
// maxPubMsgID/priority configure the embedded subscriber; maxDepth bounds
// both the Walk chain length and the transition algorithm's climb.
func New(initial *State, maxDepth int, maxPubMsgID uint16, priority uint8, logger zerolog.Logger) *Engine {
	e := &Engine{current: initial, maxDepth: maxDepth, logger: logger}
	e.Subscriber = pubsub.NewCallbackSubscriber(nil, maxPubMsgID, priority)
	e.Subscriber.SetHandler(func(msgID uint16, blk message.Block) {
		e.Dispatch(msgID, blk.Payload)
	})
	return e
}

// Current returns the active leaf state.
func (e *Engine) Current() *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// walkChain collects leaf's ancestor chain via Walk, leaf first, bounded
// by maxDepth. A chain that would exceed maxDepth is silently truncated
// rather than treated as an error, matching a fixed-depth hierarchy
// budget rather than growing without bound.
func (e *Engine) walkChain(leaf *State) []*State {
	chain := []*State{leaf}
	cur := leaf
	for i := 0; i < e.maxDepth; i++ {
		ret := cur.Fn(e, Walk, nil)
		assert.That(ret.Kind == Parent || ret.Kind == TopState, "hsm: state %q must answer Walk with Parent or TopState", cur.Name)
		if ret.Kind == TopState {
			return chain
		}
		cur = ret.Next
		chain = append(chain, cur)
	}
	return chain
}

// Start delivers Entry top-down across current's ancestor chain, ending
// at current.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	chain := e.walkChain(e.current)
	for i := len(chain) - 1; i >= 0; i-- {
		ret := chain[i].Fn(e, Entry, nil)
		assert.That(ret.Kind == Consumed, "hsm: state %q must answer Entry with Consumed", chain[i].Name)
	}
}

// Dispatch delivers msgID to the current state, bubbling through Parent
// responses, and runs a transition if the eventual responder asks for
// one.
func (e *Engine) Dispatch(msgID MsgID, payload []byte) {
	assert.That(msgID != Walk, "hsm: Walk is reserved and not user-dispatchable")
	e.mu.Lock()
	defer e.mu.Unlock()

	scratch := e.current
	for i := 0; i < e.maxDepth; i++ {
		ret := scratch.Fn(e, msgID, payload)
		switch ret.Kind {
		case Consumed, TopState:
			return
		case Parent:
			scratch = ret.Next
			continue
		case Transition:
			target := ret.Next
			if target != e.current {
				e.transition(target)
			}
			return
		}
	}
}

// transition runs the least-common-ancestor algorithm and sets
// current := target.
func (e *Engine) transition(target *State) {
	targetChain := e.walkChain(target) // target, parent(target), ..., top

	lcaIdx := -1
	for i, st := range targetChain {
		if st == e.current {
			lcaIdx = i
			break
		}
	}

	if lcaIdx == -1 {
		cur := e.current
		for i := 0; i < e.maxDepth; i++ {
			ret := cur.Fn(e, Exit, nil)
			assert.That(ret.Kind == Consumed, "hsm: state %q must answer Exit with Consumed", cur.Name)

			wret := cur.Fn(e, Walk, nil)
			assert.That(wret.Kind == Parent || wret.Kind == TopState, "hsm: state %q must answer Walk with Parent or TopState", cur.Name)
			if wret.Kind == TopState {
				lcaIdx = len(targetChain)
				break
			}
			parent := wret.Next
			found := -1
			for j, st := range targetChain {
				if st == parent {
					found = j
					break
				}
			}
			if found >= 0 {
				lcaIdx = found
				break
			}
			cur = parent
		}
		if lcaIdx == -1 {
			lcaIdx = len(targetChain)
		}
	}

	for i := lcaIdx - 1; i >= 0; i-- {
		ret := targetChain[i].Fn(e, Entry, nil)
		assert.That(ret.Kind == Consumed, "hsm: state %q must answer Entry with Consumed", targetChain[i].Name)
	}
	e.current = target
	if e.OnTransition != nil {
		e.OnTransition(target.Name)
	}
}
