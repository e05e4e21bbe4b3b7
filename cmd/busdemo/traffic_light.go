package main

import (
	"github.com/rs/zerolog"

	"github.com/adred-codev/busbox/internal/hsm"
	"github.com/adred-codev/busbox/internal/telemetry"
)

// newDemoHSM builds a three-level traffic-light hierarchy exercising the
// full HSM engine: an "on" superstate parenting Red/Yellow/Green, with a
// "tick" message (id 1) cycling Red -> Green -> Yellow -> Red.
func newDemoHSM(maxDepth int, maxPubMsgID uint16, metrics *telemetry.HSMMetrics, logger zerolog.Logger) *hsm.Engine {
	var top, on, red, yellow, green *hsm.State

	top = &hsm.State{
		Name: "top",
		Fn: func(e *hsm.Engine, msgID hsm.MsgID, payload []byte) hsm.Return {
			switch msgID {
			case hsm.Walk:
				return hsm.Return{Kind: hsm.TopState}
			case hsm.Entry, hsm.Exit:
				return hsm.Return{Kind: hsm.Consumed}
			default:
				return hsm.Return{Kind: hsm.Consumed}
			}
		},
	}

	on = &hsm.State{
		Name: "on",
		Fn: func(e *hsm.Engine, msgID hsm.MsgID, payload []byte) hsm.Return {
			switch msgID {
			case hsm.Walk:
				return hsm.Return{Kind: hsm.Parent, Next: top}
			case hsm.Entry, hsm.Exit:
				return hsm.Return{Kind: hsm.Consumed}
			default:
				return hsm.Return{Kind: hsm.Parent, Next: top}
			}
		},
	}

	red = &hsm.State{Name: "red"}
	yellow = &hsm.State{Name: "yellow"}
	green = &hsm.State{Name: "green"}

	red.Fn = func(e *hsm.Engine, msgID hsm.MsgID, payload []byte) hsm.Return {
		switch msgID {
		case hsm.Walk:
			return hsm.Return{Kind: hsm.Parent, Next: on}
		case hsm.Entry, hsm.Exit:
			return hsm.Return{Kind: hsm.Consumed}
		case tickMsgID:
			return hsm.Return{Kind: hsm.Transition, Next: green}
		default:
			return hsm.Return{Kind: hsm.Parent, Next: on}
		}
	}
	green.Fn = func(e *hsm.Engine, msgID hsm.MsgID, payload []byte) hsm.Return {
		switch msgID {
		case hsm.Walk:
			return hsm.Return{Kind: hsm.Parent, Next: on}
		case hsm.Entry, hsm.Exit:
			return hsm.Return{Kind: hsm.Consumed}
		case tickMsgID:
			return hsm.Return{Kind: hsm.Transition, Next: yellow}
		default:
			return hsm.Return{Kind: hsm.Parent, Next: on}
		}
	}
	yellow.Fn = func(e *hsm.Engine, msgID hsm.MsgID, payload []byte) hsm.Return {
		switch msgID {
		case hsm.Walk:
			return hsm.Return{Kind: hsm.Parent, Next: on}
		case hsm.Entry, hsm.Exit:
			return hsm.Return{Kind: hsm.Consumed}
		case tickMsgID:
			return hsm.Return{Kind: hsm.Transition, Next: red}
		default:
			return hsm.Return{Kind: hsm.Parent, Next: on}
		}
	}

	engine := hsm.New(red, maxDepth, maxPubMsgID, 0, logger)
	engine.Name = "traffic_light"
	engine.OnTransition = func(toState string) {
		metrics.ObserveTransition(engine.Name, toState)
		logger.Info().Str("to_state", toState).Msg("hsm transition")
	}
	return engine
}

const tickMsgID hsm.MsgID = 1
