package message

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestStaticMessageRoundTrip(t *testing.T) {
	sm := NewStaticMessage(1, []byte("payload"), false)
	if got := sm.Header.Refcount(); got != 1 {
		t.Fatalf("refcount = %d, want 1", got)
	}

	reg := NewRegistry(zerolog.Nop())
	reg.Release(sm.Block())
	if got := sm.Header.Refcount(); got != 0 {
		t.Fatalf("refcount after release = %d, want 0", got)
	}

	// Reusable without reinitialization.
	sm.Header.Acquire()
	if got := sm.Header.Refcount(); got != 1 {
		t.Fatalf("refcount after re-acquire = %d, want 1", got)
	}
}

func TestStaticMessageQuiescentStart(t *testing.T) {
	sm := NewStaticMessage(1, nil, true)
	if got := sm.Header.Refcount(); got != 0 {
		t.Fatalf("refcount = %d, want 0 (quiescent)", got)
	}
}

func TestStaticMessageReinit(t *testing.T) {
	sm := NewStaticMessage(1, nil, false)
	sm.Reinit(2)
	if msgID, _, refcount := sm.Header.Load(); msgID != 2 || refcount != 1 {
		t.Fatalf("got (%d,_,%d), want (2,_,1)", msgID, refcount)
	}
}
