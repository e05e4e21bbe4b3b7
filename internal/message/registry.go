package message

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrOutOfSlots means the allocator-id space is exhausted — no more
	// pools can be registered.
	ErrOutOfSlots = errors.New("message: allocator id space exhausted")
	// ErrPoolExhausted means the target pool had no free block before
	// the caller's context was done.
	ErrPoolExhausted = errors.New("message: pool exhausted")
	// ErrUnknownAllocator means the allocator id doesn't resolve to a
	// registered pool or a reserved special class.
	ErrUnknownAllocator = errors.New("message: unknown allocator id")
)

const (
	// AllocatorIDCallback and AllocatorIDStatic sit at the top of the
	// 8-bit id space. Runtime pools are assigned ids starting at 0,
	// monotonically, so a pool registered mid-run never aliases one
	// already embedded in an in-flight message.
	AllocatorIDCallback uint8 = 255
	AllocatorIDStatic   uint8 = 254

	maxRuntimePools = 254
)

// Registry is the allocator registry (C3): maps allocator-id to Pool, and
// dispatches release() by stored allocator-id.
type Registry struct {
	mu    sync.RWMutex
	pools []Pool

	callbackMu sync.Mutex
	callbacks  map[*Header]*CallbackMessage

	logger zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		callbacks: make(map[*Header]*CallbackMessage),
		logger:    logger,
	}
}

// Register assigns a stable allocator id to pool. Ids are handed out
// monotonically and never reused, so an id already embedded in a live
// message's header is never reassigned to a different pool.
func (r *Registry) Register(pool Pool) (uint8, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pools) >= maxRuntimePools {
		r.logger.Warn().Int("registered", len(r.pools)).Msg("allocator id space exhausted")
		return 0, ErrOutOfSlots
	}
	id := uint8(len(r.pools))
	r.pools = append(r.pools, pool)
	return id, nil
}

func (r *Registry) poolFor(allocatorID uint8) Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(allocatorID) >= len(r.pools) {
		return nil
	}
	return r.pools[allocatorID]
}

// NewMessage allocates from the pool registered under allocatorID and
// initializes the header with (msgID, allocatorID, refcount=1).
func (r *Registry) NewMessage(ctx context.Context, allocatorID uint8, msgID uint16) (Block, error) {
	pool := r.poolFor(allocatorID)
	if pool == nil {
		return Block{}, ErrUnknownAllocator
	}
	blk, ok := pool.Allocate(ctx)
	if !ok {
		return Block{}, ErrPoolExhausted
	}
	blk.Header.Init(msgID, allocatorID, 1)
	return blk, nil
}

// Release drops one reference on blk and, on the 1→0 transition,
// dispatches by allocator id: pool free, callback invocation, or a no-op
// for static messages.
func (r *Registry) Release(blk Block) {
	prev := blk.Header.Release()
	if prev != 1 {
		return
	}
	switch allocatorID := blk.Header.AllocatorID(); allocatorID {
	case AllocatorIDStatic:
		return
	case AllocatorIDCallback:
		r.invokeCallback(blk.Header)
	default:
		if pool := r.poolFor(allocatorID); pool != nil {
			pool.Free(blk)
		} else {
			r.logger.Error().Uint8("allocator_id", allocatorID).Msg("release: allocator id resolves to no pool")
		}
	}
}

// registerCallback records the side-table entry a callback message's
// final release looks up by header pointer. Entries are never removed:
// callback messages are assumed long-lived and reused via Reinit rather
// than minted fresh per publish, so the table stays bounded by the
// number of distinct CallbackMessage values a program constructs, not by
// how many times they're published. A program that mints many
// short-lived callback messages over its lifetime would grow this table
// without bound.
func (r *Registry) registerCallback(h *Header, cm *CallbackMessage) {
	r.callbackMu.Lock()
	r.callbacks[h] = cm
	r.callbackMu.Unlock()
}

func (r *Registry) invokeCallback(h *Header) {
	r.callbackMu.Lock()
	cm := r.callbacks[h]
	r.callbackMu.Unlock()
	if cm != nil && cm.onFinalRelease != nil {
		cm.onFinalRelease(cm)
	}
}
