package message

import "context"

// Block is a header+payload pair drawn from a Pool.
type Block struct {
	Header  *Header
	Payload []byte
}

// Pool is the collaborator contract a concrete fixed-block allocator must
// satisfy. The core never allocates storage itself; message/slabpool
// ships one usable implementation.
type Pool interface {
	// Allocate returns a block or (_, false) if ctx is done before a
	// block becomes free. ctx carries the deadline in place of a raw
	// duration — the idiomatic Go rendition of "allocate(deadline)".
	Allocate(ctx context.Context) (Block, bool)

	// Free returns a block to the pool. Must be safe to call from any
	// goroutine, including the broker's dispatch worker.
	Free(Block)

	// BlockSize is the size in bytes of header + payload slot.
	BlockSize() int
}
