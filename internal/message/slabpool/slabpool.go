// Package slabpool provides a fixed-block message.Pool backed by a single
// contiguous arena, in the style of an RTOS memory-slab allocator: fixed
// block count and size, decided up front, no dynamic growth.
package slabpool

import (
	"context"
	"sync"

	"github.com/adred-codev/busbox/internal/message"
)

// Pool slices one []byte arena into fixed-size blocks and tracks them
// with a free list. A buffered channel doubles as a counting semaphore so
// Allocate can respect ctx's deadline instead of blocking forever.
type Pool struct {
	payloadSize int
	blockSize   int

	mu       sync.Mutex
	headers  []message.Header
	payloads [][]byte
	free     []int // indices into headers/payloads currently available

	sem chan struct{}
}

// New creates a pool of count blocks, each able to hold payloadSize bytes.
func New(count, payloadSize int) *Pool {
	p := &Pool{
		payloadSize: payloadSize,
		blockSize:   payloadSize + 4, // header word is 4 bytes packed
		headers:     make([]message.Header, count),
		payloads:    make([][]byte, count),
		free:        make([]int, count),
		sem:         make(chan struct{}, count),
	}
	arena := make([]byte, count*payloadSize)
	for i := 0; i < count; i++ {
		lo, hi := i*payloadSize, (i+1)*payloadSize
		p.payloads[i] = arena[lo:hi:hi]
		p.free[i] = i
		p.sem <- struct{}{}
	}
	return p
}

func (p *Pool) BlockSize() int { return p.blockSize }

// Allocate waits for a free block until ctx is done.
func (p *Pool) Allocate(ctx context.Context) (message.Block, bool) {
	select {
	case <-p.sem:
	case <-ctx.Done():
		return message.Block{}, false
	}

	p.mu.Lock()
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.mu.Unlock()

	return message.Block{Header: &p.headers[idx], Payload: p.payloads[idx]}, true
}

// Free returns blk's block to the free list. Safe to call from any
// goroutine, including the broker's dispatch worker.
func (p *Pool) Free(blk message.Block) {
	idx := p.indexOf(blk.Header)
	p.mu.Lock()
	p.free = append(p.free, idx)
	p.mu.Unlock()
	p.sem <- struct{}{}
}

// InUse reports how many blocks are currently allocated — handy for
// tests asserting pool exhaustion/recovery and for gauge metrics.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.headers) - len(p.free)
}

func (p *Pool) indexOf(h *message.Header) int {
	for i := range p.headers {
		if &p.headers[i] == h {
			return i
		}
	}
	panic("slabpool: free() on a block not owned by this pool")
}
