package slabpool

import (
	"context"
	"testing"
	"time"
)

func TestPoolAllocateFree(t *testing.T) {
	p := New(2, 16)

	blk1, ok := p.Allocate(context.Background())
	if !ok {
		t.Fatal("first allocate should succeed")
	}
	blk2, ok := p.Allocate(context.Background())
	if !ok {
		t.Fatal("second allocate should succeed")
	}
	if p.InUse() != 2 {
		t.Fatalf("InUse = %d, want 2", p.InUse())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := p.Allocate(ctx); ok {
		t.Fatal("allocate on exhausted pool should fail")
	}

	p.Free(blk1)
	if p.InUse() != 1 {
		t.Fatalf("InUse after free = %d, want 1", p.InUse())
	}

	blk3, ok := p.Allocate(context.Background())
	if !ok {
		t.Fatal("allocate after free should succeed")
	}
	_ = blk2
	_ = blk3
}

func TestPoolAllocateBlocksUntilFree(t *testing.T) {
	p := New(1, 8)
	blk, _ := p.Allocate(context.Background())

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if _, ok := p.Allocate(ctx); !ok {
			t.Error("expected allocate to succeed once the block is freed")
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	p.Free(blk)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("allocate did not unblock after free")
	}
}
