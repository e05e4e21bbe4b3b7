// Package message implements the bus's message header, allocator registry
// and the static/callback message specializations. Pool is declared here
// as an interface; a reference implementation lives in message/slabpool.
package message

import (
	"sync/atomic"

	"github.com/adred-codev/busbox/internal/assert"
)

const (
	maxRefcount = 1<<8 - 1

	msgIDMask   = 1<<16 - 1
	allocIDMask = 1<<8 - 1
)

// Header is the packed word carried by every message: msg_id (16 bits),
// allocator_id (8 bits) and refcount (8 bits) in one atomically-updated
// uint32. A single word keeps msg_id/allocator_id/refcount mutually
// consistent under concurrent acquire/release — per-field atomics would
// let a reader observe a torn combination.
type Header struct {
	word atomic.Uint32
}

func pack(msgID uint16, allocatorID, refcount uint8) uint32 {
	return uint32(msgID) | uint32(allocatorID)<<16 | uint32(refcount)<<24
}

func unpack(w uint32) (msgID uint16, allocatorID, refcount uint8) {
	return uint16(w & msgIDMask), uint8((w >> 16) & allocIDMask), uint8(w >> 24)
}

// Init stores the packed word. refcount is the caller-chosen starting
// value — 1 for a freshly allocated message about to be published, 0 for
// a static/callback message sitting idle between publishes.
func (h *Header) Init(msgID uint16, allocatorID, refcount uint8) {
	h.word.Store(pack(msgID, allocatorID, refcount))
}

// Load returns a consistent snapshot of all three fields.
func (h *Header) Load() (msgID uint16, allocatorID, refcount uint8) {
	return unpack(h.word.Load())
}

func (h *Header) MsgID() uint16 {
	msgID, _, _ := h.Load()
	return msgID
}

func (h *Header) AllocatorID() uint8 {
	_, allocatorID, _ := h.Load()
	return allocatorID
}

func (h *Header) Refcount() uint8 {
	_, _, refcount := h.Load()
	return refcount
}

// Acquire increments refcount. Overflowing past 255 is a programming
// error — callers must know their own reference count never approaches
// the limit in practice.
func (h *Header) Acquire() {
	for {
		old := h.word.Load()
		_, _, refcount := unpack(old)
		assert.That(refcount < maxRefcount, "message: header refcount overflow")
		next := (old &^ (allocIDMask << 24)) | uint32(refcount+1)<<24
		if h.word.CompareAndSwap(old, next) {
			return
		}
	}
}

// Release decrements refcount and returns the pre-decrement value. A
// return of 1 means the caller just dropped the final reference.
func (h *Header) Release() uint8 {
	for {
		old := h.word.Load()
		_, _, refcount := unpack(old)
		assert.That(refcount > 0, "message: header refcount underflow")
		next := (old &^ (allocIDMask << 24)) | uint32(refcount-1)<<24
		if h.word.CompareAndSwap(old, next) {
			return refcount
		}
	}
}
