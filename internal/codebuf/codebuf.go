// Package codebuf manages the executable memory operators emit specialized code into.
//
// A Buffer is a growable mapping with a written prefix (Size) inside a mapped
// extent (Capacity). Offsets into the prefix stay valid across growth, and the
// prefix becomes immutable once the buffer is finalized.
package codebuf

import (
	"errors"
	"fmt"
	"os"

	"github.com/born-ml/graphrt/internal/status"
)

// DefaultSize is the initial capacity used when none is requested.
const DefaultSize = 16384

var errFinalized = errors.New("code buffer is finalized")

// Buffer is a region of code memory. It is not safe for concurrent use.
type Buffer struct {
	mem       []byte // the whole mapping, len(mem) == capacity
	size      int
	finalized bool
	released  bool
	growths   int
}

// Allocate maps a fresh buffer of at least size bytes (DefaultSize if size <= 0).
func Allocate(size int) (*Buffer, error) {
	if size <= 0 {
		size = DefaultSize
	}
	mem, err := mapCode(roundPage(size))
	if err != nil {
		return nil, status.New("allocate code memory", status.ErrOutOfMemory, "map %d bytes: %v", size, err)
	}
	return &Buffer{mem: mem}, nil
}

// Size returns the number of bytes written.
func (b *Buffer) Size() int { return b.size }

// Capacity returns the number of bytes mapped.
func (b *Buffer) Capacity() int { return len(b.mem) }

// Growths returns how many times the mapping has been grown.
func (b *Buffer) Growths() int { return b.growths }

// Finalized reports whether Finalize has been called.
func (b *Buffer) Finalized() bool { return b.finalized }

// Bytes returns the written prefix. The slice must not be retained across Append.
func (b *Buffer) Bytes() []byte { return b.mem[:b.size] }

// Append writes p at the end of the prefix and returns the offset it was written at.
// Appending past capacity grows the mapping once, to at least double its size.
func (b *Buffer) Append(p []byte) (int, error) {
	if err := b.writable("append code"); err != nil {
		return 0, err
	}
	if need := b.size + len(p); need > len(b.mem) {
		if err := b.grow(need); err != nil {
			return 0, err
		}
	}
	off := b.size
	copy(b.mem[off:], p)
	b.size += len(p)
	return off, nil
}

// Grow doubles the mapped capacity, preserving the written prefix.
func (b *Buffer) Grow() error {
	if err := b.writable("grow code memory"); err != nil {
		return err
	}
	return b.grow(len(b.mem) + 1)
}

func (b *Buffer) grow(need int) error {
	newCap := roundPage(max(2*len(b.mem), need))
	mem, err := mapCode(newCap)
	if err != nil {
		return status.New("grow code memory", status.ErrOutOfMemory, "map %d bytes: %v", newCap, err)
	}
	copy(mem, b.mem[:b.size])
	if err := unmapCode(b.mem); err != nil {
		_ = unmapCode(mem)
		return status.New("grow code memory", status.ErrOutOfMemory, "unmap old region: %v", err)
	}
	b.mem = mem
	b.growths++
	return nil
}

// Finalize makes the written prefix executable and rejects further appends.
func (b *Buffer) Finalize() error {
	if b.released {
		return status.New("finalize code memory", status.ErrInvalidState, "buffer released")
	}
	if b.finalized {
		return nil
	}
	if err := protectCode(b.mem); err != nil {
		return status.New("finalize code memory", status.ErrOutOfMemory, "protect: %v", err)
	}
	b.finalized = true
	return nil
}

// Release unmaps the buffer. Releasing twice is a no-op.
func (b *Buffer) Release() error {
	if b.released {
		return nil
	}
	b.released = true
	mem := b.mem
	b.mem, b.size = nil, 0
	if mem == nil {
		return nil
	}
	if err := unmapCode(mem); err != nil {
		return fmt.Errorf("release code memory: %w", err)
	}
	return nil
}

func (b *Buffer) writable(op string) error {
	switch {
	case b.released:
		return status.New(op, status.ErrInvalidState, "buffer released")
	case b.finalized:
		return status.New(op, status.ErrInvalidState, "%v", errFinalized)
	}
	return nil
}

var pageSize = os.Getpagesize()

func roundPage(n int) int {
	return (n + pageSize - 1) &^ (pageSize - 1)
}
