package codebuf

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
)

// Cache deduplicates generated code inside one Buffer. Operators of a runtime
// share a Cache during create; the runtime finalizes it before setup.
type Cache struct {
	buf    *Buffer
	index  map[uint64][]Ref
	hits   int
	misses int
}

// Ref locates a piece of code inside the cache's buffer.
type Ref struct {
	Offset int
	Size   int
}

// NewCache allocates a cache backed by a buffer of the given size.
func NewCache(size int) (*Cache, error) {
	buf, err := Allocate(size)
	if err != nil {
		return nil, err
	}
	return &Cache{buf: buf, index: make(map[uint64][]Ref)}, nil
}

// Insert stores code, returning the location of an identical earlier copy when one exists.
func (c *Cache) Insert(code []byte) (Ref, error) {
	h := xxhash.Sum64(code)
	for _, ref := range c.index[h] {
		if bytes.Equal(c.Code(ref), code) {
			c.hits++
			return ref, nil
		}
	}
	off, err := c.buf.Append(code)
	if err != nil {
		return Ref{}, err
	}
	ref := Ref{Offset: off, Size: len(code)}
	c.index[h] = append(c.index[h], ref)
	c.misses++
	return ref, nil
}

// Code returns the bytes at ref.
func (c *Cache) Code(ref Ref) []byte {
	return c.buf.Bytes()[ref.Offset : ref.Offset+ref.Size]
}

// Buffer exposes the backing buffer.
func (c *Cache) Buffer() *Buffer { return c.buf }

// Stats returns lookup hits and misses.
func (c *Cache) Stats() (hits, misses int) { return c.hits, c.misses }

// Finalize seals the buffer.
func (c *Cache) Finalize() error { return c.buf.Finalize() }

// Release frees the buffer.
func (c *Cache) Release() error {
	c.index = nil
	return c.buf.Release()
}
