package trace

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// StackCache de-duplicates stacks while a trace is being assembled.
type StackCache struct {
	stacks [][]uint64
	ids    map[uint64][]int
	buf    [8]byte
}

func NewStackCache() *StackCache {
	return &StackCache{ids: make(map[uint64][]int)}
}

// Insert returns the id of the stack, adding it if it was never seen.
// The caller must not modify addrs afterwards.
func (c *StackCache) Insert(addrs []uint64) int {
	h := c.hash(addrs)
	for _, id := range c.ids[h] {
		if equalStacks(c.stacks[id], addrs) {
			return id
		}
	}
	id := len(c.stacks)
	c.stacks = append(c.stacks, addrs)
	c.ids[h] = append(c.ids[h], id)
	return id
}

func (c *StackCache) Len() int {
	return len(c.stacks)
}

// Stacks returns every stack indexed by id.
func (c *StackCache) Stacks() [][]uint64 {
	return c.stacks
}

func (c *StackCache) hash(addrs []uint64) uint64 {
	d := xxhash.New()
	for _, addr := range addrs {
		binary.LittleEndian.PutUint64(c.buf[:], addr)
		_, _ = d.Write(c.buf[:])
	}
	return d.Sum64()
}

func equalStacks(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
