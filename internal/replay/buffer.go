// Package replay holds transitions collected during fitness evaluation in a
// fixed-capacity ring buffer. Once full, new transitions overwrite the oldest
// ones, keeping memory bounded over long runs.
package replay

import (
	"fmt"
	"math/rand"

	"evotree/internal/model"
)

const DefaultCapacity = 100_000

type Buffer struct {
	items []model.Transition
	next  int
	full  bool
}

func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("replay capacity must be > 0, got %d", capacity)
	}
	return &Buffer{items: make([]model.Transition, 0, capacity)}, nil
}

// Add appends transitions, evicting the oldest entries once the buffer is at
// capacity.
func (b *Buffer) Add(transitions ...model.Transition) {
	for _, t := range transitions {
		if !b.full && len(b.items) < cap(b.items) {
			b.items = append(b.items, t)
			if len(b.items) == cap(b.items) {
				b.full = true
			}
			continue
		}
		b.items[b.next] = t
		b.next = (b.next + 1) % len(b.items)
	}
}

func (b *Buffer) Len() int {
	return len(b.items)
}

func (b *Buffer) Cap() int {
	return cap(b.items)
}

// Sample draws n distinct transitions uniformly without replacement using a
// partial Fisher-Yates shuffle over an index permutation.
func (b *Buffer) Sample(rng *rand.Rand, n int) ([]model.Transition, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample size must be > 0, got %d", n)
	}
	if n > len(b.items) {
		return nil, fmt.Errorf("sample size %d exceeds buffer length %d", n, len(b.items))
	}

	indices := make([]int, len(b.items))
	for i := range indices {
		indices[i] = i
	}
	out := make([]model.Transition, n)
	for i := 0; i < n; i++ {
		j := i + rng.Intn(len(indices)-i)
		indices[i], indices[j] = indices[j], indices[i]
		out[i] = b.items[indices[i]]
	}
	return out, nil
}
