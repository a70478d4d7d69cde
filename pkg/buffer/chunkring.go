package buffer

import "sync"

// ChunkRing keeps the most recent audio chunks under a total byte budget.
//
// New chunks evict the oldest until the budget is respected again, so the
// ring always holds a sliding window ending at the latest Push. Speech
// detection uses this to carry pre-roll audio into a new utterance.
type ChunkRing struct {
	mu     sync.Mutex
	budget int
	total  int
	chunks [][]byte
}

// NewChunkRing creates a ChunkRing holding at most budget bytes.
func NewChunkRing(budget int) *ChunkRing {
	return &ChunkRing{budget: budget}
}

// Push appends a copy of chunk and evicts the oldest chunks while the
// total exceeds the budget. The newest chunk is never evicted.
func (r *ChunkRing) Push(chunk []byte) {
	cp := make([]byte, len(chunk))
	copy(cp, chunk)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, cp)
	r.total += len(cp)
	for r.total > r.budget && len(r.chunks) > 1 {
		r.total -= len(r.chunks[0])
		r.chunks = r.chunks[1:]
	}
}

// Drain returns the buffered chunks, oldest first, and empties the ring.
func (r *ChunkRing) Drain() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.chunks
	r.chunks = nil
	r.total = 0
	return out
}

// Bytes returns the buffered audio as one contiguous copy, oldest first.
// The ring is left unchanged.
func (r *ChunkRing) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, 0, r.total)
	for _, c := range r.chunks {
		out = append(out, c...)
	}
	return out
}

// Len returns the total number of buffered bytes.
func (r *ChunkRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Reset discards all buffered chunks.
func (r *ChunkRing) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = nil
	r.total = 0
}
