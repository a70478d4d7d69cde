package buffer

import (
	"bytes"
	"testing"
)

func TestChunkRingEvictsOldest(t *testing.T) {
	r := NewChunkRing(10)
	r.Push([]byte("aaaa")) // 4
	r.Push([]byte("bbbb")) // 8
	r.Push([]byte("cccc")) // 12 -> evict "aaaa"

	if got := r.Len(); got != 8 {
		t.Errorf("Len = %d, want 8", got)
	}
	if got := r.Bytes(); !bytes.Equal(got, []byte("bbbbcccc")) {
		t.Errorf("Bytes = %q, want %q", got, "bbbbcccc")
	}
}

func TestChunkRingKeepsNewestOverBudget(t *testing.T) {
	r := NewChunkRing(4)
	r.Push([]byte("0123456789"))

	// A single chunk larger than the budget is kept.
	if got := r.Bytes(); !bytes.Equal(got, []byte("0123456789")) {
		t.Errorf("Bytes = %q, want the full chunk", got)
	}

	r.Push([]byte("xy"))
	if got := r.Bytes(); !bytes.Equal(got, []byte("xy")) {
		t.Errorf("Bytes after second push = %q, want %q", got, "xy")
	}
}

func TestChunkRingDrain(t *testing.T) {
	r := NewChunkRing(100)
	r.Push([]byte("one"))
	r.Push([]byte("two"))

	chunks := r.Drain()
	if len(chunks) != 2 {
		t.Fatalf("Drain returned %d chunks, want 2", len(chunks))
	}
	if string(chunks[0]) != "one" || string(chunks[1]) != "two" {
		t.Errorf("Drain = [%q %q], want [one two]", chunks[0], chunks[1])
	}
	if r.Len() != 0 {
		t.Errorf("Len after Drain = %d, want 0", r.Len())
	}
}

func TestChunkRingCopiesInput(t *testing.T) {
	r := NewChunkRing(100)
	src := []byte("orig")
	r.Push(src)
	src[0] = 'X'

	if got := r.Bytes(); !bytes.Equal(got, []byte("orig")) {
		t.Errorf("ring was mutated via caller slice: %q", got)
	}
}

func TestChunkRingReset(t *testing.T) {
	r := NewChunkRing(100)
	r.Push([]byte("data"))
	r.Reset()
	if r.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", r.Len())
	}
	if got := r.Drain(); len(got) != 0 {
		t.Errorf("Drain after Reset returned %d chunks, want 0", len(got))
	}
}
