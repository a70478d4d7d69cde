package buffer

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrIteratorDone is returned by Next when the queue is closed for
// writing and all items have been consumed.
var ErrIteratorDone = errors.New("iterator done")

// Queue is a thread-safe blocking FIFO queue.
//
// Producers append with Add or Write; consumers take items in arrival
// order with Next, which blocks until an item is available or the queue
// is closed. CloseWrite ends the stream gracefully: consumers drain the
// remaining items and then receive ErrIteratorDone. CloseWithError tears
// both ends down at once and surfaces the error to all blocked callers.
type Queue[T any] struct {
	writeNotify chan struct{}

	mu         sync.Mutex
	closeWrite bool
	closeErr   error
	items      []T
}

// QueueN creates a new Queue with the specified initial capacity.
// The capacity is a hint; the queue grows as needed.
func QueueN[T any](n int) *Queue[T] {
	return &Queue[T]{
		writeNotify: make(chan struct{}, 1),
		items:       make([]T, 0, n),
	}
}

func (q *Queue[T]) notifyLocked() {
	select {
	case q.writeNotify <- struct{}{}:
	default:
	}
}

// Add appends a single item to the queue and wakes a blocked consumer.
// Returns an error if the queue is closed for writing.
func (q *Queue[T]) Add(t T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr != nil {
		return fmt.Errorf("buffer: add to closed queue: %w", q.closeErr)
	}
	if q.closeWrite {
		return fmt.Errorf("buffer: add to closed queue: %w", io.ErrClosedPipe)
	}
	q.items = append(q.items, t)
	q.notifyLocked()
	return nil
}

// Write appends all items from p to the queue.
// Implements the io.Writer shape for element slices.
func (q *Queue[T]) Write(p []T) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr != nil {
		return 0, fmt.Errorf("buffer: write to closed queue: %w", q.closeErr)
	}
	if q.closeWrite {
		return 0, fmt.Errorf("buffer: write to closed queue: %w", io.ErrClosedPipe)
	}
	q.items = append(q.items, p...)
	q.notifyLocked()
	return len(p), nil
}

// Next removes and returns the oldest item in the queue.
//
// It blocks until an item is available or the queue is closed. Returns
// ErrIteratorDone once the queue is closed for writing and empty.
func (q *Queue[T]) Next() (t T, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr != nil {
		err = fmt.Errorf("buffer: read from closed queue: %w", q.closeErr)
		return
	}
	for len(q.items) == 0 {
		if q.closeWrite {
			err = ErrIteratorDone
			return
		}
		q.mu.Unlock()
		<-q.writeNotify
		q.mu.Lock()
		if q.closeErr != nil {
			err = fmt.Errorf("buffer: read from closed queue: %w", q.closeErr)
			return
		}
	}
	t = q.items[0]
	q.items = q.items[1:]
	return
}

// TryNext removes and returns the oldest item without blocking.
// The second return value reports whether an item was available.
func (q *Queue[T]) TryNext() (t T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return
	}
	t = q.items[0]
	q.items = q.items[1:]
	ok = true
	return
}

// Read fills p with up to len(p) queued items.
// Blocks until at least one item is available. Returns io.EOF once the
// queue is closed for writing and empty.
func (q *Queue[T]) Read(p []T) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr != nil {
		return 0, fmt.Errorf("buffer: read from closed queue: %w", q.closeErr)
	}
	for len(q.items) == 0 {
		if q.closeWrite {
			return 0, io.EOF
		}
		q.mu.Unlock()
		<-q.writeNotify
		q.mu.Lock()
		if q.closeErr != nil {
			return 0, fmt.Errorf("buffer: read from closed queue: %w", q.closeErr)
		}
	}
	n := copy(p, q.items)
	q.items = q.items[n:]
	return n, nil
}

func (q *Queue[T]) closeWithErrorLocked(err error) error {
	if q.closeErr != nil {
		return nil
	}
	q.closeErr = err
	q.items = nil
	if !q.closeWrite {
		q.closeWrite = true
		close(q.writeNotify)
	}
	return nil
}

// CloseWithError closes both ends of the queue.
// Pending and future operations return the given error; if err is nil,
// io.ErrClosedPipe is used.
func (q *Queue[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closeWithErrorLocked(err)
}

// Close is equivalent to CloseWithError(io.ErrClosedPipe).
func (q *Queue[T]) Close() error {
	return q.CloseWithError(io.ErrClosedPipe)
}

// CloseWrite closes the write side of the queue.
// Consumers drain the remaining items, then Next returns ErrIteratorDone
// and Read returns io.EOF.
func (q *Queue[T]) CloseWrite() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeWrite {
		return nil
	}
	q.closeWrite = true
	close(q.writeNotify)
	return nil
}

// Error returns the error the queue was closed with, if any.
func (q *Queue[T]) Error() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closeErr
}

// Len returns the number of items currently queued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Reset discards all queued items. It does not reopen a closed queue.
func (q *Queue[T]) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = q.items[:0]
}

// Items returns a copy of the queued items, oldest first.
func (q *Queue[T]) Items() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := make([]T, len(q.items))
	copy(cp, q.items)
	return cp
}
