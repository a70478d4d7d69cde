package buffer

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := QueueN[int](4)
	for i := 1; i <= 5; i++ {
		if err := q.Add(i); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}

	for want := 1; want <= 5; want++ {
		got, err := q.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got != want {
			t.Errorf("Next = %d, want %d", got, want)
		}
	}
}

func TestQueueNextBlocksUntilAdd(t *testing.T) {
	q := QueueN[string](1)

	done := make(chan string, 1)
	go func() {
		v, err := q.Next()
		if err != nil {
			done <- "err:" + err.Error()
			return
		}
		done <- v
	}()

	// The consumer should be blocked; give it a moment to park.
	select {
	case v := <-done:
		t.Fatalf("Next returned %q before any Add", v)
	case <-time.After(20 * time.Millisecond):
	}

	if err := q.Add("hello"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	select {
	case v := <-done:
		if v != "hello" {
			t.Errorf("Next = %q, want %q", v, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not wake after Add")
	}
}

func TestQueueCloseWriteDrains(t *testing.T) {
	q := QueueN[int](4)
	q.Add(1)
	q.Add(2)
	if err := q.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}

	// Remaining items drain first.
	for want := 1; want <= 2; want++ {
		got, err := q.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got != want {
			t.Errorf("Next = %d, want %d", got, want)
		}
	}

	if _, err := q.Next(); !errors.Is(err, ErrIteratorDone) {
		t.Errorf("Next after drain = %v, want ErrIteratorDone", err)
	}

	// Writes after CloseWrite fail.
	if err := q.Add(3); err == nil {
		t.Error("Add after CloseWrite should fail")
	}
}

func TestQueueCloseWithError(t *testing.T) {
	q := QueueN[int](4)
	q.Add(1)

	wantErr := errors.New("session aborted")

	unblocked := make(chan error, 1)
	go func() {
		// Drain the one item, then block.
		if _, err := q.Next(); err != nil {
			unblocked <- err
			return
		}
		_, err := q.Next()
		unblocked <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.CloseWithError(wantErr)

	select {
	case err := <-unblocked:
		if !errors.Is(err, wantErr) {
			t.Errorf("Next after CloseWithError = %v, want wrapped %v", err, wantErr)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock after CloseWithError")
	}

	if !errors.Is(q.Error(), wantErr) {
		t.Errorf("Error() = %v, want %v", q.Error(), wantErr)
	}
}

func TestQueueReadEOF(t *testing.T) {
	q := QueueN[byte](8)
	q.Write([]byte("abc"))
	q.CloseWrite()

	p := make([]byte, 8)
	n, err := q.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(p[:n]) != "abc" {
		t.Errorf("Read = %q, want %q", p[:n], "abc")
	}

	if _, err := q.Read(p); err != io.EOF {
		t.Errorf("Read after drain = %v, want io.EOF", err)
	}
}

func TestQueueTryNext(t *testing.T) {
	q := QueueN[int](2)
	if _, ok := q.TryNext(); ok {
		t.Error("TryNext on empty queue should report !ok")
	}
	q.Add(7)
	got, ok := q.TryNext()
	if !ok || got != 7 {
		t.Errorf("TryNext = (%d, %v), want (7, true)", got, ok)
	}
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	q := QueueN[int](16)
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			if err := q.Add(i); err != nil {
				t.Errorf("Add(%d): %v", i, err)
				return
			}
		}
		q.CloseWrite()
	}()

	var got []int
	for {
		v, err := q.Next()
		if errors.Is(err, ErrIteratorDone) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, v)
	}
	wg.Wait()

	if len(got) != n {
		t.Fatalf("consumed %d items, want %d", len(got), n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("item %d = %d, want %d (order broken)", i, v, i)
		}
	}
}
