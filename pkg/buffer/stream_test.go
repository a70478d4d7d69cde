package buffer

import (
	"bytes"
	"errors"
	"testing"
)

func TestByteStreamProducerConsumer(t *testing.T) {
	s := NewByteStream()

	go func() {
		s.Add([]byte("hel"))
		s.Add([]byte("lo "))
		s.Add([]byte("world"))
		s.CloseWrite()
	}()

	var got []byte
	for {
		chunk, err := s.Next()
		if errors.Is(err, ErrIteratorDone) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, chunk...)
	}
	if !bytes.Equal(got, []byte("hello world")) {
		t.Errorf("consumed %q, want %q", got, "hello world")
	}
}

func TestByteStreamReadAll(t *testing.T) {
	s := NewByteStream()
	go func() {
		for i := 0; i < 10; i++ {
			s.Add([]byte{byte('0' + i)})
		}
		s.CloseWrite()
	}()

	got, err := s.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "0123456789" {
		t.Errorf("ReadAll = %q, want %q", got, "0123456789")
	}
}

func TestByteStreamAbort(t *testing.T) {
	s := NewByteStream()
	s.Add([]byte("partial"))

	wantErr := errors.New("listener aborted")
	s.CloseWithError(wantErr)

	if _, err := s.ReadAll(); !errors.Is(err, wantErr) {
		t.Errorf("ReadAll after abort = %v, want wrapped %v", err, wantErr)
	}
}

func TestByteStreamAddCopies(t *testing.T) {
	s := NewByteStream()
	src := []byte("abc")
	s.Add(src)
	src[0] = 'X'
	s.CloseWrite()

	got, err := s.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("stream was mutated via caller slice: %q", got)
	}
}
