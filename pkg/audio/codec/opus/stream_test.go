package opus

import (
	"bytes"
	"errors"
	"slices"
	"testing"
)

// stubFrameEncoder records the PCM handed to each call and returns a
// one-byte token frame, so tests can check slicing without libopus.
type stubFrameEncoder struct {
	got    [][]byte
	failAt map[int]bool
	calls  int
}

func (e *stubFrameEncoder) EncodeBytes(pcm []byte) (Frame, error) {
	i := e.calls
	e.calls++
	if e.failAt[i] {
		return nil, errors.New("encoder exploded")
	}
	e.got = append(e.got, slices.Clone(pcm))
	return Frame{byte(i)}, nil
}

// pattern returns n bytes with a non-repeating-enough sequence so that
// misaligned slicing shows up in content checks.
func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestStreamEncoderLeftoverCarry(t *testing.T) {
	stub := &stubFrameEncoder{}
	s := NewStreamEncoder(stub)
	src := pattern(6000)

	chunks := []struct {
		in          int // bytes fed
		wantFrames  int
		wantPending int
	}{
		{2500, 1, 580}, // 2500 = 1920 + 580
		{1500, 1, 160}, // 580 + 1500 = 2080 = 1920 + 160
		{1760, 1, 0},   // 160 + 1760 = 1920 exactly
		{240, 0, 240},  // below one frame
		{3600, 2, 0},   // 240 + 3600 = 3840 = 2*1920
	}

	off := 0
	for i, c := range chunks {
		frames := s.Encode(src[off:off+c.in], true)
		off += c.in
		if len(frames) != c.wantFrames {
			t.Fatalf("chunk %d: got %d frames, want %d", i, len(frames), c.wantFrames)
		}
		if s.Pending() != c.wantPending {
			t.Fatalf("chunk %d: Pending() = %d, want %d", i, s.Pending(), c.wantPending)
		}
	}

	// Frames must cover the stream contiguously and in order.
	joined := bytes.Join(stub.got, nil)
	if !bytes.Equal(joined, src[:off]) {
		t.Errorf("encoded PCM does not reassemble the input stream (got %d bytes, want %d)", len(joined), off)
	}
	for i, f := range stub.got {
		if len(f) != FrameBytes {
			t.Errorf("frame %d: encoder saw %d bytes, want %d", i, len(f), FrameBytes)
		}
	}
}

func TestStreamEncoderNonStreamDropsTail(t *testing.T) {
	stub := &stubFrameEncoder{}
	s := NewStreamEncoder(stub)

	frames := s.Encode(pattern(2000), false)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d after non-stream call, want 0", s.Pending())
	}
}

func TestStreamEncoderNonStreamIgnoresLeftover(t *testing.T) {
	stub := &stubFrameEncoder{}
	s := NewStreamEncoder(stub)

	s.Encode(pattern(500), true)
	if s.Pending() != 500 {
		t.Fatalf("Pending() = %d, want 500", s.Pending())
	}

	in := pattern(FrameBytes)
	frames := s.Encode(in, false)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	// The non-stream frame must be the call's own bytes, no prefix.
	if !bytes.Equal(stub.got[len(stub.got)-1], in) {
		t.Error("non-stream encode mixed in retained leftover")
	}
	if s.Pending() != 500 {
		t.Errorf("Pending() = %d after non-stream call, want 500 untouched", s.Pending())
	}
}

func TestStreamEncoderOddByteDropped(t *testing.T) {
	stub := &stubFrameEncoder{}
	s := NewStreamEncoder(stub)

	frames := s.Encode(pattern(FrameBytes+1), true)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 (odd byte dropped)", s.Pending())
	}
}

func TestStreamEncoderEmptyInput(t *testing.T) {
	stub := &stubFrameEncoder{}
	s := NewStreamEncoder(stub)
	s.Encode(pattern(300), true)

	if frames := s.Encode(nil, true); frames != nil {
		t.Errorf("Encode(nil) = %d frames, want none", len(frames))
	}
	if s.Pending() != 300 {
		t.Errorf("Pending() = %d, want 300 unchanged", s.Pending())
	}
}

func TestStreamEncoderSkipsFailedFrame(t *testing.T) {
	stub := &stubFrameEncoder{failAt: map[int]bool{1: true}}
	s := NewStreamEncoder(stub)

	frames := s.Encode(pattern(3*FrameBytes+100), true)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2 (middle frame failed)", len(frames))
	}
	if s.Pending() != 100 {
		t.Errorf("Pending() = %d, want 100", s.Pending())
	}
}

func TestStreamEncoderReset(t *testing.T) {
	s := NewStreamEncoder(&stubFrameEncoder{})
	s.Encode(pattern(700), true)
	s.Reset()
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d after Reset, want 0", s.Pending())
	}

	// A fresh stream must start on a clean frame boundary.
	frames := s.Encode(pattern(FrameBytes), true)
	if len(frames) != 1 || s.Pending() != 0 {
		t.Errorf("post-Reset encode: %d frames, %d pending; want 1, 0", len(frames), s.Pending())
	}
}
