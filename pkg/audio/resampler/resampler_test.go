package resampler

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func pcm16(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

func drain(t *testing.T, r io.Reader) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
}

func TestPassthroughMonoToStereo(t *testing.T) {
	src := Format{SampleRate: 16000}
	dst := Format{SampleRate: 16000, Stereo: true}

	r, err := New(bytes.NewReader(pcm16(10, -20)), src, dst)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	got := drain(t, r)
	want := pcm16(10, 10, -20, -20)
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPassthroughStereoToMono(t *testing.T) {
	src := Format{SampleRate: 16000, Stereo: true}
	dst := Format{SampleRate: 16000}

	// Each frame averages to (L+R)/2 truncated toward zero.
	in := pcm16(100, 200, -300, 100, 32767, 32767)
	r, err := New(bytes.NewReader(in), src, dst)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	got := drain(t, r)
	want := pcm16(150, -100, 32767)
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestConvertSilence(t *testing.T) {
	tests := []struct {
		name     string
		srcRate  int
		dstRate  int
		srcBytes int
		want     int
	}{
		{"24k to 16k", 24000, 16000, 24000, 16000},
		{"16k to 24k", 16000, 24000, 16000, 24000},
		{"44.1k to 16k", 44100, 16000, 88200, 32000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := Format{SampleRate: tt.srcRate}
			dst := Format{SampleRate: tt.dstRate}

			out, err := Convert(make([]byte, tt.srcBytes), src, dst)
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			if len(out) != tt.want {
				t.Errorf("Convert returned %d bytes, want %d", len(out), tt.want)
			}
			for i, b := range out {
				if b != 0 {
					t.Errorf("byte %d = %#x, want silence", i, b)
					break
				}
			}
		})
	}
}

func TestConvertCarriesSignal(t *testing.T) {
	src := Format{SampleRate: 24000}
	dst := Format{SampleRate: 16000}

	in := make([]byte, 0, 24000)
	for range 12000 {
		in = append(in, pcm16(1000)...)
	}

	out, err := Convert(in, src, dst)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(out) != 16000 {
		t.Fatalf("Convert returned %d bytes, want 16000", len(out))
	}
	silent := true
	for _, b := range out {
		if b != 0 {
			silent = false
			break
		}
	}
	if silent {
		t.Error("Convert of a constant tone returned silence")
	}
}

func TestConvertChannelOnly(t *testing.T) {
	src := Format{SampleRate: 16000}
	dst := Format{SampleRate: 16000, Stereo: true}

	out, err := Convert(pcm16(7, 8, 9), src, dst)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := pcm16(7, 7, 8, 8, 9, 9)
	if !bytes.Equal(out, want) {
		t.Errorf("got %v, want %v", out, want)
	}
}

func TestConvertSameFormat(t *testing.T) {
	f := Format{SampleRate: 16000}
	in := pcm16(1, 2, 3)

	out, err := Convert(in, f, f)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("got %v, want %v", out, in)
	}
	out[0] = 0xFF
	if in[0] == 0xFF {
		t.Error("Convert aliased its input")
	}
}

func TestConvertEmpty(t *testing.T) {
	out, err := Convert(nil, Format{SampleRate: 24000}, Format{SampleRate: 16000})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Convert of nothing returned %d bytes", len(out))
	}
}

func TestCloseWithError(t *testing.T) {
	r, err := New(bytes.NewReader(pcm16(1, 2)), Format{SampleRate: 16000}, Format{SampleRate: 16000, Stereo: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sentinel := errors.New("upstream failed")
	if err := r.CloseWithError(sentinel); err != nil {
		t.Fatalf("CloseWithError: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := r.Read(make([]byte, 16)); !errors.Is(err, sentinel) {
		t.Errorf("Read err = %v, want the close error", err)
	}
}
