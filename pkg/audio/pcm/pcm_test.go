package pcm

import (
	"testing"
	"time"
)

func TestFormatMath(t *testing.T) {
	tests := []struct {
		format    Format
		rate      int
		bytesRate int
		in60ms    int64
	}{
		{L16Mono16K, 16000, 32000, 1920},
		{L16Mono24K, 24000, 48000, 2880},
		{L16Mono48K, 48000, 96000, 5760},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.SampleRate(); got != tt.rate {
				t.Errorf("SampleRate() = %d, want %d", got, tt.rate)
			}
			if got := tt.format.BytesRate(); got != tt.bytesRate {
				t.Errorf("BytesRate() = %d, want %d", got, tt.bytesRate)
			}
			if got := tt.format.BytesInDuration(60 * time.Millisecond); got != tt.in60ms {
				t.Errorf("BytesInDuration(60ms) = %d, want %d", got, tt.in60ms)
			}
			if got := tt.format.Channels(); got != 1 {
				t.Errorf("Channels() = %d, want 1", got)
			}
			if got := tt.format.Depth(); got != 16 {
				t.Errorf("Depth() = %d, want 16", got)
			}
		})
	}
}

func TestFormatDurationRoundTrip(t *testing.T) {
	f := L16Mono16K
	if got := f.Duration(32000); got != time.Second {
		t.Errorf("Duration(32000) = %v, want 1s", got)
	}
	if got := f.Samples(1920); got != 960 {
		t.Errorf("Samples(1920) = %d, want 960", got)
	}
	if got := f.SamplesInDuration(time.Second); got != 16000 {
		t.Errorf("SamplesInDuration(1s) = %d, want 16000", got)
	}
}
