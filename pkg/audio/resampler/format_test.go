package resampler

import "testing"

func TestFormat(t *testing.T) {
	tests := []struct {
		name            string
		format          Format
		wantChannels    int
		wantSampleBytes int
	}{
		{"mono", Format{SampleRate: 16000}, 1, 2},
		{"stereo", Format{SampleRate: 44100, Stereo: true}, 2, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.channels(); got != tt.wantChannels {
				t.Errorf("channels() = %d, want %d", got, tt.wantChannels)
			}
			if got := tt.format.sampleBytes(); got != tt.wantSampleBytes {
				t.Errorf("sampleBytes() = %d, want %d", got, tt.wantSampleBytes)
			}
		})
	}
}
