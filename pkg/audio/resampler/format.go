package resampler

// Format describes a 16-bit signed little-endian PCM layout.
type Format struct {
	// SampleRate in Hz, e.g. 16000, 24000, 44100.
	SampleRate int

	// Stereo selects two interleaved channels; false means mono.
	Stereo bool
}

func (f Format) channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

// sampleBytes is the size of one frame across all channels.
func (f Format) sampleBytes() int {
	if f.Stereo {
		return 4
	}
	return 2
}
