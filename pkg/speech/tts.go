package speech

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	audiopcm "github.com/haivivi/giztalk/go/pkg/audio/pcm"
	"github.com/haivivi/giztalk/go/pkg/audio/resampler"
)

// channelRate is the fixed sample rate of the device voice channel.
const channelRate = 16000

// writeWAV stores pcm (sampleRate Hz, channels ch, 16-bit) as a 16 kHz
// mono WAV file with a random name under dir and returns the absolute
// path. Provider output at other rates or channel counts is converted on
// the way in.
func writeWAV(dir string, pcm []byte, sampleRate, channels int) (string, error) {
	if len(pcm) == 0 {
		return "", fmt.Errorf("speech: no audio to write")
	}
	if sampleRate != channelRate || channels != 1 {
		converted, err := resampler.Convert(pcm,
			resampler.Format{SampleRate: sampleRate, Stereo: channels == 2},
			resampler.Format{SampleRate: channelRate})
		if err != nil {
			return "", fmt.Errorf("speech: resample %d Hz/%dch: %w", sampleRate, channels, err)
		}
		pcm = converted
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path, err := filepath.Abs(filepath.Join(dir, uuid.NewString()+".wav"))
	if err != nil {
		return "", err
	}
	data := audiopcm.EncodeWAV(audiopcm.Header{
		SampleRate: channelRate,
		Channels:   1,
	}, pcm)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
