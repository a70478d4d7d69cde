package opus

/*
#cgo pkg-config: opus
#include <opus.h>
#include <stdlib.h>

// Wrapper functions for variadic opus_encoder_ctl
static int opus_encoder_set_bitrate(OpusEncoder *enc, opus_int32 bitrate) {
    return opus_encoder_ctl(enc, OPUS_SET_BITRATE(bitrate));
}

static int opus_encoder_set_complexity(OpusEncoder *enc, opus_int32 complexity) {
    return opus_encoder_ctl(enc, OPUS_SET_COMPLEXITY(complexity));
}
*/
import "C"
import (
	"fmt"
	"unsafe"
)

// Application type constants for encoder initialization.
const (
	// ApplicationVoIP gives best quality at a given bitrate for voice signals.
	ApplicationVoIP = int(C.OPUS_APPLICATION_VOIP)

	// ApplicationAudio gives best quality at a given bitrate for general audio.
	ApplicationAudio = int(C.OPUS_APPLICATION_AUDIO)

	// ApplicationRestrictedLowdelay configures the minimum possible coding delay.
	ApplicationRestrictedLowdelay = int(C.OPUS_APPLICATION_RESTRICTED_LOWDELAY)
)

// maxPacketBytes bounds one encoded packet, per the libopus recommendation.
const maxPacketBytes = 4000

// Encoder wraps a libopus encoder.
type Encoder struct {
	sampleRate int
	channels   int
	cEnc       *C.OpusEncoder
}

// NewEncoder creates an encoder. sampleRate must be 8000, 12000, 16000,
// 24000 or 48000 and channels 1 or 2. The voice channel uses
// NewEncoder(SampleRate, Channels, ApplicationAudio).
func NewEncoder(sampleRate, channels, application int) (*Encoder, error) {
	var cerr C.int
	cEnc := C.opus_encoder_create(C.opus_int32(sampleRate), C.int(channels), C.int(application), &cerr)
	if cerr != C.OPUS_OK {
		return nil, fmt.Errorf("opus: encoder create failed: %s", C.GoString(C.opus_strerror(cerr)))
	}
	return &Encoder{
		sampleRate: sampleRate,
		channels:   channels,
		cEnc:       cEnc,
	}, nil
}

// Close releases the encoder resources.
func (e *Encoder) Close() {
	if e.cEnc != nil {
		C.opus_encoder_destroy(e.cEnc)
		e.cEnc = nil
	}
}

// Encode encodes exactly one frame of PCM samples. The frame size is derived
// from the input length, which must be a permitted Opus frame duration
// (2.5 to 60 ms) times the channel count.
func (e *Encoder) Encode(pcm []int16) (Frame, error) {
	if e.cEnc == nil {
		return nil, fmt.Errorf("opus: encoder is closed")
	}
	if len(pcm) == 0 || len(pcm)%e.channels != 0 {
		return nil, fmt.Errorf("opus: bad pcm length %d for %d channels", len(pcm), e.channels)
	}

	frameSize := len(pcm) / e.channels
	buf := make([]byte, maxPacketBytes)
	n := C.opus_encode(e.cEnc,
		(*C.opus_int16)(unsafe.Pointer(&pcm[0])), C.int(frameSize),
		(*C.uchar)(unsafe.Pointer(&buf[0])), C.opus_int32(len(buf)))
	if n < 0 {
		return nil, fmt.Errorf("opus: encode failed: %s", C.GoString(C.opus_strerror(n)))
	}
	return buf[:n], nil
}

// EncodeBytes encodes one frame of int16 little-endian PCM bytes.
func (e *Encoder) EncodeBytes(pcm []byte) (Frame, error) {
	if len(pcm) < 2 {
		return nil, fmt.Errorf("opus: bad pcm byte length %d", len(pcm))
	}
	samples := unsafe.Slice((*int16)(unsafe.Pointer(&pcm[0])), len(pcm)/2)
	return e.Encode(samples)
}

// SampleRate returns the sample rate of this encoder.
func (e *Encoder) SampleRate() int {
	return e.sampleRate
}

// Channels returns the number of channels of this encoder.
func (e *Encoder) Channels() int {
	return e.channels
}

// SetBitrate sets the target bitrate in bits per second.
func (e *Encoder) SetBitrate(bitrate int) error {
	if e.cEnc == nil {
		return fmt.Errorf("opus: encoder is closed")
	}
	ret := C.opus_encoder_set_bitrate(e.cEnc, C.opus_int32(bitrate))
	if ret != C.OPUS_OK {
		return fmt.Errorf("opus: set bitrate failed: %s", C.GoString(C.opus_strerror(ret)))
	}
	return nil
}

// SetComplexity sets the encoder's computational complexity (0-10).
func (e *Encoder) SetComplexity(complexity int) error {
	if e.cEnc == nil {
		return fmt.Errorf("opus: encoder is closed")
	}
	ret := C.opus_encoder_set_complexity(e.cEnc, C.opus_int32(complexity))
	if ret != C.OPUS_OK {
		return fmt.Errorf("opus: set complexity failed: %s", C.GoString(C.opus_strerror(ret)))
	}
	return nil
}
