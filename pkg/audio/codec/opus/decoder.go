package opus

/*
#cgo pkg-config: opus
#include <opus.h>
#include <stdlib.h>

// Wrapper function for variadic opus_decoder_ctl
static int opus_decoder_reset(OpusDecoder *dec) {
    return opus_decoder_ctl(dec, OPUS_RESET_STATE);
}
*/
import "C"
import (
	"fmt"
	"unsafe"
)

// maxFrameMillis is the longest audio duration one Opus packet can carry.
const maxFrameMillis = 120

// Decoder wraps a libopus decoder.
type Decoder struct {
	sampleRate int
	channels   int
	cDec       *C.OpusDecoder
}

// NewDecoder creates a decoder. sampleRate must be 8000, 12000, 16000,
// 24000 or 48000 and channels 1 or 2.
func NewDecoder(sampleRate, channels int) (*Decoder, error) {
	var cerr C.int
	cDec := C.opus_decoder_create(C.opus_int32(sampleRate), C.int(channels), &cerr)
	if cerr != C.OPUS_OK {
		return nil, fmt.Errorf("opus: decoder create failed: %s", C.GoString(C.opus_strerror(cerr)))
	}
	return &Decoder{
		sampleRate: sampleRate,
		channels:   channels,
		cDec:       cDec,
	}, nil
}

// Close releases the decoder resources.
func (d *Decoder) Close() {
	if d.cDec != nil {
		C.opus_decoder_destroy(d.cDec)
		d.cDec = nil
	}
}

// Decode decodes one Opus packet to int16 little-endian PCM bytes.
func (d *Decoder) Decode(f Frame) ([]byte, error) {
	if d.cDec == nil {
		return nil, fmt.Errorf("opus: decoder is closed")
	}

	maxSamples := d.sampleRate * maxFrameMillis / 1000
	buf := make([]int16, maxSamples*d.channels)

	var dataPtr *C.uchar
	var dataLen C.opus_int32
	if len(f) > 0 {
		dataPtr = (*C.uchar)(unsafe.Pointer(&f[0]))
		dataLen = C.opus_int32(len(f))
	}

	n := C.opus_decode(d.cDec, dataPtr, dataLen,
		(*C.opus_int16)(unsafe.Pointer(&buf[0])), C.int(maxSamples), 0)
	if n < 0 {
		return nil, fmt.Errorf("opus: decode failed: %s", C.GoString(C.opus_strerror(n)))
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(&buf[0])), 2*int(n)*d.channels), nil
}

// Reset clears the decoder state without reallocating it. Used to recover
// after a corrupt packet poisons the prediction state.
func (d *Decoder) Reset() error {
	if d.cDec == nil {
		return fmt.Errorf("opus: decoder is closed")
	}
	ret := C.opus_decoder_reset(d.cDec)
	if ret != C.OPUS_OK {
		return fmt.Errorf("opus: decoder reset failed: %s", C.GoString(C.opus_strerror(ret)))
	}
	return nil
}

// SampleRate returns the sample rate of this decoder.
func (d *Decoder) SampleRate() int {
	return d.sampleRate
}

// Channels returns the number of channels of this decoder.
func (d *Decoder) Channels() int {
	return d.channels
}
