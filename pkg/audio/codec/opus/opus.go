// Package opus transcodes the device voice channel between Opus and PCM
// using libopus via CGO.
//
// The channel format is fixed: 16 kHz, mono, 16-bit signed little-endian
// PCM, 960 samples (60 ms) per frame, audio application profile. [Codec]
// bundles the per-connection state:
//
//	c, _ := opus.NewCodec()
//	defer c.Close()
//
//	pcm := c.Decode(frame)               // uplink frame -> PCM
//	frames := c.Encode(pcm, true)        // PCM stream -> 60 ms frames
//
// Decoding is frame-at-a-time and self-healing: a corrupt frame resets the
// decoder state and yields no samples, so the caller just drops it.
// Encoding carries a sub-frame leftover between streaming calls; see
// [StreamEncoder].
//
// [Frame] and [TOC] give zero-copy access to the RFC 6716 packet header for
// container writers and diagnostics.
package opus

import "log/slog"

// Voice channel stream parameters. Every encoder, decoder and buffer in the
// audio path assumes this format.
const (
	SampleRate   = 16000
	Channels     = 1
	FrameSamples = 960              // samples per frame, 60 ms at 16 kHz
	FrameBytes   = FrameSamples * 2 // 16-bit mono
)

// Codec is the per-connection Opus transcoder. The decoder consumes uplink
// frames from the device, the stream encoder produces downlink frames for
// playback. Not safe for concurrent use; each connection owns one Codec.
type Codec struct {
	dec    *Decoder
	enc    *Encoder
	stream *StreamEncoder
	log    *slog.Logger
}

// NewCodec creates a Codec for the fixed channel format.
func NewCodec() (*Codec, error) {
	dec, err := NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, err
	}
	enc, err := NewEncoder(SampleRate, Channels, ApplicationAudio)
	if err != nil {
		dec.Close()
		return nil, err
	}
	return &Codec{
		dec:    dec,
		enc:    enc,
		stream: NewStreamEncoder(enc),
		log:    slog.Default(),
	}, nil
}

// Decode decodes one uplink frame to PCM bytes. A decode error resets the
// decoder so the next frame starts from clean state, and returns nil so the
// caller drops the frame.
func (c *Codec) Decode(frame []byte) []byte {
	if len(frame) == 0 {
		return nil
	}
	pcm, err := c.dec.Decode(frame)
	if err != nil {
		c.log.Warn("opus decode failed, resetting decoder", "err", err)
		if err := c.dec.Reset(); err != nil {
			c.log.Error("opus decoder reset failed", "err", err)
		}
		return nil
	}
	return pcm
}

// Encode slices pcm into 60 ms frames and encodes each one. When stream is
// true, a trailing partial frame is retained and prefixed to the next call;
// when false, it is dropped.
func (c *Codec) Encode(pcm []byte, stream bool) []Frame {
	return c.stream.Encode(pcm, stream)
}

// ResetEncoder discards any PCM retained between streaming encode calls.
// Call it between utterances so one response's tail never leaks into the
// next.
func (c *Codec) ResetEncoder() {
	c.stream.Reset()
}

// Close releases the libopus encoder and decoder.
func (c *Codec) Close() {
	c.dec.Close()
	c.enc.Close()
}
