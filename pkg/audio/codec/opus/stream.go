package opus

import "log/slog"

// FrameEncoder encodes one frame of int16 little-endian PCM bytes.
// *Encoder satisfies it.
type FrameEncoder interface {
	EncodeBytes(pcm []byte) (Frame, error)
}

var _ FrameEncoder = (*Encoder)(nil)

// StreamEncoder slices an incoming PCM byte stream into fixed 60 ms frames
// and encodes each one. TTS providers deliver audio in arbitrarily sized
// chunks, so a trailing partial frame is carried over and prefixed to the
// next streaming call. Not safe for concurrent use.
type StreamEncoder struct {
	enc      FrameEncoder
	log      *slog.Logger
	leftover []byte // always shorter than FrameBytes
}

// NewStreamEncoder creates a StreamEncoder on top of enc.
func NewStreamEncoder(enc FrameEncoder) *StreamEncoder {
	return &StreamEncoder{
		enc: enc,
		log: slog.Default(),
	}
}

// Encode encodes pcm into 60 ms Opus frames. When stream is true, the
// retained leftover from prior calls is prefixed first and the new trailing
// partial frame is retained for the next call. When stream is false, the
// input is encoded alone and a trailing partial frame is dropped; the
// retained leftover is untouched.
//
// A frame that fails to encode is logged and skipped; an odd trailing byte
// is dropped to keep int16 alignment.
func (s *StreamEncoder) Encode(pcm []byte, stream bool) []Frame {
	if len(pcm) == 0 {
		return nil
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}

	data := pcm
	if stream && len(s.leftover) > 0 {
		data = make([]byte, 0, len(s.leftover)+len(pcm))
		data = append(data, s.leftover...)
		data = append(data, pcm...)
	}

	n := len(data) / FrameBytes
	var frames []Frame
	for i := 0; i < n; i++ {
		f, err := s.enc.EncodeBytes(data[i*FrameBytes : (i+1)*FrameBytes])
		if err != nil {
			s.log.Warn("opus frame encode failed", "err", err)
			continue
		}
		if len(f) > 0 {
			frames = append(frames, f)
		}
	}

	if stream {
		s.leftover = append(s.leftover[:0], data[n*FrameBytes:]...)
	}
	return frames
}

// Pending returns the number of leftover PCM bytes retained from the last
// streaming call.
func (s *StreamEncoder) Pending() int {
	return len(s.leftover)
}

// Reset discards the retained leftover.
func (s *StreamEncoder) Reset() {
	s.leftover = s.leftover[:0]
}
