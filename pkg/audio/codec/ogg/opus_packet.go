package ogg

import (
	"github.com/haivivi/giztalk/go/pkg/audio/codec/opus"
)

// OpusPacket is one Opus packet extracted from an OGG container.
type OpusPacket struct {
	// Frame is the raw Opus encoded data.
	Frame opus.Frame

	// Granule is the position, in 48 kHz PCM samples, of the end of this
	// packet's audio. It is -1 for packets that are not the last one
	// completed on their page.
	Granule int64

	// SerialNo identifies the logical stream this packet belongs to.
	SerialNo int32

	// BOS marks the first packet of a logical stream.
	BOS bool

	// EOS marks the last packet of a logical stream.
	EOS bool
}
