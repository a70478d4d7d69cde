package pcm

import (
	"encoding/binary"
	"fmt"
)

// Header describes the PCM stream inside a WAV container. Only 16-bit
// integer PCM is supported.
type Header struct {
	SampleRate int
	Channels   int
}

// wavHeaderSize is the canonical RIFF+fmt+data preamble length.
const wavHeaderSize = 44

// EncodeWAV wraps int16 little-endian PCM bytes in a canonical WAV
// container.
func EncodeWAV(h Header, pcm []byte) []byte {
	byteRate := h.SampleRate * h.Channels * 2
	blockAlign := h.Channels * 2

	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(h.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(h.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], 16) // bits per sample
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)
	return out
}

// DecodeWAV parses a WAV container and returns its header and PCM payload.
// Chunks other than fmt and data are skipped, so files with LIST or fact
// chunks parse fine. The payload aliases b; clone it if b is reused.
func DecodeWAV(b []byte) (Header, []byte, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return Header{}, nil, fmt.Errorf("pcm: not a WAV container")
	}

	var h Header
	var data []byte
	sawFmt := false

	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(b) {
			// Tolerate a truncated final data chunk; some streamers write
			// the size before knowing it.
			if id == "data" {
				size = len(b) - body
			} else {
				return Header{}, nil, fmt.Errorf("pcm: truncated %q chunk", id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Header{}, nil, fmt.Errorf("pcm: fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(b[body : body+2])
			if format != 1 {
				return Header{}, nil, fmt.Errorf("pcm: unsupported WAV format %d, want PCM", format)
			}
			bits := binary.LittleEndian.Uint16(b[body+14 : body+16])
			if bits != 16 {
				return Header{}, nil, fmt.Errorf("pcm: unsupported bit depth %d, want 16", bits)
			}
			h.Channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			h.SampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			if h.Channels < 1 || h.Channels > 2 || h.SampleRate <= 0 {
				return Header{}, nil, fmt.Errorf("pcm: bad WAV format: %d channels at %d Hz", h.Channels, h.SampleRate)
			}
			sawFmt = true
		case "data":
			data = b[body : body+size]
		}

		// Chunk bodies are padded to even lengths.
		off = body + size + size%2
	}

	if !sawFmt {
		return Header{}, nil, fmt.Errorf("pcm: WAV missing fmt chunk")
	}
	if data == nil {
		return Header{}, nil, fmt.Errorf("pcm: WAV missing data chunk")
	}
	return h, data, nil
}
