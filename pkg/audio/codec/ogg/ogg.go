// Package ogg reads and writes OGG Opus containers in pure Go.
//
// Merged assistant audio is persisted as one OGG Opus stream per file:
// OpusHead and OpusTags header pages followed by one page per Opus frame,
// granule positions paced at the 48 kHz clock RFC 7845 prescribes
// regardless of the coded sample rate.
//
//	w, err := ogg.NewOpusWriter(f, 16000, 1)
//	for _, frame := range frames {
//	    w.Write(frame)
//	}
//	w.Close()
//
// Reading back:
//
//	for pkt, err := range ogg.ReadOpusPackets(f) {
//	    ...
//	}
package ogg

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Page header type flags.
const (
	// Continued marks a page whose first segment continues a packet from
	// the previous page.
	Continued = 0x01
	// BOS marks the first page of a logical stream.
	BOS = 0x02
	// EOS marks the last page of a logical stream.
	EOS = 0x04
)

const (
	pageHeaderSignature  = "OggS"
	idPageSignature      = "OpusHead"
	commentPageSignature = "OpusTags"
	pageHeaderSize       = 27
	maxSegmentSize       = 255

	// RFC 7845 §5.1 recommends 80 ms of pre-skip (3840 samples at 48 kHz).
	defaultPreSkip = 3840

	vendor = "giztalk"
)

var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("ogg: writer is closed")
	// ErrNilWriter is returned when the underlying writer is nil.
	ErrNilWriter = errors.New("ogg: nil writer")
	// ErrBadChecksum is returned for a page whose CRC does not match.
	ErrBadChecksum = errors.New("ogg: bad page checksum")
	// ErrHole is returned when a continued packet is missing its start or
	// its continuation.
	ErrHole = errors.New("ogg: hole in data")
)

// OpusHead is the identification header of an OGG Opus stream.
type OpusHead struct {
	Version    uint8
	Channels   uint8
	PreSkip    uint16
	SampleRate uint32
	OutputGain int16
	Mapping    uint8
}

// ParseOpusHead parses an OpusHead packet.
func ParseOpusHead(data []byte) (*OpusHead, error) {
	if len(data) < 19 || string(data[:8]) != idPageSignature {
		return nil, fmt.Errorf("ogg: not an OpusHead packet")
	}
	return &OpusHead{
		Version:    data[8],
		Channels:   data[9],
		PreSkip:    binary.LittleEndian.Uint16(data[10:]),
		SampleRate: binary.LittleEndian.Uint32(data[12:]),
		OutputGain: int16(binary.LittleEndian.Uint16(data[16:])),
		Mapping:    data[18],
	}, nil
}

// isOpusHeader reports whether the packet is an OpusHead or OpusTags header.
func isOpusHeader(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	sig := string(data[:8])
	return sig == idPageSignature || sig == commentPageSignature
}

// checksumTable is the CRC-32 lookup table the OGG page checksum uses
// (polynomial 0x04c11db7, no reflection, zero init and final XOR).
var checksumTable = generateChecksumTable()

func generateChecksumTable() *[256]uint32 {
	var table [256]uint32
	const poly = 0x04c11db7

	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if (r & 0x80000000) != 0 {
				r = (r << 1) ^ poly
			} else {
				r <<= 1
			}
			table[i] = r & 0xffffffff
		}
	}
	return &table
}

// oggChecksum computes the page CRC over the given byte runs. The checksum
// field itself must be zeroed in the input.
func oggChecksum(parts ...[]byte) uint32 {
	var crc uint32
	for _, p := range parts {
		for _, b := range p {
			crc = (crc << 8) ^ checksumTable[byte(crc>>24)^b]
		}
	}
	return crc
}
