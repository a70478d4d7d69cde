package ogg

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"iter"

	"github.com/haivivi/giztalk/go/pkg/audio/codec/opus"
)

// rawPage is one parsed and checksum-verified OGG page.
type rawPage struct {
	headerType byte
	granule    int64
	serialNo   int32
	lacing     []byte
	body       []byte
}

// readPage reads the next page. Returns io.EOF at a clean page boundary
// and ErrBadChecksum, with the page consumed, when the CRC does not match.
func readPage(br *bufio.Reader) (*rawPage, error) {
	header := make([]byte, pageHeaderSize)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, err
	}

	if string(header[0:4]) != pageHeaderSignature {
		return nil, fmt.Errorf("ogg: missing capture pattern")
	}
	if header[4] != 0 {
		return nil, fmt.Errorf("ogg: unsupported page version %d", header[4])
	}

	lacing := make([]byte, header[26])
	if _, err := io.ReadFull(br, lacing); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	bodyLen := 0
	for _, l := range lacing {
		bodyLen += int(l)
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(br, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	want := binary.LittleEndian.Uint32(header[22:])
	header[22], header[23], header[24], header[25] = 0, 0, 0, 0
	if oggChecksum(header, lacing, body) != want {
		return nil, ErrBadChecksum
	}

	return &rawPage{
		headerType: header[5],
		granule:    int64(binary.LittleEndian.Uint64(header[6:])),
		serialNo:   int32(binary.LittleEndian.Uint32(header[14:])),
		lacing:     lacing,
		body:       body,
	}, nil
}

// ReadOpusPackets reads Opus packets from an OGG container. It returns an
// iterator yielding packet and error pairs; the caller owns the underlying
// reader.
//
// Multiplexed and chained streams are supported: each packet carries the
// SerialNo of its logical stream, with BOS and EOS marking stream
// boundaries. OpusHead and OpusTags header packets are skipped. A page
// with a bad checksum or a torn packet continuation yields an error and
// reading resumes at the next page.
//
// Example:
//
//	for pkt, err := range ogg.ReadOpusPackets(file) {
//	    if err != nil {
//	        return err
//	    }
//	    // process pkt.Frame
//	}
func ReadOpusPackets(r io.Reader) iter.Seq2[*OpusPacket, error] {
	return func(yield func(*OpusPacket, error) bool) {
		br := bufio.NewReader(r)
		carry := make(map[int32][]byte)
		carryBOS := make(map[int32]bool)

		for {
			page, err := readPage(br)
			if err == io.EOF {
				return
			}
			if err == ErrBadChecksum {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if err != nil {
				yield(nil, err)
				return
			}

			acc := carry[page.serialNo]
			accBOS := carryBOS[page.serialNo]
			continued := page.headerType&Continued != 0

			// A continuation with nothing carried, or carried data with no
			// continuation, means pages went missing in between.
			dropping := false
			if continued && len(acc) == 0 {
				dropping = true
				if !yield(nil, ErrHole) {
					return
				}
			}
			if !continued && len(acc) > 0 {
				acc, accBOS = nil, false
				if !yield(nil, ErrHole) {
					return
				}
			}

			// The first packet starting on a BOS page opens the stream.
			bosPending := page.headerType&BOS != 0
			var completed []*OpusPacket
			pos := 0
			for _, l := range page.lacing {
				seg := page.body[pos : pos+int(l)]
				pos += int(l)

				if dropping {
					// Discard the tail of the packet whose start was lost.
					if l < maxSegmentSize {
						dropping = false
					}
					continue
				}

				if len(acc) == 0 {
					accBOS = bosPending
					bosPending = false
				}
				acc = append(acc, seg...)
				if l < maxSegmentSize {
					completed = append(completed, &OpusPacket{
						Frame:    opus.Frame(acc),
						Granule:  -1,
						SerialNo: page.serialNo,
						BOS:      accBOS,
					})
					acc, accBOS = nil, false
				}
			}
			carry[page.serialNo] = acc
			carryBOS[page.serialNo] = accBOS

			if len(completed) > 0 {
				last := completed[len(completed)-1]
				last.Granule = page.granule
				if page.headerType&EOS != 0 {
					last.EOS = true
				}
			}

			for _, pkt := range completed {
				if len(pkt.Frame) == 0 || isOpusHeader(pkt.Frame) {
					continue
				}
				if !yield(pkt, nil) {
					return
				}
			}
		}
	}
}

// ReadOpusHead reads the identification header from the start of an OGG
// Opus stream.
func ReadOpusHead(r io.Reader) (*OpusHead, error) {
	page, err := readPage(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}
	if page.headerType&BOS == 0 {
		return nil, fmt.Errorf("ogg: first page is not a stream start")
	}
	if len(page.lacing) == 0 || page.lacing[0] == 0 || page.lacing[0] == maxSegmentSize {
		return nil, fmt.Errorf("ogg: malformed identification page")
	}
	return ParseOpusHead(page.body[:page.lacing[0]])
}
