package ogg

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/haivivi/giztalk/go/pkg/audio/codec/opus"
)

// OpusWriter writes one logical Opus stream to an OGG container, one page
// per frame. Close writes the EOS page and closes the underlying writer if
// it is an io.Closer.
type OpusWriter struct {
	mu        sync.Mutex
	w         io.Writer
	serialNo  int32
	granule   int64
	pageIndex uint32
	closed    bool
}

// NewOpusWriter starts an OGG Opus stream with a random serial number and
// writes its OpusHead and OpusTags header pages. sampleRate and channels
// describe the coded audio; granule positions always run at 48 kHz.
func NewOpusWriter(w io.Writer, sampleRate, channels int) (*OpusWriter, error) {
	if w == nil {
		return nil, ErrNilWriter
	}

	var serialNo int32
	if err := binary.Read(rand.Reader, binary.LittleEndian, &serialNo); err != nil {
		serialNo = 1
	}

	ow := &OpusWriter{
		w:        w,
		serialNo: serialNo,
	}
	if err := ow.writeHeaders(sampleRate, channels); err != nil {
		return nil, err
	}
	return ow, nil
}

// SerialNo returns the stream serial number.
func (w *OpusWriter) SerialNo() int32 {
	return w.serialNo
}

func (w *OpusWriter) writeHeaders(sampleRate, channels int) error {
	idHeader := make([]byte, 19)
	copy(idHeader[0:], idPageSignature)
	idHeader[8] = 1 // version
	idHeader[9] = uint8(channels)
	binary.LittleEndian.PutUint16(idHeader[10:], defaultPreSkip)
	binary.LittleEndian.PutUint32(idHeader[12:], uint32(sampleRate))
	binary.LittleEndian.PutUint16(idHeader[16:], 0) // output gain
	idHeader[18] = 0                                // channel mapping family

	if err := w.writePage(idHeader, BOS, 0); err != nil {
		return err
	}

	commentHeader := make([]byte, 16+len(vendor))
	copy(commentHeader[0:], commentPageSignature)
	binary.LittleEndian.PutUint32(commentHeader[8:], uint32(len(vendor)))
	copy(commentHeader[12:], vendor)
	binary.LittleEndian.PutUint32(commentHeader[12+len(vendor):], 0) // no user comments

	return w.writePage(commentHeader, 0, 0)
}

// Write appends one Opus frame as its own page, advancing the granule
// position by the frame duration at the 48 kHz granule clock.
func (w *OpusWriter) Write(frame opus.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	w.granule += int64(frame.Duration() * 48000 / time.Second)
	return w.writePage(frame, 0, uint64(w.granule))
}

// Granule returns the current granule position.
func (w *OpusWriter) Granule() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.granule
}

// Close writes the EOS page and closes the underlying writer if it
// implements io.Closer. Safe to call more than once.
func (w *OpusWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	err := w.writePage(nil, EOS, uint64(w.granule))
	if closer, ok := w.w.(io.Closer); ok {
		if cerr := closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// writePage frames payload as a single OGG page and writes it out.
func (w *OpusWriter) writePage(payload []byte, headerType uint8, granulePos uint64) error {
	payloadLen := len(payload)
	nSegments := 1
	if payloadLen > 0 {
		nSegments = (payloadLen / maxSegmentSize) + 1
	}

	page := make([]byte, pageHeaderSize+nSegments+payloadLen)

	copy(page[0:], pageHeaderSignature)
	page[4] = 0 // version
	page[5] = headerType
	binary.LittleEndian.PutUint64(page[6:], granulePos)
	binary.LittleEndian.PutUint32(page[14:], uint32(w.serialNo))
	binary.LittleEndian.PutUint32(page[18:], w.pageIndex)
	// page[22:26] is the checksum, filled in below
	page[26] = uint8(nSegments)

	if payloadLen > 0 {
		for i := 0; i < nSegments-1; i++ {
			page[pageHeaderSize+i] = 255
		}
		page[pageHeaderSize+nSegments-1] = uint8(payloadLen % maxSegmentSize)
	} else {
		page[pageHeaderSize] = 0
	}

	copy(page[pageHeaderSize+nSegments:], payload)

	binary.LittleEndian.PutUint32(page[22:], oggChecksum(page))

	if _, err := w.w.Write(page); err != nil {
		return err
	}
	w.pageIndex++
	return nil
}
