package resampler

import "io"

// alignedReader delivers reads in whole-sample units so the conversion
// filter never sees a torn 16-bit sample. A trailing remainder is held
// back and prefixed to the next read.
type alignedReader struct {
	r    io.Reader
	unit int // bytes per sample across all channels

	rem  []byte // held-back remainder, less than one unit
	nrem int
}

func newAlignedReader(r io.Reader, unit int) *alignedReader {
	return &alignedReader{
		r:    r,
		unit: unit,
		rem:  make([]byte, unit-1),
	}
}

// Read fills p with a multiple of the sample unit. It returns
// io.ErrShortBuffer when p cannot hold even one sample, and
// io.ErrUnexpectedEOF when the source ends mid-sample.
func (ar *alignedReader) Read(p []byte) (int, error) {
	if len(p) < ar.unit {
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)/ar.unit*ar.unit]

	n := 0
	if ar.nrem > 0 {
		n = copy(p, ar.rem[:ar.nrem])
		ar.nrem = 0
	}

	rn, err := ar.r.Read(p[n:])
	n += rn
	if err != nil {
		if err == io.EOF && n%ar.unit != 0 {
			return n, io.ErrUnexpectedEOF
		}
		return n, err
	}
	if tail := n % ar.unit; tail != 0 {
		n -= tail
		copy(ar.rem, p[n:n+tail])
		ar.nrem = tail
	}
	return n, nil
}
