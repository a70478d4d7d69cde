package resampler

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler wraps an io.Reader and resamples audio from srcFmt to dstFmt.
// It handles sample rate conversion and channel conversion (mono↔stereo)
// for 16-bit signed little-endian samples. Close releases the conversion
// state; CloseWithError does the same and makes later Reads fail with the
// given error.
type Resampler struct {
	srcFmt Format
	src    io.Reader

	dstFmt  Format
	readBuf []byte

	mu            sync.Mutex
	closeErr      error
	resampler     resampling.Resampler
	leftover      []byte
	needsResample bool
}

// New creates a Resampler that converts audio from srcFmt to dstFmt.
func New(src io.Reader, srcFmt, dstFmt Format) (*Resampler, error) {
	needsResample := srcFmt.SampleRate != dstFmt.SampleRate

	var rs resampling.Resampler
	if needsResample {
		config := &resampling.Config{
			InputRate:  float64(srcFmt.SampleRate),
			OutputRate: float64(dstFmt.SampleRate),
			Channels:   dstFmt.channels(),
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		}
		var err error
		rs, err = resampling.New(config)
		if err != nil {
			return nil, fmt.Errorf("create resampler: %w", err)
		}
	}

	return &Resampler{
		srcFmt: srcFmt,
		src:    newAlignedReader(src, srcFmt.sampleBytes()),

		dstFmt: dstFmt,

		resampler:     rs,
		needsResample: needsResample,
	}, nil
}

// Read copies converted audio into p. It returns io.ErrShortBuffer if p
// cannot hold one destination sample. Not safe for concurrent use.
func (r *Resampler) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if len(p) < r.dstFmt.sampleBytes() {
		return 0, io.ErrShortBuffer
	}

	// Whole samples only.
	p = p[:len(p)/r.dstFmt.sampleBytes()*r.dstFmt.sampleBytes()]

	r.mu.Lock()
	defer r.mu.Unlock()

	// Drain output that did not fit in the previous call.
	if len(r.leftover) > 0 {
		n := copy(p, r.leftover)
		r.leftover = r.leftover[n:]
		return n, nil
	}

	if r.closeErr != nil {
		return 0, r.closeErr
	}

	return r.readAndProcess(p)
}

func (r *Resampler) readAndProcess(p []byte) (int, error) {
	if !r.needsResample {
		// Same rate, at most a channel conversion.
		return r.readPassthrough(p)
	}

	// Estimate how much source data fills p at the rate ratio.
	ratio := float64(r.srcFmt.SampleRate) / float64(r.dstFmt.SampleRate)
	srcBytesNeeded := int(float64(len(p))*ratio) + r.srcFmt.sampleBytes()*4

	if cap(r.readBuf) < srcBytesNeeded {
		r.readBuf = make([]byte, srcBytesNeeded)
	}

	bytesRead, readErr := r.readSourceWithChannelConv(srcBytesNeeded)
	if bytesRead == 0 {
		if readErr != nil {
			return 0, readErr
		}
		return 0, io.EOF
	}

	// To float64 frames in [-1, 1].
	numChannels := r.dstFmt.channels()
	numFrames := bytesRead / (2 * numChannels)
	input := make([]float64, numFrames*numChannels)

	for i := 0; i < numFrames*numChannels; i++ {
		sample := int16(r.readBuf[i*2]) | int16(r.readBuf[i*2+1])<<8
		input[i] = float64(sample) / 32768.0
	}

	output, err := r.resampler.Process(input)
	if err != nil {
		return 0, fmt.Errorf("resample: %w", err)
	}

	if len(output) == 0 {
		if readErr != nil {
			return 0, readErr
		}
		return 0, nil
	}

	// Back to int16 little-endian, clipped.
	outputBytes := make([]byte, len(output)*2)
	for i, s := range output {
		sample := int16(s * 32767.0)
		if s > 1.0 {
			sample = 32767
		} else if s < -1.0 {
			sample = -32768
		}
		outputBytes[i*2] = byte(sample)
		outputBytes[i*2+1] = byte(sample >> 8)
	}

	outputLen := (len(outputBytes) / r.dstFmt.sampleBytes()) * r.dstFmt.sampleBytes()
	outputBytes = outputBytes[:outputLen]

	n := copy(p, outputBytes)
	if len(outputBytes) > n {
		r.leftover = append(r.leftover, outputBytes[n:]...)
	}

	return n, readErr
}

func (r *Resampler) readPassthrough(p []byte) (int, error) {
	n, err := r.readSourceWithChannelConv(len(p))
	if n == 0 {
		return 0, err
	}
	copy(p, r.readBuf[:n])
	return n, err
}

// readSourceWithChannelConv fills readBuf with up to dstLen bytes of source
// audio already in the destination channel layout.
func (r *Resampler) readSourceWithChannelConv(dstLen int) (int, error) {
	if cap(r.readBuf) < dstLen {
		r.readBuf = make([]byte, dstLen)
	}

	if r.srcFmt.Stereo && !r.dstFmt.Stereo {
		// Downmix needs twice the source bytes.
		srcLen := dstLen * 2
		if cap(r.readBuf) < srcLen {
			r.readBuf = make([]byte, srcLen)
		}
		rn, err := r.src.Read(r.readBuf[:srcLen])
		if rn == 0 {
			return 0, err
		}
		return stereoToMono(r.readBuf[:rn]), err
	}

	if r.srcFmt.Stereo == r.dstFmt.Stereo {
		return r.src.Read(r.readBuf[:dstLen])
	}

	rn, err := r.src.Read(r.readBuf[:dstLen/2])
	if rn == 0 {
		return 0, err
	}
	return monoToStereo(r.readBuf[:rn*2]), err
}

// Close releases conversion state. Subsequent Reads return io.ErrClosedPipe.
func (r *Resampler) Close() error {
	return r.CloseWithError(fmt.Errorf("resampler: %w", io.ErrClosedPipe))
}

// CloseWithError releases conversion state and arranges for subsequent
// Reads to return err. The first error set wins.
func (r *Resampler) CloseWithError(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr == nil {
		r.closeErr = err
	}
	r.resampler = nil
	return nil
}

// Convert resamples a whole clip at once and returns exactly
// len(pcm)/srcSample * dstRate/srcRate destination frames. The conversion
// filter holds its tail at end of stream, so Convert feeds trailing zeros
// to push the final samples through, then trims the output to the exact
// frame count. Unaligned trailing bytes in pcm are ignored.
func Convert(pcm []byte, src, dst Format) ([]byte, error) {
	srcFrames := len(pcm) / src.sampleBytes()
	if srcFrames == 0 {
		return nil, nil
	}
	pcm = pcm[:srcFrames*src.sampleBytes()]

	if src == dst {
		return append([]byte(nil), pcm...), nil
	}

	dstFrames := int(int64(srcFrames) * int64(dst.SampleRate) / int64(src.SampleRate))
	want := dstFrames * dst.sampleBytes()

	var in io.Reader = bytes.NewReader(pcm)
	if src.SampleRate != dst.SampleRate {
		pad := make([]byte, src.SampleRate/4*src.sampleBytes())
		in = io.MultiReader(bytes.NewReader(pcm), bytes.NewReader(pad))
	}

	r, err := New(in, src, dst)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]byte, 0, want)
	buf := make([]byte, 32*1024)
	for len(out) < want {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	if len(out) > want {
		out = out[:want]
	}
	for len(out) < want {
		out = append(out, 0)
	}
	return out, nil
}

// stereoToMono converts stereo 16-bit samples to mono in place by averaging
// the two channels. Returns the mono byte count.
func stereoToMono(b []byte) int {
	numFrames := len(b) / 4
	for i := range numFrames {
		j := i * 4
		k := i * 2
		l := int16(b[j]) | int16(b[j+1])<<8
		r := int16(b[j+2]) | int16(b[j+3])<<8
		m := int16((int32(l) + int32(r)) / 2)
		b[k] = byte(m)
		b[k+1] = byte(m >> 8)
	}
	return numFrames * 2
}

// monoToStereo converts mono 16-bit samples to stereo in place by duplicating
// each sample. b must already have room for the stereo result.
func monoToStereo(b []byte) int {
	stereoLen := len(b)
	numSamples := stereoLen / 4
	for i := numSamples - 1; i >= 0; i-- {
		s0, s1 := b[i*2], b[i*2+1]
		j := i * 4
		b[j], b[j+1] = s0, s1
		b[j+2], b[j+3] = s0, s1
	}
	return stereoLen
}
