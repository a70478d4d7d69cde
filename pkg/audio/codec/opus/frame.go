package opus

import (
	"fmt"
	"slices"
	"time"
)

// Frame is one encoded Opus packet as carried on the voice channel.
type Frame []byte

// TOC returns the table-of-contents header byte.
func (f Frame) TOC() TOC {
	if len(f) == 0 {
		return 0
	}
	return TOC(f[0])
}

// Clone returns a copy of the frame.
func (f Frame) Clone() Frame {
	return slices.Clone(f)
}

// IsStereo reports whether the frame carries stereo audio.
func (f Frame) IsStereo() bool {
	return f.TOC().IsStereo()
}

// Samples returns the number of samples per channel in one code-0 frame.
func (f Frame) Samples() int {
	return f.TOC().Configuration().Samples()
}

// Duration returns the total audio duration of the packet, accounting for
// the frame count code.
func (f Frame) Duration() time.Duration {
	if len(f) == 0 {
		return 0
	}
	toc := f.TOC()
	fd := toc.Configuration().FrameDuration().Duration()
	switch toc.FrameCode() {
	case OneFrame:
		return fd
	case TwoEqualFrames, TwoDifferentFrames:
		return fd * 2
	case ArbitraryFrames:
		if len(f) < 2 {
			return 0
		}
		// Frame count lives in the low six bits of the byte after the TOC.
		return fd * time.Duration(f[1]&0b00111111)
	}
	return 0
}

// TOC is the table-of-contents header of an Opus packet: a configuration
// number, a stereo flag and a frame count code.
//
//	 0 1 2 3 4 5 6 7
//	+-+-+-+-+-+-+-+-+
//	| config  |s| c |
//	+-+-+-+-+-+-+-+-+
//
// https://datatracker.ietf.org/doc/html/rfc6716#section-3.1
type TOC byte

// Configuration returns the configuration number (bits 0..4).
func (t TOC) Configuration() Configuration {
	return Configuration(t >> 3)
}

// IsStereo reports whether the stereo bit is set.
func (t TOC) IsStereo() bool {
	return (t & 0b00000100) != 0
}

// FrameCode returns the frame count code (bits 6..7).
func (t TOC) FrameCode() FrameCode {
	return FrameCode(t & 0b00000011)
}

func (t TOC) String() string {
	return fmt.Sprintf(
		"opus_toc: stereo=%v, mode=%s, bw=%s, %s, %s",
		t.IsStereo(),
		t.Configuration().Mode(),
		t.Configuration().Bandwidth(),
		t.FrameCode(),
		t.Configuration().FrameDuration(),
	)
}

// Configuration is the 5-bit configuration number. Each number selects a
// mode, bandwidth and frame size per the RFC 6716 section 3.1 table.
type Configuration byte

// ConfigurationMode is the codec layer a configuration uses: SILK for
// low-rate speech, CELT for low-delay or music, or both.
type ConfigurationMode byte

// Configuration mode constants.
const (
	Silk ConfigurationMode = iota + 1
	CELT
	Hybrid
)

func (c ConfigurationMode) String() string {
	switch c {
	case Silk:
		return "Silk"
	case CELT:
		return "CELT"
	case Hybrid:
		return "Hybrid"
	}
	return "Invalid Configuration Mode"
}

// Mode returns the codec mode for this configuration.
func (c Configuration) Mode() ConfigurationMode {
	switch {
	case c <= 11:
		return Silk
	case c <= 15:
		return Hybrid
	case c <= 31:
		return CELT
	default:
		return 0
	}
}

// FrameDuration returns the frame duration for this configuration.
func (c Configuration) FrameDuration() FrameDuration {
	switch c {
	case 16, 20, 24, 28:
		return Duration2500us
	case 17, 21, 25, 29:
		return Duration5ms
	case 0, 4, 8, 12, 14, 18, 22, 26, 30:
		return Duration10ms
	case 1, 5, 9, 13, 15, 19, 23, 27, 31:
		return Duration20ms
	case 2, 6, 10:
		return Duration40ms
	case 3, 7, 11:
		return Duration60ms
	}
	return 0
}

// Bandwidth returns the audio bandwidth for this configuration.
func (c Configuration) Bandwidth() Bandwidth {
	switch {
	case c <= 3:
		return NB
	case c <= 7:
		return MB
	case c <= 11:
		return WB
	case c <= 13:
		return SWB
	case c <= 15:
		return FB
	case c <= 19:
		return NB
	case c <= 23:
		return WB
	case c <= 27:
		return SWB
	case c <= 31:
		return FB
	}
	return 0
}

// samples maps configuration numbers to samples per frame at the effective
// sample rate.
var samples = [32]int{
	/* Silk   NB   0...3 */ 80, 160, 320, 480,
	/* Silk   MB   4...7 */ 120, 240, 480, 720,
	/* Silk   WB   8..11 */ 160, 320, 640, 960,
	/* Hybrid SWB 12..13 */ 240, 480,
	/* Hybrid FB  14..15 */ 480, 960,
	/* CELT   NB  16..19 */ 20, 40, 80, 120,
	/* CELT   WB  20..23 */ 40, 80, 160, 240,
	/* CELT   SWB 24..27 */ 60, 120, 240, 480,
	/* CELT   FB  28..31 */ 120, 240, 480, 960,
}

// Samples returns the samples per frame for this configuration.
func (c Configuration) Samples() int {
	if c > 31 {
		return 0
	}
	return samples[c]
}

// FrameDuration is the duration class of an Opus frame. Opus frames are
// 2.5, 5, 10, 20, 40 or 60 ms.
type FrameDuration byte

// Frame duration constants.
const (
	Duration2500us FrameDuration = iota + 1
	Duration5ms
	Duration10ms
	Duration20ms
	Duration40ms
	Duration60ms
)

func (f FrameDuration) String() string {
	switch f {
	case Duration2500us:
		return "2.5ms"
	case Duration5ms:
		return "5ms"
	case Duration10ms:
		return "10ms"
	case Duration20ms:
		return "20ms"
	case Duration40ms:
		return "40ms"
	case Duration60ms:
		return "60ms"
	}
	return "Invalid Frame Duration"
}

// Millis returns the duration in milliseconds, rounding 2.5 ms up.
func (f FrameDuration) Millis() int64 {
	switch f {
	case Duration2500us:
		return 2
	case Duration5ms:
		return 5
	case Duration10ms:
		return 10
	case Duration20ms:
		return 20
	case Duration40ms:
		return 40
	case Duration60ms:
		return 60
	}
	return 0
}

// Duration returns the exact duration.
func (f FrameDuration) Duration() time.Duration {
	switch f {
	case Duration2500us:
		return 2500 * time.Microsecond
	case Duration5ms:
		return 5 * time.Millisecond
	case Duration10ms:
		return 10 * time.Millisecond
	case Duration20ms:
		return 20 * time.Millisecond
	case Duration40ms:
		return 40 * time.Millisecond
	case Duration60ms:
		return 60 * time.Millisecond
	}
	return 0
}

// Bandwidth is the audio bandwidth class of an Opus stream.
type Bandwidth byte

// Bandwidth constants.
const (
	// NB (narrowband) is 4 kHz audio bandwidth, 8 kHz sample rate.
	NB Bandwidth = iota + 1
	// MB (medium-band) is 6 kHz audio bandwidth, 12 kHz sample rate.
	MB
	// WB (wideband) is 8 kHz audio bandwidth, 16 kHz sample rate.
	WB
	// SWB (super-wideband) is 12 kHz audio bandwidth, 24 kHz sample rate.
	SWB
	// FB (fullband) is 20 kHz audio bandwidth, 48 kHz sample rate.
	FB
)

func (b Bandwidth) String() string {
	switch b {
	case NB:
		return "Narrowband"
	case MB:
		return "Mediumband"
	case WB:
		return "Wideband"
	case SWB:
		return "Superwideband"
	case FB:
		return "Fullband"
	}
	return "Invalid Bandwidth"
}

// SampleRate returns the effective sample rate for this bandwidth.
func (b Bandwidth) SampleRate() int {
	switch b {
	case NB:
		return 8000
	case MB:
		return 12000
	case WB:
		return 16000
	case SWB:
		return 24000
	case FB:
		return 48000
	}
	return 0
}

// FrameCode is the frame count code in the TOC byte: one frame, two equal
// frames, two different frames, or an arbitrary count signaled by the next
// byte.
type FrameCode byte

// Frame code constants.
const (
	OneFrame FrameCode = iota
	TwoEqualFrames
	TwoDifferentFrames
	ArbitraryFrames
)

func (c FrameCode) String() string {
	switch c {
	case OneFrame:
		return "One Frame"
	case TwoEqualFrames:
		return "Two Equal Frames"
	case TwoDifferentFrames:
		return "Two Different Frames"
	case ArbitraryFrames:
		return "Arbitrary Frames"
	}
	return "Invalid Frame Code"
}
