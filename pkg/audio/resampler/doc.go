// Package resampler converts 16-bit PCM between sample rates and channel
// layouts in pure Go.
//
// Speech providers return audio in whatever shape their service produces,
// typically 24 kHz or 44.1 kHz MP3 decoded to PCM, while the device channel
// speaks 16 kHz mono. This package normalizes between the two, either as a
// stream or in one shot:
//
//	src := resampler.Format{SampleRate: 24000}
//	dst := resampler.Format{SampleRate: 16000}
//	r, err := resampler.New(mp3Dec, src, dst)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	io.Copy(out, r)
//
// or, with the whole clip in memory:
//
//	pcm16k, err := resampler.Convert(pcm24k, src, dst)
package resampler
