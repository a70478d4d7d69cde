// Package audio provides audio processing utilities.
//
// This package is an umbrella for audio-related sub-packages:
//
//   - codec/opus: Opus frame encode/decode for the device channel
//   - codec/ogg: OGG container read/write for merged recordings
//   - codec/mp3: MP3 decoding for providers that return MP3
//   - pcm: PCM format handling and WAV encode/decode
//   - resampler: sample-rate and channel conversion
package audio
