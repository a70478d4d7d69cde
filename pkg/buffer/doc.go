// Package buffer provides the concurrency-safe queues that connect the
// stages of a dialogue pipeline.
//
// Queue is a blocking FIFO used to hand items between pipeline goroutines
// in arrival order. ChunkRing keeps the most recent audio chunks under a
// byte budget for speech pre-roll. ByteStream is a chunked byte pipe that
// feeds streaming recognizers and is closed by the producer when the
// utterance ends.
package buffer
