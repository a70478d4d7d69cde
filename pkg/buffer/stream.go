package buffer

import "errors"

// ByteStream is a chunked byte pipe between an audio producer and a
// streaming speech recognizer.
//
// The producer Adds chunks as they arrive and calls CloseWrite when the
// utterance ends; the consumer iterates Next until ErrIteratorDone. An
// aborted utterance is torn down with CloseWithError so the consumer can
// distinguish cancellation from a normal end of speech.
type ByteStream struct {
	Queue[[]byte]
}

// NewByteStream creates an empty ByteStream.
func NewByteStream() *ByteStream {
	return &ByteStream{Queue[[]byte]{
		writeNotify: make(chan struct{}, 1),
	}}
}

// Add appends a copy of chunk to the stream.
func (s *ByteStream) Add(chunk []byte) error {
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	return s.Queue.Add(cp)
}

// ReadAll drains the stream into a single contiguous buffer.
// It blocks until the stream is closed for writing, then returns all
// bytes received. Returns an error only if the stream was closed with
// CloseWithError.
func (s *ByteStream) ReadAll() ([]byte, error) {
	var out []byte
	for {
		chunk, err := s.Next()
		if err != nil {
			if errors.Is(err, ErrIteratorDone) {
				return out, nil
			}
			return out, err
		}
		out = append(out, chunk...)
	}
}
