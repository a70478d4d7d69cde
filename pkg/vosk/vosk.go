// Package vosk provides Go bindings for the Vosk offline speech
// recognition library.
//
// Vosk runs Kaldi acoustic models fully offline, which makes it the
// recognizer of last resort: no keys, no network, no quota. A [Model] is
// loaded once (it maps hundreds of megabytes) and shared; each utterance
// gets its own short-lived [Recognizer]:
//
//	model, _ := vosk.NewModel("models/vosk-cn")
//	defer model.Close()
//
//	rec, _ := vosk.NewRecognizer(model, 16000)
//	defer rec.Close()
//	rec.AcceptWaveform(pcm)
//	text := rec.FinalResult()
//
// The library is dynamically linked (libvosk) and must be present at build
// and run time.
package vosk

/*
#cgo LDFLAGS: -lvosk
#include <vosk_api.h>
#include <stdlib.h>
*/
import "C"
import (
	"encoding/json"
	"fmt"
	"unsafe"
)

// SetLogLevel sets Vosk/Kaldi log verbosity. Negative values silence the
// library entirely; the server sets -1 at startup so Kaldi chatter stays
// out of the logs.
func SetLogLevel(level int) {
	C.vosk_set_log_level(C.int(level))
}

// Model holds a loaded Vosk acoustic model. Safe to share across
// recognizers; loading is expensive so do it once per process.
type Model struct {
	cModel *C.VoskModel
}

// NewModel loads a model from a directory path.
func NewModel(path string) (*Model, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	cModel := C.vosk_model_new(cPath)
	if cModel == nil {
		return nil, fmt.Errorf("vosk: failed to load model from %s", path)
	}
	return &Model{cModel: cModel}, nil
}

// Close releases the model. Recognizers created from it must be closed
// first.
func (m *Model) Close() {
	if m.cModel != nil {
		C.vosk_model_free(m.cModel)
		m.cModel = nil
	}
}

// Recognizer decodes one utterance against a shared Model. Not safe for
// concurrent use; create one per recognition.
type Recognizer struct {
	cRec *C.VoskRecognizer
}

// NewRecognizer creates a recognizer for PCM input at sampleRate.
func NewRecognizer(m *Model, sampleRate int) (*Recognizer, error) {
	if m == nil || m.cModel == nil {
		return nil, fmt.Errorf("vosk: model is closed")
	}
	cRec := C.vosk_recognizer_new(m.cModel, C.float(sampleRate))
	if cRec == nil {
		return nil, fmt.Errorf("vosk: failed to create recognizer")
	}
	return &Recognizer{cRec: cRec}, nil
}

// Close releases the recognizer resources.
func (r *Recognizer) Close() {
	if r.cRec != nil {
		C.vosk_recognizer_free(r.cRec)
		r.cRec = nil
	}
}

// AcceptWaveform feeds int16 little-endian PCM bytes into the recognizer.
// It reports whether Vosk detected an endpoint (a completed phrase).
func (r *Recognizer) AcceptWaveform(pcm []byte) (bool, error) {
	if r.cRec == nil {
		return false, fmt.Errorf("vosk: recognizer is closed")
	}
	if len(pcm) == 0 {
		return false, nil
	}
	ret := C.vosk_recognizer_accept_waveform(r.cRec,
		(*C.char)(unsafe.Pointer(&pcm[0])), C.int(len(pcm)))
	if ret < 0 {
		return false, fmt.Errorf("vosk: accept waveform failed")
	}
	return ret > 0, nil
}

// FinalResult flushes the decoder and returns the recognized text for
// everything fed so far. The recognizer is spent afterwards; Reset or
// close it.
func (r *Recognizer) FinalResult() string {
	if r.cRec == nil {
		return ""
	}
	return textField(C.GoString(C.vosk_recognizer_final_result(r.cRec)), "text")
}

// PartialResult returns the in-progress hypothesis without flushing.
func (r *Recognizer) PartialResult() string {
	if r.cRec == nil {
		return ""
	}
	return textField(C.GoString(C.vosk_recognizer_partial_result(r.cRec)), "partial")
}

// Reset prepares the recognizer for a new utterance.
func (r *Recognizer) Reset() {
	if r.cRec != nil {
		C.vosk_recognizer_reset(r.cRec)
	}
}

// textField pulls one string field out of a Vosk JSON result. Vosk's
// results are tiny flat objects; a malformed one yields "".
func textField(raw, key string) string {
	var result map[string]any
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return ""
	}
	s, _ := result[key].(string)
	return s
}
