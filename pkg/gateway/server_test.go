package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/giztalk/go/pkg/audio/pcm"
	"github.com/haivivi/giztalk/go/pkg/buffer"
	"github.com/haivivi/giztalk/go/pkg/dialogue"
	"github.com/haivivi/giztalk/go/pkg/kv"
	"github.com/haivivi/giztalk/go/pkg/speech"
	"github.com/haivivi/giztalk/go/pkg/storage"
	"github.com/haivivi/giztalk/go/pkg/store"
)

type fakeRec struct{ text string }

func (r *fakeRec) Recognize(context.Context, []byte) (string, error) {
	return r.text, nil
}

func (r *fakeRec) RecognizeStream(_ context.Context, st *buffer.ByteStream) (string, error) {
	st.ReadAll()
	return r.text, nil
}

// fakeSynth records texts and writes a short valid WAV so playback runs
// the real frame path.
type fakeSynth struct {
	mu    sync.Mutex
	dir   string
	texts []string
}

func (f *fakeSynth) Synthesize(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	wav := pcm.EncodeWAV(pcm.Header{SampleRate: 16000, Channels: 1}, make([]byte, 1920))
	path := filepath.Join(f.dir, "out.wav")
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeSynth) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func newTestGateway(t *testing.T) (*Server, *httptest.Server, *store.Store, *fakeSynth) {
	t.Helper()
	st := store.New(kv.NewMemory(nil))
	t.Cleanup(func() { st.Close() })

	synth := &fakeSynth{dir: t.TempDir()}
	fac, err := speech.NewFactory(speech.FactoryOptions{
		DefaultRecognizer:  &fakeRec{},
		DefaultSynthesizer: synth,
	})
	if err != nil {
		t.Fatal(err)
	}
	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctrl := dialogue.NewController(dialogue.ControllerOptions{
		Store:  st,
		Speech: fac,
		Files:  files,
	})

	cfg := DefaultConfig()
	g, err := NewServer(Options{Config: cfg, Store: st, Controller: ctrl})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(g.Handler())
	t.Cleanup(ts.Close)
	return g, ts, st, synth
}

func seedBoundDevice(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	if err := st.Roles.Put(ctx, &store.Role{ID: "r1", UserID: "u1", Name: "小助手", Desc: "你是一个助手"}); err != nil {
		t.Fatal(err)
	}
	if err := st.Devices.Put(ctx, &store.Device{ID: "dev1", UserID: "u1", RoleID: "r1"}); err != nil {
		t.Fatal(err)
	}
}

func dialGateway(t *testing.T, ts *httptest.Server, deviceID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + DefaultConfig().WebsocketPath
	hdr := http.Header{}
	if deviceID != "" {
		hdr.Set("device-id", deviceID)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, hdr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatal(err)
	}
}

// readEvents drains text frames until the connection closes or the
// deadline hits, returning each decoded event.
func readEvents(conn *websocket.Conn) []map[string]any {
	var out []map[string]any
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return out
		}
		if mt != websocket.TextMessage {
			continue
		}
		var ev map[string]any
		if json.Unmarshal(data, &ev) == nil {
			out = append(out, ev)
		}
	}
}

func waitForCond(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGatewayHelloAck(t *testing.T) {
	_, ts, st, _ := newTestGateway(t)
	seedBoundDevice(t, st)
	conn := dialGateway(t, ts, "dev1")

	sendJSON(t, conn, map[string]any{"type": "hello", "version": 1, "transport": "websocket"})
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var ack map[string]any
	if err := json.Unmarshal(data, &ack); err != nil {
		t.Fatal(err)
	}
	if ack["type"] != "hello" {
		t.Errorf("ack type = %v", ack["type"])
	}
	if sid, _ := ack["session_id"].(string); sid == "" {
		t.Error("ack without session id")
	}
}

func TestGatewayExitIntentClosesSession(t *testing.T) {
	g, ts, st, synth := newTestGateway(t)
	seedBoundDevice(t, st)
	conn := dialGateway(t, ts, "dev1")
	waitForCond(t, "device binding", func() bool {
		_, ok := g.Registry().GetByDevice("dev1")
		return ok
	})

	sendJSON(t, conn, map[string]any{"type": "hello", "version": 1})
	sendJSON(t, conn, map[string]any{"type": "listen", "state": "text", "text": "再见"})

	// The read loop ends when the farewell finishes and the server closes
	// the channel.
	events := readEvents(conn)

	var types []string
	var sttText string
	for _, ev := range events {
		typ, _ := ev["type"].(string)
		if typ == "tts" {
			typ = typ + ":" + ev["state"].(string)
		}
		if typ == "stt" {
			sttText, _ = ev["text"].(string)
		}
		types = append(types, typ)
	}
	joined := strings.Join(types, " ")
	for _, want := range []string{"hello", "stt", "tts:start", "tts:sentence_start", "tts:stop"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in events %v", want, types)
		}
	}
	if sttText != "再见" {
		t.Errorf("stt echo = %q", sttText)
	}
	if spoken := synth.spoken(); len(spoken) != 1 {
		t.Errorf("farewell synthesized %d times", len(spoken))
	}

	// The channel was closed by the farewell, so the device lands in
	// standby.
	waitForCond(t, "standby state", func() bool {
		dev, err := st.Devices.Get(context.Background(), "dev1")
		return err == nil && dev.State == store.DeviceStandby
	})
	waitForCond(t, "session removal", func() bool {
		_, ok := g.Registry().GetByDevice("dev1")
		return !ok
	})
}

func TestGatewayUnboundDeviceSpeaksBindCode(t *testing.T) {
	g, ts, _, synth := newTestGateway(t)
	conn := dialGateway(t, ts, "aa:bb:cc:dd:ee:ff")

	sendJSON(t, conn, map[string]any{"type": "hello", "version": 1})
	// A second message before binding must not repeat the prompt.
	sendJSON(t, conn, map[string]any{"type": "listen", "state": "start", "mode": "auto"})

	waitForCond(t, "bind prompt", func() bool { return len(synth.spoken()) >= 1 })
	code, ok := g.BindCode("aa:bb:cc:dd:ee:ff")
	if !ok || len(code) != 6 {
		t.Fatalf("bind code = %q %v", code, ok)
	}
	time.Sleep(100 * time.Millisecond)
	spoken := synth.spoken()
	if len(spoken) != 1 {
		t.Fatalf("prompt spoken %d times", len(spoken))
	}
	if !strings.Contains(spoken[0], "验证码") || !strings.Contains(spoken[0], code[:1]) {
		t.Errorf("prompt = %q", spoken[0])
	}
}

func TestGatewayVirtualDeviceAutoBinds(t *testing.T) {
	g, ts, st, _ := newTestGateway(t)
	seedBoundDevice(t, st)
	dialGateway(t, ts, "user_chat_u1")

	waitForCond(t, "virtual binding", func() bool {
		_, ok := g.Registry().GetByDevice("user_chat_u1")
		return ok
	})
	dev, err := st.Devices.Get(context.Background(), "user_chat_u1")
	if err != nil {
		t.Fatal(err)
	}
	if dev.RoleID != "r1" || dev.UserID != "u1" {
		t.Errorf("auto-bound device = %+v", dev)
	}
	if !dev.IsVirtual() {
		t.Error("device not marked virtual")
	}
}

func TestGatewayReconnectDisplacesOldSession(t *testing.T) {
	g, ts, st, _ := newTestGateway(t)
	seedBoundDevice(t, st)

	first := dialGateway(t, ts, "dev1")
	waitForCond(t, "first binding", func() bool {
		_, ok := g.Registry().GetByDevice("dev1")
		return ok
	})
	old, _ := g.Registry().GetByDevice("dev1")

	dialGateway(t, ts, "dev1")
	waitForCond(t, "displacement", func() bool {
		cur, ok := g.Registry().GetByDevice("dev1")
		return ok && cur.ID != old.ID
	})

	// The first connection is closed by the server.
	first.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}
}

func TestGatewayRejectsMissingDeviceID(t *testing.T) {
	_, ts, _, _ := newTestGateway(t)
	conn := dialGateway(t, ts, "")
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("connection without device id stayed open")
	}
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Logf("close error = %v", err)
	}
}
