package speech

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haivivi/giztalk/go/pkg/audio/codec/mp3"
	"github.com/haivivi/giztalk/go/pkg/store"
)

// Edge read-aloud endpoint constants. The trusted client token is the
// public one every Edge build ships; Sec-MS-GEC is a time-salted hash of
// it that rotates every five minutes.
const (
	edgeWSURL        = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"
	edgeClientToken  = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"
	edgeGECVersion   = "1-130.0.2849.68"
	edgeOutputFormat = "audio-24khz-48kbitrate-mono-mp3"
	edgeDefaultVoice = "zh-CN-XiaoyiNeural"
	edgeTokenWindow  = 5 * time.Minute
	edgeCallTimeout  = 30 * time.Second
)

// EdgeSynthesizer is the mandatory default TTS provider: the Edge
// read-aloud service needs no account, so a default voice is always
// available even on a completely unconfigured deployment.
//
// Protocol per sentence: dial, send a speech.config text frame, send the
// SSML text frame, then collect binary frames (2-byte big-endian header
// length, "Path:audio" headers, MP3 payload) until the turn.end text
// frame. The MP3 is decoded and resampled to the channel rate on the way
// to disk.
type EdgeSynthesizer struct {
	dir   string
	voice string
	pitch float64
	speed float64
	gec   *TokenCache
	log   *slog.Logger
}

var _ Synthesizer = (*EdgeSynthesizer)(nil)

// NewEdgeSynthesizer creates the default synthesizer writing files under
// dir.
func NewEdgeSynthesizer(dir string, voice Voice) *EdgeSynthesizer {
	voice = voice.withDefaults()
	if voice.Name == "" {
		voice.Name = edgeDefaultVoice
	}
	s := &EdgeSynthesizer{
		dir:   dir,
		voice: voice.Name,
		pitch: voice.Pitch,
		speed: voice.Speed,
		log:   slog.Default(),
	}
	s.gec = NewTokenCache(func(ctx context.Context) (string, time.Time, error) {
		return edgeGECToken(time.Now())
	})
	s.gec.SetRefreshAhead(time.Minute)
	return s
}

// NewEdgeSynthesizerFromConfig adapts NewEdgeSynthesizer to the builder
// shape; the config is unused beyond selection since edge needs no
// credentials.
func NewEdgeSynthesizerFromConfig(dir string) SynthesizerBuilder {
	return func(_ *store.ModelConfig, voice Voice) (Synthesizer, error) {
		return NewEdgeSynthesizer(dir, voice), nil
	}
}

// edgeGECToken derives the rotating Sec-MS-GEC value: the SHA-256 of the
// current 5-minute boundary in Windows ticks concatenated with the client
// token, uppercase hex.
func edgeGECToken(now time.Time) (string, time.Time, error) {
	boundary := now.UTC().Truncate(edgeTokenWindow)
	ticks := (boundary.Unix() + 11644473600) * 10_000_000
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d%s", ticks, edgeClientToken)))
	return strings.ToUpper(fmt.Sprintf("%x", sum)), boundary.Add(edgeTokenWindow), nil
}

// Synthesize renders one sentence to a WAV file and returns its path.
func (s *EdgeSynthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("speech: empty text")
	}
	ctx, cancel := context.WithTimeout(ctx, edgeCallTimeout)
	defer cancel()

	gec, err := s.gec.Token(ctx)
	if err != nil {
		return "", err
	}
	connID := strings.ReplaceAll(uuid.NewString(), "-", "")
	url := fmt.Sprintf("%s?TrustedClientToken=%s&Sec-MS-GEC=%s&Sec-MS-GEC-Version=%s&ConnectionId=%s",
		edgeWSURL, edgeClientToken, gec, edgeGECVersion, connID)

	header := http.Header{}
	header.Set("Origin", "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold")
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return "", fmt.Errorf("speech: edge dial: %w", err)
	}
	defer conn.Close()

	ts := time.Now().UTC().Format("Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")
	config := "X-Timestamp:" + ts + "\r\n" +
		"Content-Type:application/json; charset=utf-8\r\n" +
		"Path:speech.config\r\n\r\n" +
		`{"context":{"synthesis":{"audio":{"metadataoptions":{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},"outputFormat":"` + edgeOutputFormat + `"}}}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(config)); err != nil {
		return "", fmt.Errorf("speech: edge config frame: %w", err)
	}

	ssml := fmt.Sprintf(
		`<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='zh-CN'>`+
			`<voice name='%s'><prosody pitch='%s' rate='%s' volume='+0%%'>%s</prosody></voice></speak>`,
		s.voice, edgeProsody(s.pitch), edgeProsody(s.speed), escapeXML(text))
	reqID := strings.ReplaceAll(uuid.NewString(), "-", "")
	msg := "X-RequestId:" + reqID + "\r\n" +
		"Content-Type:application/ssml+xml\r\n" +
		"X-Timestamp:" + ts + "Z\r\n" +
		"Path:ssml\r\n\r\n" + ssml
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return "", fmt.Errorf("speech: edge ssml frame: %w", err)
	}

	var audio bytes.Buffer
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("speech: edge read: %w", err)
		}
		switch kind {
		case websocket.TextMessage:
			if strings.Contains(string(data), "Path:turn.end") {
				return s.store(audio.Bytes())
			}
		case websocket.BinaryMessage:
			if len(data) < 2 {
				continue
			}
			headerLen := int(binary.BigEndian.Uint16(data[:2]))
			if len(data) < 2+headerLen {
				continue
			}
			if !strings.Contains(string(data[2:2+headerLen]), "Path:audio") {
				continue
			}
			audio.Write(data[2+headerLen:])
		}
	}
}

func (s *EdgeSynthesizer) store(mp3Data []byte) (string, error) {
	if len(mp3Data) == 0 {
		return "", fmt.Errorf("speech: edge produced no audio")
	}
	pcm, rate, channels, err := mp3.DecodeFull(bytes.NewReader(mp3Data))
	if err != nil {
		return "", fmt.Errorf("speech: edge decode: %w", err)
	}
	return writeWAV(s.dir, pcm, rate, channels)
}

// edgeProsody maps the neutral [0.5, 2.0] scale to an edge percentage
// offset: 1.0 → "+0%", 1.5 → "+50%", 0.8 → "-20%".
func edgeProsody(v float64) string {
	pct := int((v - 1.0) * 100)
	if pct >= 0 {
		return fmt.Sprintf("+%d%%", pct)
	}
	return fmt.Sprintf("%d%%", pct)
}

func escapeXML(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}
