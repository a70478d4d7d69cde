package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haivivi/giztalk/go/pkg/buffer"
	"github.com/haivivi/giztalk/go/pkg/store"
)

const doubaoASRURL = "wss://openspeech.bytedance.com/api/v2/asr"

// DoubaoRecognizer streams an utterance to the Doubao ASR websocket as it
// is being spoken.
//
// Per utterance: dial, send a JSON start frame, forward PCM chunks as
// binary frames, send a finish command when the stream closes, and collect
// results from a receive loop. Committed sentence_end results are
// concatenated; when none were committed the last partial wins. Protocol
// errors fall back to the batch HTTP call with the chunks buffered so far.
type DoubaoRecognizer struct {
	appID   string
	token   string
	cluster string
	wsURL   string
	httpURL string
	http    *http.Client
	log     *slog.Logger
}

var _ Recognizer = (*DoubaoRecognizer)(nil)

// NewDoubaoRecognizer creates a recognizer from a provider config. The
// config's AppID, APIKey (token), and APISecret (cluster) are required.
func NewDoubaoRecognizer(cfg *store.ModelConfig) (Recognizer, error) {
	if cfg.AppID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("speech: doubao stt requires app_id and api_key")
	}
	wsURL := cfg.APIURL
	if wsURL == "" {
		wsURL = doubaoASRURL
	}
	return &DoubaoRecognizer{
		appID:   cfg.AppID,
		token:   cfg.APIKey,
		cluster: cfg.APISecret,
		wsURL:   wsURL,
		httpURL: strings.Replace(strings.Replace(wsURL, "wss://", "https://", 1), "/v2/asr", "/v1/asr", 1),
		http:    &http.Client{Timeout: StreamTimeout},
		log:     slog.Default(),
	}, nil
}

type doubaoResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  []struct {
		Text       string `json:"text"`
		Utterances []struct {
			Text     string `json:"text"`
			Definite bool   `json:"definite"`
		} `json:"utterances"`
	} `json:"result"`
	Sequence int `json:"sequence"`
}

// RecognizeStream implements the streaming contract.
func (r *DoubaoRecognizer) RecognizeStream(ctx context.Context, stream *buffer.ByteStream) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, StreamTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer; "+r.token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.wsURL, header)
	if err != nil {
		r.log.Warn("doubao asr dial failed, falling back to batch", "err", err)
		return r.batchFromStream(ctx, stream, nil)
	}
	defer conn.Close()

	start := map[string]any{
		"app": map[string]any{
			"appid":   r.appID,
			"cluster": r.cluster,
			"token":   r.token,
		},
		"user": map[string]any{"uid": uuid.NewString()},
		"audio": map[string]any{
			"format":      "raw",
			"sample_rate": 16000,
			"channel":     1,
			"bits":        16,
		},
		"request": map[string]any{
			"reqid":           uuid.NewString(),
			"workflow":        "audio_in,resample,partition,vad,fe,decode,itn,nlu_punctuate",
			"show_utterances": true,
			"result_type":     "full",
		},
	}
	if err := conn.WriteJSON(start); err != nil {
		r.log.Warn("doubao asr start frame failed, falling back to batch", "err", err)
		return r.batchFromStream(ctx, stream, nil)
	}

	// Receive loop: coalesce committed utterances, remember the last
	// partial.
	var (
		mu        sync.Mutex
		committed []string
		partial   string
		recvErr   error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				mu.Lock()
				recvErr = err
				mu.Unlock()
				return
			}
			var res doubaoResult
			if err := json.Unmarshal(data, &res); err != nil {
				continue
			}
			if res.Code != 0 && res.Code != 1000 {
				mu.Lock()
				recvErr = fmt.Errorf("speech: doubao asr code %d: %s", res.Code, res.Message)
				mu.Unlock()
				return
			}
			mu.Lock()
			for _, item := range res.Result {
				if len(item.Utterances) == 0 {
					partial = item.Text
					continue
				}
				for _, u := range item.Utterances {
					if u.Definite {
						committed = append(committed, u.Text)
					} else {
						partial = u.Text
					}
				}
			}
			mu.Unlock()
			// A negative sequence marks the server's terminal frame.
			if res.Sequence < 0 {
				return
			}
		}
	}()

	// Forward chunks; keep a copy in case the socket dies and the batch
	// fallback has to take over.
	var buffered []byte
	writeFailed := false
	for {
		chunk, err := stream.Next()
		if err != nil {
			break
		}
		buffered = append(buffered, chunk...)
		if writeFailed {
			continue
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			r.log.Warn("doubao asr chunk write failed", "err", err)
			writeFailed = true
		}
	}
	if writeFailed {
		conn.Close()
		<-done
		return r.batchFromStream(ctx, stream, buffered)
	}

	finish := map[string]any{"request": map[string]any{"command": "finish"}}
	if err := conn.WriteJSON(finish); err != nil {
		conn.Close()
		<-done
		return r.batchFromStream(ctx, stream, buffered)
	}

	select {
	case <-done:
	case <-ctx.Done():
		conn.Close()
		<-done
	}

	mu.Lock()
	gotCommitted := strings.Join(committed, "")
	gotPartial := partial
	gotErr := recvErr
	mu.Unlock()

	if gotCommitted != "" {
		return gotCommitted, nil
	}
	if gotPartial != "" {
		return gotPartial, nil
	}
	if gotErr != nil && ctx.Err() == nil {
		r.log.Warn("doubao asr stream failed, falling back to batch", "err", gotErr)
		return r.Recognize(ctx, buffered)
	}
	return "", nil
}

// batchFromStream drains whatever is left of the stream on top of already
// buffered bytes and recognizes the lot in one HTTP call.
func (r *DoubaoRecognizer) batchFromStream(ctx context.Context, stream *buffer.ByteStream, buffered []byte) (string, error) {
	rest, _ := stream.ReadAll()
	pcm := append(buffered, rest...)
	if len(pcm) == 0 {
		return "", nil
	}
	return r.Recognize(ctx, pcm)
}

// Recognize is the buffered HTTP form.
func (r *DoubaoRecognizer) Recognize(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	req := map[string]any{
		"app": map[string]any{
			"appid":   r.appID,
			"cluster": r.cluster,
			"token":   r.token,
		},
		"user": map[string]any{"uid": uuid.NewString()},
		"audio": map[string]any{
			"format":      "raw",
			"sample_rate": 16000,
			"channel":     1,
			"bits":        16,
			"data":        pcm, // base64-encoded by encoding/json
		},
		"request": map[string]any{
			"reqid": uuid.NewString(),
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.httpURL, strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer; "+r.token)

	resp, err := r.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("speech: doubao asr http %d", resp.StatusCode)
	}
	var res doubaoResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", err
	}
	if res.Code != 0 && res.Code != 1000 {
		return "", fmt.Errorf("speech: doubao asr code %d: %s", res.Code, res.Message)
	}
	var sb strings.Builder
	for _, item := range res.Result {
		sb.WriteString(item.Text)
	}
	return sb.String(), nil
}
