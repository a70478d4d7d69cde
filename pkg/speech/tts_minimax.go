package speech

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/haivivi/giztalk/go/pkg/store"
)

const (
	minimaxBaseURL      = "https://api.minimax.chat"
	minimaxDefaultModel = "speech-01-turbo"
	minimaxCallTimeout  = 30 * time.Second
)

// MinimaxSynthesizer calls the MiniMax t2a HTTP endpoint. The response
// carries hex-encoded PCM, requested directly at the channel rate so no
// transcode is needed.
type MinimaxSynthesizer struct {
	dir     string
	apiKey  string
	groupID string
	baseURL string
	model   string
	voice   string
	speed   float64
	pitch   int
	http    *http.Client
}

var _ Synthesizer = (*MinimaxSynthesizer)(nil)

// NewMinimaxSynthesizer creates a synthesizer from a provider config. The
// config's APIKey is required; AppID carries the GroupId.
func NewMinimaxSynthesizer(dir string, cfg *store.ModelConfig, voice Voice) (Synthesizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("speech: minimax tts requires api_key")
	}
	voice = voice.withDefaults()
	baseURL := cfg.APIURL
	if baseURL == "" {
		baseURL = minimaxBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = minimaxDefaultModel
	}
	return &MinimaxSynthesizer{
		dir:     dir,
		apiKey:  cfg.APIKey,
		groupID: cfg.AppID,
		baseURL: baseURL,
		model:   model,
		voice:   voice.Name,
		speed:   voice.Speed,
		pitch:   minimaxPitch(voice.Pitch),
		http:    &http.Client{Timeout: minimaxCallTimeout},
	}, nil
}

// minimaxPitch maps the neutral [0.5, 2.0] scale to MiniMax's [-12, 12]
// semitone range: (v-1)*24 clamped.
func minimaxPitch(v float64) int {
	p := int(math.Round((v - 1.0) * 24))
	if p > 12 {
		p = 12
	}
	if p < -12 {
		p = -12
	}
	return p
}

// Synthesize renders one sentence to a WAV file and returns its path.
func (s *MinimaxSynthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("speech: empty text")
	}
	req := map[string]any{
		"model": s.model,
		"text":  text,
		"voice_setting": map[string]any{
			"voice_id": s.voice,
			"speed":    s.speed,
			"pitch":    s.pitch,
			"vol":      1.0,
		},
		"audio_setting": map[string]any{
			"format":      "pcm",
			"sample_rate": channelRate,
			"channel":     1,
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	url := s.baseURL + "/v1/t2a_v2"
	if s.groupID != "" {
		url += "?GroupId=" + s.groupID
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("speech: minimax tts http %d", resp.StatusCode)
	}

	var apiResp struct {
		Data struct {
			Audio string `json:"audio"`
		} `json:"data"`
		BaseResp struct {
			StatusCode int    `json:"status_code"`
			StatusMsg  string `json:"status_msg"`
		} `json:"base_resp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", err
	}
	if apiResp.BaseResp.StatusCode != 0 {
		return "", fmt.Errorf("speech: minimax tts code %d: %s",
			apiResp.BaseResp.StatusCode, apiResp.BaseResp.StatusMsg)
	}
	pcm, err := hex.DecodeString(apiResp.Data.Audio)
	if err != nil {
		return "", fmt.Errorf("speech: minimax audio decode: %w", err)
	}
	return writeWAV(s.dir, pcm, channelRate, 1)
}
