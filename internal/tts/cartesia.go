package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/listenai/neural-link/internal/audio"
	"github.com/listenai/neural-link/internal/observability"
	"github.com/listenai/neural-link/internal/speech"
)

const (
	DefaultCartesiaURL     = "https://api.cartesia.ai/tts/bytes"
	DefaultCartesiaVersion = "2024-06-10"
	cartesiaSampleRate     = 24000
)

// CartesiaConfig configures the Cartesia speaker.
type CartesiaConfig struct {
	APIKey  string
	BaseURL string
	VoiceID string
	ModelID string
	// OutputSampleRate is the rate of the PCM written to the sink.
	OutputSampleRate int
	HTTPClient       *http.Client
	Logger           zerolog.Logger
}

type cartesiaRequest struct {
	ModelID      string         `json:"model_id"`
	Transcript   string         `json:"transcript"`
	Voice        cartesiaVoice  `json:"voice"`
	OutputFormat cartesiaFormat `json:"output_format"`
	Language     string         `json:"language,omitempty"`
}

type cartesiaVoice struct {
	Mode     string            `json:"mode"`
	ID       string            `json:"id"`
	Controls *cartesiaControls `json:"__experimental_controls,omitempty"`
}

type cartesiaControls struct {
	Speed float64 `json:"speed"`
}

type cartesiaFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// CartesiaSpeaker implements speech.Speaker with Cartesia's HTTP TTS API.
// Synthesized 16-bit PCM is resampled, scaled by the utterance volume and
// written to the sink.
type CartesiaSpeaker struct {
	cfg  CartesiaConfig
	mu   sync.Mutex
	sink io.Writer
}

// NewCartesiaSpeaker creates a speaker that writes synthesized PCM to sink.
// A nil sink discards the audio.
func NewCartesiaSpeaker(cfg CartesiaConfig, sink io.Writer) *CartesiaSpeaker {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCartesiaURL
	}
	if cfg.OutputSampleRate <= 0 {
		cfg.OutputSampleRate = cartesiaSampleRate
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if sink == nil {
		sink = io.Discard
	}
	return &CartesiaSpeaker{cfg: cfg, sink: sink}
}

// Speak synthesizes u and writes the audio to the sink.
func (c *CartesiaSpeaker) Speak(ctx context.Context, u speech.Utterance) error {
	if strings.TrimSpace(u.Text) == "" {
		return nil
	}
	if c.cfg.APIKey == "" {
		return errors.New("cartesia api key missing")
	}

	start := time.Now()
	pcm, err := c.synthesize(ctx, u)
	if err != nil {
		observability.RecordError("synthesis", "tts")
		return err
	}

	volume := u.Volume
	if volume == 0 {
		volume = 1
	}
	out, err := audio.Convert(pcm, cartesiaSampleRate, c.cfg.OutputSampleRate, volume)
	if err != nil {
		return fmt.Errorf("failed to convert synthesized audio: %w", err)
	}

	c.mu.Lock()
	_, err = c.sink.Write(out)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to write synthesized audio: %w", err)
	}

	c.cfg.Logger.Info().
		Int("text_length", len(u.Text)).
		Int("bytes", len(out)).
		Dur("latency", time.Since(start)).
		Msg("Spoke utterance")
	return nil
}

func (c *CartesiaSpeaker) synthesize(ctx context.Context, u speech.Utterance) ([]byte, error) {
	reqBody := cartesiaRequest{
		ModelID:    c.cfg.ModelID,
		Transcript: u.Text,
		Voice:      cartesiaVoice{Mode: "id", ID: c.cfg.VoiceID},
		OutputFormat: cartesiaFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: cartesiaSampleRate,
		},
		Language: language(u.Locale),
	}
	if speed := speedFromRate(u.Rate); speed != 0 {
		reqBody.Voice.Controls = &cartesiaControls{Speed: speed}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	req.Header.Set("Cartesia-Version", DefaultCartesiaVersion)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("cartesia API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Cartesia audio response: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("cartesia returned empty audio data")
	}
	return pcm, nil
}

// speedFromRate maps a 0..1 speech rate with 0.5 as normal onto Cartesia's
// -1..1 speed control.
func speedFromRate(rate float64) float64 {
	if rate <= 0 {
		return 0
	}
	speed := (rate - 0.5) * 2
	if speed > 1 {
		speed = 1
	}
	if speed < -1 {
		speed = -1
	}
	return speed
}

// language returns the two-letter code of a locale such as pl-PL.
func language(locale string) string {
	code, _, _ := strings.Cut(locale, "-")
	return strings.ToLower(code)
}
