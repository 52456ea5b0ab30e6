package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/listenai/neural-link/internal/lang"
	"github.com/listenai/neural-link/internal/resilience"
)

// Audio inputs handed out through the shared ingest source.
const (
	AudioInputStdin     = "-"
	AudioInputWebSocket = "ws"
)

// Config holds configuration for the store server, the capture client and
// the viewer. Each binary reads the fields it needs.
type Config struct {
	// Store server configuration
	Port          string `envconfig:"PORT" default:"8080"`
	StoreDataFile string `envconfig:"STORE_DATA_FILE" default:"data.json"`

	// Store location as seen by the capture client and the viewer
	StoreURL string `envconfig:"STORE_URL" default:"http://localhost:8080/"`

	// Viewer configuration
	ViewerPort          string `envconfig:"VIEWER_PORT" default:"8081"`
	PollIntervalMs      int    `envconfig:"POLL_INTERVAL_MS" default:"500"`
	PruneStaleBlocks    bool   `envconfig:"PRUNE_STALE_BLOCKS" default:"true"`
	TranslateURL        string `envconfig:"TRANSLATE_URL" default:"https://api.mymemory.translated.net/get"`
	TranslateEmail      string `envconfig:"TRANSLATE_EMAIL" default:""` // Raises the MyMemory daily quota
	TranslateTimeoutMs  int    `envconfig:"TRANSLATE_TIMEOUT_MS" default:"10000"`
	TranslateChunkLimit int    `envconfig:"TRANSLATE_CHUNK_LIMIT" default:"500"` // Characters per request

	// Capture configuration
	CapturePort       string `envconfig:"CAPTURE_PORT" default:"8082"`
	CaptureAutoStart  bool   `envconfig:"CAPTURE_AUTO_START" default:"true"`
	PublishDebounceMs int    `envconfig:"PUBLISH_DEBOUNCE_MS" default:"500"`
	PublishTimeoutMs  int    `envconfig:"PUBLISH_TIMEOUT_MS" default:"5000"`
	SourceLang        string `envconfig:"SOURCE_LANG" default:"en"`
	TargetLang        string `envconfig:"TARGET_LANG" default:"pl"`

	// Audio input; "-" reads raw PCM from stdin, "ws" accepts audio streamed to /audio,
	// anything else is a file or FIFO path
	AudioInput      string `envconfig:"AUDIO_INPUT" default:"-"`
	AudioSampleRate int    `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`
	AudioEncoding   string `envconfig:"AUDIO_ENCODING" default:"linear16"`
	AudioChannels   int    `envconfig:"AUDIO_CHANNELS" default:"1"`
	AudioChunkSize  int    `envconfig:"AUDIO_CHUNK_SIZE" default:"4096"` // Bytes per write to the recognizer

	// Deepgram STT API configuration
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base

	// Cartesia TTS API configuration; speaking is skipped without a key
	CartesiaAPIKey  string  `envconfig:"CARTESIA_API_KEY"`
	CartesiaVoiceID string  `envconfig:"CARTESIA_VOICE_ID" default:"sonic-english"`
	CartesiaModelID string  `envconfig:"CARTESIA_MODEL_ID" default:"sonic-multilingual"`
	SpeakOnStop     bool    `envconfig:"SPEAK_ON_STOP" default:"true"`
	TTSOutputFile   string  `envconfig:"TTS_OUTPUT_FILE" default:""` // Raw PCM sink; empty discards audio
	SpeechRate      float64 `envconfig:"SPEECH_RATE" default:"0.5"`
	SpeechPitch     float64 `envconfig:"SPEECH_PITCH" default:"1.0"`
	SpeechVolume    float64 `envconfig:"SPEECH_VOLUME" default:"1.0"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values shared by every binary.
func (c *Config) Validate() error {
	if !lang.Supported(c.SourceLang) {
		return fmt.Errorf("SOURCE_LANG %q is not one of %v", c.SourceLang, lang.Codes())
	}
	if !lang.Supported(c.TargetLang) {
		return fmt.Errorf("TARGET_LANG %q is not one of %v", c.TargetLang, lang.Codes())
	}
	positive := map[string]int{
		"POLL_INTERVAL_MS":      c.PollIntervalMs,
		"PUBLISH_DEBOUNCE_MS":   c.PublishDebounceMs,
		"PUBLISH_TIMEOUT_MS":    c.PublishTimeoutMs,
		"TRANSLATE_TIMEOUT_MS":  c.TranslateTimeoutMs,
		"TRANSLATE_CHUNK_LIMIT": c.TranslateChunkLimit,
		"AUDIO_SAMPLE_RATE":     c.AudioSampleRate,
		"AUDIO_CHUNK_SIZE":      c.AudioChunkSize,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if c.StoreURL == "" {
		return fmt.Errorf("STORE_URL is required")
	}
	return nil
}

// ValidateCapture checks the fields only the capture client needs.
func (c *Config) ValidateCapture() error {
	if c.DeepgramAPIKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	return nil
}

// PollInterval returns the viewer fetch interval
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// PublishDebounce returns the quiet period before a publish fires
func (c *Config) PublishDebounce() time.Duration {
	return time.Duration(c.PublishDebounceMs) * time.Millisecond
}

// PublishTimeout returns the timeout of a single store write
func (c *Config) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutMs) * time.Millisecond
}

// TranslateTimeout returns the per-block translation timeout
func (c *Config) TranslateTimeout() time.Duration {
	return time.Duration(c.TranslateTimeoutMs) * time.Millisecond
}

// CircuitBreakerReset returns how long an open breaker waits before probing
func (c *Config) CircuitBreakerReset() time.Duration {
	return time.Duration(c.CircuitBreakerResetTimeout) * time.Second
}

// RetryConfig builds the retry policy for outbound API calls.
func (c *Config) RetryConfig() *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = c.RetryMaxAttempts
	cfg.InitialBackoff = time.Duration(c.RetryInitialBackoff) * time.Millisecond
	return cfg
}

// ReconnectConfig builds the policy used while waiting for dependencies.
func (c *Config) ReconnectConfig() *resilience.ReconnectConfig {
	cfg := resilience.DefaultReconnectConfig()
	cfg.MaxAttempts = c.ReconnectMaxAttempts
	cfg.Backoff = time.Duration(c.ReconnectBackoff) * time.Millisecond
	return cfg
}
