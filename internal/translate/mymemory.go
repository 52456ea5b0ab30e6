package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/listenai/neural-link/internal/observability"
	"github.com/listenai/neural-link/internal/resilience"
)

// DefaultMyMemoryURL is the public MyMemory lookup endpoint.
const DefaultMyMemoryURL = "https://api.mymemory.translated.net/get"

// MyMemoryConfig configures the MyMemory client.
type MyMemoryConfig struct {
	BaseURL string
	// Email raises the anonymous daily quota when set.
	Email      string
	Retry      *resilience.RetryConfig
	Breaker    *resilience.CircuitBreaker
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// MyMemoryClient implements Translator against the MyMemory API. Transient
// failures (rate limits, 5xx, network) are retried with bounded backoff and a
// circuit breaker stops calls while the service keeps failing.
type MyMemoryClient struct {
	baseURL    string
	email      string
	retry      *resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
	httpClient *http.Client
	logger     zerolog.Logger
}

type myMemoryResponse struct {
	ResponseData struct {
		TranslatedText string `json:"translatedText"`
	} `json:"responseData"`
	ResponseStatus  flexInt `json:"responseStatus"`
	ResponseDetails string  `json:"responseDetails"`
}

// flexInt accepts both 200 and "200"; the API uses either.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid status %s: %w", b, err)
	}
	*f = flexInt(n)
	return nil
}

// NewMyMemoryClient creates a client with the public endpoint and default
// retry settings unless cfg overrides them.
func NewMyMemoryClient(cfg MyMemoryConfig) *MyMemoryClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMyMemoryURL
	}
	if cfg.Retry == nil {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &MyMemoryClient{
		baseURL:    cfg.BaseURL,
		email:      cfg.Email,
		retry:      cfg.Retry,
		breaker:    cfg.Breaker,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// Translate looks up text for the language pair. Empty text translates to
// empty text without a request.
func (c *MyMemoryClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	var translated string
	err := resilience.Retry(ctx, func(ctx context.Context) error {
		result, err := c.call(ctx, text, sourceLang, targetLang)
		if err != nil {
			return err
		}
		translated = result
		return nil
	}, c.retry, isRetryable)
	if err != nil {
		return "", err
	}
	return translated, nil
}

// Healthy reports false while the circuit breaker is open.
func (c *MyMemoryClient) Healthy(ctx context.Context) (bool, error) {
	if c.breaker == nil {
		return true, nil
	}
	state, requests, failures, rate := c.breaker.GetStats()
	if state == resilience.StateOpen {
		return false, fmt.Errorf("%w: %d of %d requests failed (%.0f%%)", resilience.ErrCircuitOpen, failures, requests, rate)
	}
	return true, nil
}

func (c *MyMemoryClient) call(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	var translated string
	fn := func() error {
		var err error
		translated, err = c.lookup(ctx, text, sourceLang, targetLang)
		return err
	}

	if c.breaker == nil {
		err := fn()
		return translated, err
	}

	err := c.breaker.Call(fn)
	observability.UpdateCircuitBreakerState(c.breaker.Name(), int(c.breaker.GetState()))
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		observability.IncrementCircuitBreakerFailures(c.breaker.Name())
	}
	return translated, err
}

func (c *MyMemoryClient) lookup(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid translation url %q: %w", c.baseURL, err)
	}
	q := u.Query()
	q.Set("q", text)
	q.Set("langpair", LanguagePair(sourceLang, targetLang))
	if c.email != "" {
		q.Set("de", c.email)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordTranslation(false, time.Since(start))
		return "", fmt.Errorf("failed to call translation api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		observability.RecordTranslation(false, time.Since(start))
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", classifyAPIError(&APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))})
	}

	var payload myMemoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		observability.RecordTranslation(false, time.Since(start))
		return "", fmt.Errorf("failed to decode translation response: %w", err)
	}

	if status := int(payload.ResponseStatus); status != 0 && status != http.StatusOK {
		observability.RecordTranslation(false, time.Since(start))
		return "", classifyAPIError(&APIError{StatusCode: status, Message: payload.ResponseDetails})
	}

	observability.RecordTranslation(true, time.Since(start))
	c.logger.Debug().
		Str("langpair", LanguagePair(sourceLang, targetLang)).
		Int("text_length", len(text)).
		Dur("latency", time.Since(start)).
		Msg("Translated text")
	return payload.ResponseData.TranslatedText, nil
}

// classifyAPIError marks rate limits and server errors as retryable.
func classifyAPIError(apiErr *APIError) error {
	if apiErr.Temporary() {
		return resilience.NewRetryableError(apiErr)
	}
	return apiErr
}

func isRetryable(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return resilience.IsRetryable(err)
	}
	return resilience.IsRetryableNetworkError(err)
}
