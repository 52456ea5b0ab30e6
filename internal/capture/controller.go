package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/listenai/neural-link/internal/lang"
	"github.com/listenai/neural-link/internal/observability"
	"github.com/listenai/neural-link/internal/publish"
	"github.com/listenai/neural-link/internal/speech"
	"github.com/listenai/neural-link/internal/transcript"
)

// Publisher is the part of publish.Publisher the controller uses.
type Publisher interface {
	Publish(text, sourceLang, targetLang string)
	Flush(ctx context.Context)
	Status() publish.Status
}

// Voice holds the playback settings applied to every utterance.
type Voice struct {
	Pitch  float64
	Rate   float64
	Volume float64
}

// Options configures a Controller.
type Options struct {
	SourceLang  string
	TargetLang  string
	SpeakOnStop bool
	Voice       Voice
	Logger      zerolog.Logger
}

// Status is a snapshot of the capture side.
type Status struct {
	Recording  bool           `json:"recording"`
	Error      string         `json:"error,omitempty"`
	Connection publish.Status `json:"connection"`
	SourceLang string         `json:"sourceLang"`
	TargetLang string         `json:"targetLang"`
	Transcript string         `json:"transcript"`
	Segments   int            `json:"segments"`
}

type session struct {
	id        string
	audio     io.ReadCloser
	stream    speech.Stream
	done      chan struct{}
	closeOnce sync.Once
	metrics   *observability.SessionMetrics
	logger    zerolog.Logger
}

func (s *session) closeAudio() {
	s.closeOnce.Do(func() { s.audio.Close() })
}

// Controller runs capture sessions: audio goes to the recognizer, results go
// into the transcript accumulator and every transcript change is published.
// Recognition events of a session are applied by a single goroutine.
type Controller struct {
	acc        *transcript.Accumulator
	publisher  Publisher
	recognizer speech.Recognizer
	speaker    speech.Speaker
	source     speech.AudioSource
	logger     zerolog.Logger
	voice      Voice

	unsubscribe func()
	speaking    sync.WaitGroup

	mu          sync.Mutex
	session     *session
	sourceLang  string
	targetLang  string
	speakOnStop bool
	lastErr     error
}

// NewController wires the accumulator to the publisher. speaker may be nil.
func NewController(acc *transcript.Accumulator, publisher Publisher, recognizer speech.Recognizer, source speech.AudioSource, speaker speech.Speaker, opts Options) *Controller {
	if opts.SourceLang == "" {
		opts.SourceLang = "en"
	}
	if opts.TargetLang == "" {
		opts.TargetLang = "pl"
	}
	c := &Controller{
		acc:         acc,
		publisher:   publisher,
		recognizer:  recognizer,
		speaker:     speaker,
		source:      source,
		logger:      opts.Logger,
		voice:       opts.Voice,
		sourceLang:  lang.Normalize(opts.SourceLang),
		targetLang:  lang.Normalize(opts.TargetLang),
		speakOnStop: opts.SpeakOnStop,
	}
	c.unsubscribe = acc.Subscribe(c.publishTranscript)
	return c
}

// Start begins a new capture session, stopping the running one first.
// Committed text of earlier sessions is kept.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.stopSession(ctx, false); err != nil && !errors.Is(err, ErrNotRecording) {
		c.logger.Warn().Err(err).Msg("Failed to stop previous session")
	}

	c.acc.StartSession()

	c.mu.Lock()
	defer c.mu.Unlock()

	id := observability.NewCorrelationID()
	logger := c.logger.With().Str("session_id", id).Logger()
	locale := lang.Locale(c.sourceLang)

	audio, err := c.source.Open(ctx)
	if err != nil {
		return c.failLocked(&Error{Kind: KindAudioSession, Err: err}, logger)
	}

	// The session outlives the request that started it.
	stream, err := c.recognizer.Recognize(context.WithoutCancel(ctx), audio, locale)
	if err != nil {
		audio.Close()
		kind := KindRecognition
		if errors.Is(err, speech.ErrUnauthorized) {
			kind = KindPermission
		}
		return c.failLocked(&Error{Kind: kind, Err: err}, logger)
	}

	s := &session{
		id:      id,
		audio:   audio,
		stream:  stream,
		done:    make(chan struct{}),
		metrics: observability.NewSessionMetrics(id),
		logger:  logger,
	}
	s.metrics.RecordSessionStart()
	c.session = s
	c.lastErr = nil

	go c.consume(s)
	logger.Info().Str("locale", locale).Msg("Capture session started")
	return nil
}

// Stop ends the running session, waits for its final result, commits the
// live text, flushes the publisher and speaks the transcript when enabled.
func (c *Controller) Stop(ctx context.Context) error {
	return c.stopSession(ctx, true)
}

func (c *Controller) stopSession(ctx context.Context, speak bool) error {
	c.mu.Lock()
	s := c.session
	c.session = nil
	speakOnStop := c.speakOnStop
	c.mu.Unlock()

	if s == nil {
		return ErrNotRecording
	}

	s.stream.Stop()
	s.closeAudio()

	select {
	case <-s.done:
	case <-ctx.Done():
		s.stream.Cancel()
		<-s.done
	}

	c.acc.Commit()
	c.publisher.Flush(ctx)
	s.metrics.RecordSessionEnd()
	s.logger.Info().Msg("Capture session stopped")

	if speak && speakOnStop && c.speaker != nil {
		c.speakAsync(c.acc.Transcript())
	}
	return nil
}

// consume applies recognition events until the stream ends. A failed stream
// ends the session like a final result; committed segments stay.
func (c *Controller) consume(s *session) {
	defer close(s.done)
	defer s.closeAudio()

	for ev := range s.stream.Events() {
		s.metrics.RecordRecognitionEvent(ev.IsFinal)
		switch {
		case ev.IsFinal && ev.Text == "":
			c.acc.Commit()
		case ev.IsFinal:
			c.acc.OnFinal(ev.Text)
		default:
			c.acc.OnPartial(ev.Text)
		}
	}

	err := s.stream.Err()
	c.acc.Commit()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == s {
		c.session = nil
		s.metrics.RecordSessionEnd()
		s.logger.Info().Msg("Capture session ended")
	}
	if err != nil {
		s.metrics.RecordError("recognition", "capture")
		c.lastErr = &Error{Kind: KindRecognition, Err: err}
		s.logger.Error().Err(err).Msg("Recognition failed")
	}
}

// Reset clears the transcript. Viewers reset when they see the empty text.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()

	c.acc.Reset()
	c.logger.Info().Msg("Transcript reset")
}

// SetLanguages changes the language pair and republishes the transcript. A
// new source language applies to the recognizer from the next session.
func (c *Controller) SetLanguages(sourceLang, targetLang string) error {
	sourceLang, targetLang = lang.Normalize(sourceLang), lang.Normalize(targetLang)
	if !lang.Supported(sourceLang) {
		return fmt.Errorf("unsupported source language %q", sourceLang)
	}
	if !lang.Supported(targetLang) {
		return fmt.Errorf("unsupported target language %q", targetLang)
	}

	c.mu.Lock()
	c.sourceLang, c.targetLang = sourceLang, targetLang
	c.mu.Unlock()

	c.acc.Refresh()
	c.logger.Info().Str("source_lang", sourceLang).Str("target_lang", targetLang).Msg("Languages changed")
	return nil
}

// SetSpeakOnStop toggles reading the transcript aloud when a session stops.
func (c *Controller) SetSpeakOnStop(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speakOnStop = enabled
}

// Speak reads text aloud in the source language, or the whole transcript
// when text is empty.
func (c *Controller) Speak(ctx context.Context, text string) error {
	if c.speaker == nil {
		return ErrNoSpeaker
	}
	if strings.TrimSpace(text) == "" {
		text = c.acc.Transcript()
	}
	return c.speaker.Speak(ctx, c.utterance(text))
}

// Status returns a snapshot for the control API.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Recording:  c.session != nil,
		Connection: c.publisher.Status(),
		SourceLang: c.sourceLang,
		TargetLang: c.targetLang,
		Transcript: c.acc.Transcript(),
		Segments:   len(c.acc.Segments()),
	}
	if c.lastErr != nil {
		st.Error = c.lastErr.Error()
	}
	return st
}

// Close stops any session and waits for pending playback.
func (c *Controller) Close(ctx context.Context) {
	if err := c.stopSession(ctx, false); err != nil && !errors.Is(err, ErrNotRecording) {
		c.logger.Warn().Err(err).Msg("Failed to stop session on close")
	}
	c.unsubscribe()
	c.publisher.Flush(ctx)
	c.speaking.Wait()
}

func (c *Controller) publishTranscript(text string) {
	c.mu.Lock()
	source, target := c.sourceLang, c.targetLang
	c.mu.Unlock()
	c.publisher.Publish(text, source, target)
}

func (c *Controller) speakAsync(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	u := c.utterance(text)
	c.speaking.Add(1)
	go func() {
		defer c.speaking.Done()
		if err := c.speaker.Speak(context.Background(), u); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to speak transcript")
			observability.RecordError("speak", "capture")
		}
	}()
}

func (c *Controller) utterance(text string) speech.Utterance {
	c.mu.Lock()
	source := c.sourceLang
	c.mu.Unlock()
	return speech.Utterance{
		Text:   text,
		Locale: lang.Locale(source),
		Pitch:  c.voice.Pitch,
		Rate:   c.voice.Rate,
		Volume: c.voice.Volume,
	}
}

func (c *Controller) failLocked(err *Error, logger zerolog.Logger) error {
	c.lastErr = err
	observability.RecordError(err.Kind.String(), "capture")
	logger.Error().Err(err.Err).Str("kind", err.Kind.String()).Msg("Failed to start capture session")
	return err
}
