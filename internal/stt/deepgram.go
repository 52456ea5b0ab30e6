package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/listenai/neural-link/internal/speech"
)

const defaultChunkSize = 4096

// DeepgramConfig configures live transcription.
type DeepgramConfig struct {
	APIKey     string
	Model      string
	Encoding   string
	SampleRate int
	Channels   int
	// ChunkSize is the number of audio bytes sent per write.
	ChunkSize int
	Logger    zerolog.Logger
}

// messageCallbackHandler embeds the SDK default handler and overrides the
// transcript and error callbacks.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse) error
}

func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if m.errorHandler != nil {
		return m.errorHandler(errorResponse)
	}
	return m.DefaultCallbackHandler.Error(errorResponse)
}

// DeepgramRecognizer implements speech.Recognizer with Deepgram's streaming
// API. Each Recognize call opens its own WebSocket session.
type DeepgramRecognizer struct {
	cfg DeepgramConfig
}

// NewDeepgramRecognizer creates a recognizer; zero chunk size and channel
// count fall back to 4096 bytes and mono.
func NewDeepgramRecognizer(cfg DeepgramConfig) *DeepgramRecognizer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &DeepgramRecognizer{cfg: cfg}
}

// Recognize connects to Deepgram and pumps audio until the reader ends or
// the stream is stopped.
func (d *DeepgramRecognizer) Recognize(ctx context.Context, audio io.Reader, locale string) (speech.Stream, error) {
	if d.cfg.APIKey == "" {
		return nil, fmt.Errorf("deepgram api key missing: %w", speech.ErrUnauthorized)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &deepgramStream{
		ctx:    sctx,
		events: make(chan speech.Event, 256),
		cancel: cancel,
		logger: d.cfg.Logger.With().Str("locale", locale).Logger(),
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.Model,
		Language:       locale,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       d.cfg.Encoding,
		Channels:       d.cfg.Channels,
		SampleRate:     d.cfg.SampleRate,
	}

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                s.handleMessage,
		errorHandler: func(errorResponse *msginterfaces.ErrorResponse) error {
			s.logger.Error().Interface("response", errorResponse).Msg("Deepgram error")
			s.finish(fmt.Errorf("deepgram error: %+v", errorResponse))
			return nil
		},
	}

	client, err := listenClient.NewWSUsingCallback(sctx, d.cfg.APIKey, nil, tOptions, callback)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create Deepgram client: %w", err)
	}
	if !client.Connect() {
		cancel()
		return nil, errors.New("failed to connect to Deepgram")
	}
	s.client = client

	s.logger.Info().Str("model", d.cfg.Model).Msg("Deepgram streaming session started")
	go s.pump(sctx, audio, d.cfg.ChunkSize)
	return s, nil
}

// audioConn is the part of the SDK client a stream uses.
type audioConn interface {
	Write(p []byte) (int, error)
	Finish()
}

type deepgramStream struct {
	client audioConn
	ctx    context.Context
	events chan speech.Event
	cancel context.CancelFunc
	logger zerolog.Logger

	// senders counts in-flight blocking sends; finish waits for them
	// before closing events.
	senders sync.WaitGroup

	mu       sync.Mutex
	text     sessionText
	stopping bool
	closed   bool
	err      error
}

func (s *deepgramStream) Events() <-chan speech.Event {
	return s.events
}

func (s *deepgramStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop sends Finish and emits the session text, including the latest
// interim result, as the final event.
func (s *deepgramStream) Stop() {
	if !s.markStopping() {
		return
	}
	s.client.Finish()

	s.mu.Lock()
	final := s.text.text()
	s.mu.Unlock()
	s.emitFinal(speech.Event{Text: final, IsFinal: true})
	s.finish(nil)
	s.logger.Info().Msg("Deepgram streaming session stopped")
}

// Cancel ends the stream without a final event. It also releases a Stop
// that is blocked delivering its final event.
func (s *deepgramStream) Cancel() {
	if !s.markStopping() {
		s.cancel()
		return
	}
	s.client.Finish()
	s.finish(nil)
}

func (s *deepgramStream) markStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping || s.closed {
		return false
	}
	s.stopping = true
	return true
}

func (s *deepgramStream) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" && !msg.IsFinal {
			return
		}

		s.mu.Lock()
		text := s.text.apply(alt.Transcript, msg.IsFinal)
		s.mu.Unlock()

		s.logger.Debug().Bool("is_final", msg.IsFinal).Str("transcript", alt.Transcript).Msg("Deepgram result")
		// Deepgram finals close a segment, not the session.
		s.emit(speech.Event{Text: text})

	case "SpeechStarted", "UtteranceEnd", "Metadata":
		s.logger.Debug().Str("type", msg.Type).Msg("Deepgram event")
	}
}

func (s *deepgramStream) emit(ev speech.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn().Msg("Recognition event channel full, dropping result")
	}
}

// emitFinal blocks until the event is delivered or the stream context ends.
func (s *deepgramStream) emitFinal(ev speech.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.senders.Add(1)
	s.mu.Unlock()
	defer s.senders.Done()

	select {
	case s.events <- ev:
	case <-s.ctx.Done():
		s.logger.Warn().Msg("Stream ended before final result was delivered")
	}
}

// finish closes the event channel once; err is kept for Err.
func (s *deepgramStream) finish(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	s.mu.Unlock()

	if err != nil {
		s.cancel()
	}
	s.senders.Wait()
	close(s.events)
	s.cancel()
}

func (s *deepgramStream) pump(ctx context.Context, audio io.Reader, chunkSize int) {
	buf := make([]byte, chunkSize)
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := audio.Read(buf)
		if n > 0 {
			if _, werr := s.client.Write(buf[:n]); werr != nil {
				if !s.isStopping() {
					s.finish(fmt.Errorf("failed to send audio to Deepgram: %w", werr))
				}
				return
			}
		}

		if err == nil {
			continue
		}
		if s.isStopping() {
			return
		}
		if errors.Is(err, io.EOF) {
			s.Stop()
			return
		}
		s.client.Finish()
		s.finish(fmt.Errorf("audio read failed: %w", err))
		return
	}
}

func (s *deepgramStream) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping || s.closed
}
