// Package ingest hands live audio to capture sessions. Audio arrives over
// WebSocket, as binary frames or Twilio-style media events with base64
// payloads, or from a long-lived reader such as stdin.
package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/listenai/neural-link/internal/observability"
)

var upgrader = websocket.Upgrader{
	// Audio is pushed from the operator's own browser or a media gateway.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
}

// MediaMessage is a JSON control or media event.
type MediaMessage struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid,omitempty"`
	Media     *Media `json:"media,omitempty"`
}

// Media carries one base64 encoded audio chunk.
type Media struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload,omitempty"` // Alternative field name for chunk
}

// Source hands audio from connected streams to the current capture session.
// Audio received while no session is open is dropped.
type Source struct {
	logger zerolog.Logger

	mu     sync.Mutex
	writer *io.PipeWriter
}

// NewSource creates a source with no open session.
func NewSource(logger zerolog.Logger) *Source {
	return &Source{logger: logger}
}

// Open starts a new session reader, ending the previous one.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	r, w := io.Pipe()

	s.mu.Lock()
	prev := s.writer
	s.writer = w
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return &sessionReader{PipeReader: r, source: s, writer: w}, nil
}

type sessionReader struct {
	*io.PipeReader
	source *Source
	writer *io.PipeWriter
}

func (r *sessionReader) Close() error {
	err := r.PipeReader.Close()
	r.source.mu.Lock()
	if r.source.writer == r.writer {
		r.source.writer = nil
	}
	r.source.mu.Unlock()
	return err
}

// Write forwards audio to the open session, if any.
func (s *Source) Write(audio []byte) (int, error) {
	s.mu.Lock()
	w := s.writer
	s.mu.Unlock()

	if w == nil {
		return len(audio), nil
	}
	n, err := w.Write(audio)
	if errors.Is(err, io.ErrClosedPipe) {
		return len(audio), nil
	}
	return n, err
}

// Feed copies r into whichever session is open, so a single long-lived
// reader such as stdin is handed from one session to the next. When r ends
// the open session sees EOF.
func (s *Source) Feed(r io.Reader) error {
	_, err := io.Copy(s, r)

	s.mu.Lock()
	w := s.writer
	s.writer = nil
	s.mu.Unlock()
	if w != nil {
		w.Close()
	}

	if err != nil {
		return fmt.Errorf("audio feed failed: %w", err)
	}
	return nil
}

// ServeHTTP upgrades the request and forwards audio until the stream stops.
func (s *Source) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to upgrade audio connection")
		return
	}
	defer conn.Close()

	logger := s.logger.With().Str("remote_addr", r.RemoteAddr).Logger()
	logger.Info().Msg("Audio stream connected")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("Audio stream read error")
			}
			break
		}

		if msgType == websocket.BinaryMessage {
			s.forward(data, logger)
			continue
		}

		var msg MediaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn().Err(err).Msg("Failed to parse audio stream message")
			continue
		}

		switch msg.Event {
		case "connected", "start":
			logger.Info().Str("stream_sid", msg.StreamSid).Str("event", msg.Event).Msg("Audio stream event")
		case "media":
			if msg.Media == nil {
				continue
			}
			chunk := msg.Media.Chunk
			if chunk == "" {
				chunk = msg.Media.Payload
			}
			audio, err := base64.StdEncoding.DecodeString(chunk)
			if err != nil {
				logger.Warn().Err(err).Msg("Failed to decode base64 audio")
				continue
			}
			s.forward(audio, logger)
		case "stop":
			logger.Info().Str("stream_sid", msg.StreamSid).Msg("Audio stream stopped")
			return
		default:
			logger.Debug().Str("event", msg.Event).Msg("Unknown audio stream event")
		}
	}
	logger.Info().Msg("Audio stream disconnected")
}

func (s *Source) forward(audio []byte, logger zerolog.Logger) {
	if len(audio) == 0 {
		return
	}
	if _, err := s.Write(audio); err != nil {
		observability.RecordError("audio_forward", "ingest")
		logger.Warn().Err(err).Msg("Failed to forward audio")
	}
}
