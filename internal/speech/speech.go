// Package speech defines the capture and playback boundaries: a recognizer
// that turns live audio into partial and final transcripts, and a speaker
// that reads text aloud.
package speech

import (
	"context"
	"errors"
	"io"
)

// ErrUnauthorized is returned when the recognizer refuses to start because
// access was denied or never configured.
var ErrUnauthorized = errors.New("speech recognition not authorized")

// Event is one recognition result. Text is the full text of the current
// session so far; IsFinal marks the end of the session.
type Event struct {
	Text    string
	IsFinal bool
}

// Stream is a running recognition session.
type Stream interface {
	// Events is closed when the session ends.
	Events() <-chan Event
	// Err reports the failure that ended the session, if any. It is only
	// meaningful after Events is closed.
	Err() error
	// Stop ends the audio input and lets the recognizer deliver its final
	// result.
	Stop()
	// Cancel aborts the session without waiting for a final result.
	Cancel()
}

// Recognizer starts recognition sessions over an audio stream.
type Recognizer interface {
	Recognize(ctx context.Context, audio io.Reader, locale string) (Stream, error)
}

// Utterance is a request to speak text.
type Utterance struct {
	Text   string
	Locale string
	// Pitch, Rate and Volume are relative values; 1.0 is neutral for Pitch
	// and Volume, 0.5 is the default Rate.
	Pitch  float64
	Rate   float64
	Volume float64
}

// Speaker plays utterances.
type Speaker interface {
	Speak(ctx context.Context, u Utterance) error
}

// AudioSource opens a fresh audio stream for each capture session.
type AudioSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}
