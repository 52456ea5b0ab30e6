package capture

import (
	"errors"
	"fmt"
)

// ErrorKind classifies capture failures shown to the user.
type ErrorKind int

const (
	// KindPermission means the recognizer refused to start.
	KindPermission ErrorKind = iota + 1
	// KindAudioSession means the audio input could not be opened.
	KindAudioSession
	// KindRecognition is a failure of a running or starting recognition.
	KindRecognition
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermission:
		return "permission"
	case KindAudioSession:
		return "audio_session"
	case KindRecognition:
		return "recognition"
	default:
		return "unknown"
	}
}

// ErrNoSpeaker is returned by Speak when no speaker is configured.
var ErrNoSpeaker = errors.New("speech playback not configured")

// ErrNotRecording is returned by Stop when no session is running.
var ErrNotRecording = errors.New("not recording")

// Error is a capture failure with a user-facing message.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindPermission:
		return fmt.Sprintf("Speech recognition not authorized: %v", e.Err)
	case KindAudioSession:
		return fmt.Sprintf("Audio session setup failed: %v", e.Err)
	default:
		return fmt.Sprintf("Recognition failed: %v", e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
