package stt

import "strings"

// sessionText folds Deepgram's per-segment results into the running text of
// the whole session. Finalized segments are kept; the latest interim result
// is shown after them until it is finalized or replaced.
type sessionText struct {
	settled []string
	interim string
}

// apply records a result and returns the session text.
func (s *sessionText) apply(transcript string, isFinal bool) string {
	transcript = strings.TrimSpace(transcript)
	if isFinal {
		if transcript != "" {
			s.settled = append(s.settled, transcript)
		}
		s.interim = ""
	} else {
		s.interim = transcript
	}
	return s.text()
}

func (s *sessionText) text() string {
	parts := s.settled
	if s.interim != "" {
		parts = append(parts[:len(parts):len(parts)], s.interim)
	}
	return strings.Join(parts, " ")
}
