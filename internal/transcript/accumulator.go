package transcript

import (
	"strings"
	"sync"

	"github.com/listenai/neural-link/internal/paragraph"
)

// Listener receives the transcript after every mutation.
type Listener func(transcript string)

// Accumulator holds the committed segments of a recording plus the live,
// uncommitted partial result. Listeners see transcripts in mutation order:
// notifyMu is held across each mutation and its notification.
type Accumulator struct {
	notifyMu sync.Mutex

	mu       sync.Mutex
	segments []string
	live     string

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// NewAccumulator returns an empty accumulator with no listeners.
func NewAccumulator() *Accumulator {
	return &Accumulator{listeners: make(map[int]Listener)}
}

// OnPartial replaces the live text. The recognizer delivers its cumulative
// best guess on every call, never a delta.
func (a *Accumulator) OnPartial(text string) string {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	a.live = text
	current := a.transcriptLocked()
	a.mu.Unlock()

	a.notify(current)
	return current
}

// OnFinal sets the live text and commits it as a new segment.
func (a *Accumulator) OnFinal(text string) string {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	a.live = text
	a.commitLocked()
	current := a.transcriptLocked()
	a.mu.Unlock()

	a.notify(current)
	return current
}

// Commit moves the live text into the committed segments.
func (a *Accumulator) Commit() string {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	a.commitLocked()
	current := a.transcriptLocked()
	a.mu.Unlock()

	a.notify(current)
	return current
}

// StartSession commits whatever live text is still pending so a new
// recognition session never discards in-progress speech.
func (a *Accumulator) StartSession() string {
	return a.Commit()
}

// Reset drops all segments and the live text.
func (a *Accumulator) Reset() {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	a.segments = nil
	a.live = ""
	a.mu.Unlock()

	a.notify("")
}

// Refresh notifies listeners of the current transcript without changing it.
// Use it when something listeners combine with the transcript has changed.
func (a *Accumulator) Refresh() string {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	current := a.Transcript()
	a.notify(current)
	return current
}

// Transcript returns the committed segments followed by the live text,
// joined with paragraph.Separator.
func (a *Accumulator) Transcript() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transcriptLocked()
}

// Segments returns a copy of the committed segments.
func (a *Accumulator) Segments() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.segments...)
}

// Live returns the uncommitted partial text.
func (a *Accumulator) Live() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Subscribe registers fn and returns a function that removes it. Listeners
// run one notification at a time and must not mutate the accumulator.
func (a *Accumulator) Subscribe(fn Listener) func() {
	a.listenersMu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.listenersMu.Unlock()

	return func() {
		a.listenersMu.Lock()
		delete(a.listeners, id)
		a.listenersMu.Unlock()
	}
}

func (a *Accumulator) commitLocked() {
	if strings.TrimSpace(a.live) != "" {
		a.segments = append(a.segments, a.live)
	}
	a.live = ""
}

func (a *Accumulator) transcriptLocked() string {
	if a.live == "" {
		return paragraph.Join(a.segments)
	}
	parts := make([]string, 0, len(a.segments)+1)
	parts = append(parts, a.segments...)
	parts = append(parts, a.live)
	return paragraph.Join(parts)
}

func (a *Accumulator) notify(current string) {
	a.listenersMu.Lock()
	listeners := make([]Listener, 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(current)
	}
}
