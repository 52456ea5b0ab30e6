package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/listenai/neural-link/internal/store"
)

type manualTimer struct {
	s       *manualScheduler
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// manualScheduler only runs tasks when the test calls FireAll.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
	delays []time.Duration
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, fn: fn}
	s.timers = append(s.timers, t)
	s.delays = append(s.delays, d)
	return t
}

func (s *manualScheduler) FireAll() {
	s.mu.Lock()
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

type fakeWriter struct {
	mu     sync.Mutex
	writes []store.State
	err    error
	block  chan struct{}
}

func (w *fakeWriter) Write(ctx context.Context, state store.State) error {
	if w.block != nil {
		select {
		case <-w.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, state)
	return w.err
}

func (w *fakeWriter) Writes() []store.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]store.State(nil), w.writes...)
}

func TestPublisher_CoalescesCallsInsideWindow(t *testing.T) {
	sched := &manualScheduler{}
	writer := &fakeWriter{}
	p := NewPublisher(writer, WithScheduler(sched), WithDebounce(500*time.Millisecond))

	for _, text := range []string{"h", "he", "hel", "hell", "hello"} {
		p.Publish(text, "en", "pl")
	}
	if !p.Pending() {
		t.Fatal("expected a pending write")
	}

	sched.FireAll()

	writes := writer.Writes()
	if len(writes) != 1 {
		t.Fatalf("expected exactly 1 write, got %d", len(writes))
	}
	if writes[0] != (store.State{Text: "hello", SourceLang: "en", TargetLang: "pl"}) {
		t.Fatalf("unexpected payload: %+v", writes[0])
	}
	if p.Status() != StatusSent {
		t.Fatalf("expected sent, got %s", p.Status())
	}
	if sched.delays[0] != 500*time.Millisecond {
		t.Fatalf("unexpected debounce delay: %v", sched.delays[0])
	}
}

func TestPublisher_CoalescesWithRealTimers(t *testing.T) {
	writer := &fakeWriter{}
	p := NewPublisher(writer, WithDebounce(100*time.Millisecond))

	for i := 0; i < 10; i++ {
		p.Publish("text", "en", "pl")
		time.Sleep(2 * time.Millisecond)
	}
	p.Publish("final text", "en", "pl")

	deadline := time.Now().Add(time.Second)
	for p.Status() != StatusSent && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	writes := writer.Writes()
	if len(writes) != 1 || writes[0].Text != "final text" {
		t.Fatalf("expected single write of the last payload, got %+v", writes)
	}
}

func TestPublisher_SupersededTimerHasNoEffect(t *testing.T) {
	sched := &manualScheduler{}
	writer := &fakeWriter{}
	p := NewPublisher(writer, WithScheduler(sched))

	p.Publish("old", "en", "pl")
	stale := sched.timers[0]
	p.Publish("new", "en", "pl")

	// A timer that raced past Stop still runs its callback.
	stale.fn()
	if len(writer.Writes()) != 0 {
		t.Fatalf("stale timer must not write, got %+v", writer.Writes())
	}

	sched.FireAll()
	if writes := writer.Writes(); len(writes) != 1 || writes[0].Text != "new" {
		t.Fatalf("unexpected writes: %+v", writes)
	}
}

func TestPublisher_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Status
	}{
		{"server error", &store.StatusError{Code: 400, Body: `{"status":"error"}`}, StatusServerError},
		{"wrapped server error", errors.Join(errors.New("write"), &store.StatusError{Code: 500}), StatusServerError},
		{"transport error", errors.New("connection refused"), StatusNetworkError},
		{"timeout", context.DeadlineExceeded, StatusNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := &manualScheduler{}
			p := NewPublisher(&fakeWriter{err: tt.err}, WithScheduler(sched))
			p.Publish("x", "en", "pl")
			sched.FireAll()

			if p.Status() != tt.expected {
				t.Fatalf("expected %s, got %s", tt.expected, p.Status())
			}
			if _, ok := p.LastPublished(); ok {
				t.Fatal("failed write must not update last published state")
			}
		})
	}
}

func TestPublisher_TimeoutIsNetworkError(t *testing.T) {
	sched := &manualScheduler{}
	writer := &fakeWriter{block: make(chan struct{})}
	p := NewPublisher(writer, WithScheduler(sched), WithTimeout(10*time.Millisecond))

	p.Publish("slow", "en", "pl")
	sched.FireAll()

	if p.Status() != StatusNetworkError {
		t.Fatalf("expected network error, got %s", p.Status())
	}
}

func TestPublisher_NextPublishRetriesAfterFailure(t *testing.T) {
	sched := &manualScheduler{}
	writer := &fakeWriter{err: errors.New("connection refused")}
	p := NewPublisher(writer, WithScheduler(sched))

	p.Publish("hello", "en", "pl")
	sched.FireAll()

	writer.mu.Lock()
	writer.err = nil
	writer.mu.Unlock()

	p.Publish("hello", "en", "pl")
	sched.FireAll()

	if len(writer.Writes()) != 2 {
		t.Fatalf("expected the same payload to be resent, got %d writes", len(writer.Writes()))
	}
	if last, ok := p.LastPublished(); !ok || last.Text != "hello" {
		t.Fatalf("unexpected last published: %+v", last)
	}
}

func TestPublisher_SkipsUnchangedStateAfterSuccess(t *testing.T) {
	sched := &manualScheduler{}
	writer := &fakeWriter{}
	p := NewPublisher(writer, WithScheduler(sched))

	p.Publish("same", "en", "pl")
	sched.FireAll()
	p.Publish("same", "en", "pl")
	sched.FireAll()
	p.Publish("same", "en", "de")
	sched.FireAll()

	if writes := writer.Writes(); len(writes) != 2 || writes[1].TargetLang != "de" {
		t.Fatalf("unexpected writes: %+v", writes)
	}
}

func TestPublisher_StatusTransitions(t *testing.T) {
	sched := &manualScheduler{}
	p := NewPublisher(&fakeWriter{}, WithScheduler(sched))

	var mu sync.Mutex
	var seen []Status
	p.OnStatusChange(func(s Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	if p.Status() != StatusIdle {
		t.Fatalf("expected idle before first publish, got %s", p.Status())
	}

	p.Publish("x", "en", "pl")
	sched.FireAll()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != StatusSending || seen[1] != StatusSent {
		t.Fatalf("unexpected transitions: %v", seen)
	}
}

func TestPublisher_FlushAndCancel(t *testing.T) {
	sched := &manualScheduler{}
	writer := &fakeWriter{}
	p := NewPublisher(writer, WithScheduler(sched))

	p.Publish("flushed", "en", "pl")
	p.Flush(context.Background())
	if writes := writer.Writes(); len(writes) != 1 || writes[0].Text != "flushed" {
		t.Fatalf("unexpected writes after flush: %+v", writes)
	}

	// The stopped timer must not send a second time.
	sched.FireAll()
	if len(writer.Writes()) != 1 {
		t.Fatalf("flush must consume the pending write")
	}

	p.Publish("dropped", "en", "pl")
	p.Cancel()
	sched.FireAll()
	p.Flush(context.Background())
	if len(writer.Writes()) != 1 {
		t.Fatalf("cancelled write must never happen, got %+v", writer.Writes())
	}
}

func TestStatus_String(t *testing.T) {
	if StatusNetworkError.String() != "network_error" {
		t.Errorf("unexpected name: %s", StatusNetworkError)
	}
	text, _ := StatusServerError.MarshalText()
	if string(text) != "server_error" {
		t.Errorf("unexpected text: %s", text)
	}
}
