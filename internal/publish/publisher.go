package publish

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/listenai/neural-link/internal/observability"
	"github.com/listenai/neural-link/internal/store"
)

const (
	DefaultDebounce = 500 * time.Millisecond
	DefaultTimeout  = 5 * time.Second
)

// Writer performs a full overwrite of the remote state.
type Writer interface {
	Write(ctx context.Context, state store.State) error
}

// StatusListener is told about every connection status change.
type StatusListener func(Status)

// Option configures a Publisher.
type Option func(*Publisher)

// WithDebounce sets the quiet interval before a scheduled write fires.
func WithDebounce(d time.Duration) Option {
	return func(p *Publisher) { p.debounce = d }
}

// WithTimeout bounds a single remote write.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) { p.timeout = d }
}

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(p *Publisher) { p.scheduler = s }
}

// WithLogger sets the publisher's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// Publisher debounces transcript updates and writes them to the remote store.
// At most one write is pending at any time; a newer Publish supersedes it.
// Failed writes are not retried: the next Publish carries the latest state.
type Publisher struct {
	writer    Writer
	debounce  time.Duration
	timeout   time.Duration
	scheduler Scheduler
	logger    zerolog.Logger

	mu            sync.Mutex
	pending       Timer
	pendingState  store.State
	generation    uint64
	lastPublished store.State
	hasPublished  bool
	status        Status
	listeners     []StatusListener

	// sendMu keeps fired writes in order.
	sendMu sync.Mutex
}

// NewPublisher creates a publisher writing through writer with
// DefaultDebounce and DefaultTimeout unless overridden.
func NewPublisher(writer Writer, opts ...Option) *Publisher {
	p := &Publisher{
		writer:    writer,
		debounce:  DefaultDebounce,
		timeout:   DefaultTimeout,
		scheduler: clockScheduler{},
		logger:    zerolog.Nop(),
		status:    StatusIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish schedules a write of the given state after the debounce window,
// cancelling any write that has not fired yet. It never blocks on I/O.
func (p *Publisher) Publish(text, sourceLang, targetLang string) {
	observability.RecordPublishRequest()
	state := store.State{Text: text, SourceLang: sourceLang, TargetLang: targetLang}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending != nil {
		p.pending.Stop()
	}
	p.generation++
	gen := p.generation
	p.pendingState = state
	p.pending = p.scheduler.AfterFunc(p.debounce, func() {
		p.fire(context.Background(), gen)
	})
}

// Flush performs the pending write immediately, if there is one, and waits
// for it to finish.
func (p *Publisher) Flush(ctx context.Context) {
	p.mu.Lock()
	if p.pending == nil {
		p.mu.Unlock()
		return
	}
	p.pending.Stop()
	gen := p.generation
	p.mu.Unlock()

	p.fire(ctx, gen)
}

// Cancel drops the pending write without sending it.
func (p *Publisher) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
	p.generation++
}

// Pending reports whether a write is scheduled.
func (p *Publisher) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

// Status returns the current connection status.
func (p *Publisher) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// LastPublished returns the last state the store accepted.
func (p *Publisher) LastPublished() (store.State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPublished, p.hasPublished
}

// OnStatusChange registers a listener for connection status changes.
func (p *Publisher) OnStatusChange(fn StatusListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// fire sends the pending state of generation gen. A superseded generation is
// dropped, so a timer that fired concurrently with a newer Publish has no
// effect.
func (p *Publisher) fire(ctx context.Context, gen uint64) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	p.mu.Lock()
	if gen != p.generation || p.pending == nil {
		p.mu.Unlock()
		return
	}
	state := p.pendingState
	p.pending = nil
	if p.hasPublished && p.status == StatusSent && state == p.lastPublished {
		p.mu.Unlock()
		p.logger.Debug().Msg("State unchanged since last write, skipping")
		return
	}
	p.mu.Unlock()

	p.setStatus(StatusSending)

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := p.writer.Write(writeCtx, state)
	latency := time.Since(start)

	status := classify(err)
	observability.RecordPublishWrite(status.String(), latency)

	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("status", status.String()).
			Dur("latency", latency).
			Msg("Failed to publish transcript")
	} else {
		p.logger.Debug().
			Int("text_length", len(state.Text)).
			Dur("latency", latency).
			Msg("Published transcript")
	}

	p.mu.Lock()
	if err == nil {
		p.lastPublished = state
		p.hasPublished = true
	}
	p.mu.Unlock()

	p.setStatus(status)
}

func (p *Publisher) setStatus(status Status) {
	p.mu.Lock()
	if p.status == status {
		p.mu.Unlock()
		return
	}
	p.status = status
	listeners := append([]StatusListener(nil), p.listeners...)
	p.mu.Unlock()

	observability.SetConnectionStatus(int(status))
	for _, fn := range listeners {
		fn(status)
	}
}

// classify maps a write result to a connection status: non-2xx answers are
// server errors, everything else (transport, timeout) is a network error.
func classify(err error) Status {
	if err == nil {
		return StatusSent
	}
	var statusErr *store.StatusError
	if errors.As(err, &statusErr) {
		return StatusServerError
	}
	return StatusNetworkError
}
