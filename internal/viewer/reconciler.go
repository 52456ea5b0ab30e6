package viewer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/listenai/neural-link/internal/observability"
	"github.com/listenai/neural-link/internal/paragraph"
	"github.com/listenai/neural-link/internal/store"
	"github.com/listenai/neural-link/internal/translate"
)

const (
	DefaultInterval         = 500 * time.Millisecond
	DefaultTranslateTimeout = 10 * time.Second
	defaultParallelism      = 4
)

// Fetcher reads the shared transcript state.
type Fetcher interface {
	Read(ctx context.Context) (store.State, error)
}

// Renderer receives the visible changes produced by each reconcile cycle.
// Calls are made from a single goroutine.
type Renderer interface {
	SetLanguages(sourceLang, targetLang string)
	// AppendSource extends block index with suffix. A new block is created
	// by appending its whole text.
	AppendSource(index int, suffix string)
	ReplaceSource(index int, text string)
	SetTranslation(index int, text string)
	TranslationFailed(index int, err error)
	SetAggregate(text string)
	// Truncate removes blocks at index n and above.
	Truncate(n int)
	Reset()
}

type Option func(*Reconciler)

// WithInterval sets the pause between poll cycles.
func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) { r.interval = d }
}

// WithTranslateTimeout bounds each block translation.
func WithTranslateTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.translateTimeout = d }
}

// WithPrune controls whether blocks that disappear from the end of the
// transcript are removed before the next hard reset.
func WithPrune(prune bool) Option {
	return func(r *Reconciler) { r.prune = prune }
}

// WithParallelism bounds concurrent block translations within a cycle.
func WithParallelism(n int) Option {
	return func(r *Reconciler) { r.parallelism = n }
}

// WithLogger sets the reconciler logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// Reconciler polls the store and turns each fetched transcript into block
// level render operations and translations. Step is not safe for concurrent
// use; Run calls it sequentially.
type Reconciler struct {
	fetcher    Fetcher
	translator translate.Translator
	renderer   Renderer
	cache      *Cache

	interval         time.Duration
	translateTimeout time.Duration
	prune            bool
	parallelism      int
	logger           zerolog.Logger

	mu         sync.RWMutex
	blocks     []string
	sourceLang string
	targetLang string
}

// NewReconciler creates a reconciler that reads state from fetcher and
// pushes render operations to renderer. cache may be shared with the caller.
func NewReconciler(fetcher Fetcher, translator translate.Translator, renderer Renderer, cache *Cache, opts ...Option) *Reconciler {
	if cache == nil {
		cache = NewCache()
	}
	r := &Reconciler{
		fetcher:          fetcher,
		translator:       translator,
		renderer:         renderer,
		cache:            cache,
		interval:         DefaultInterval,
		translateTimeout: DefaultTranslateTimeout,
		prune:            true,
		parallelism:      defaultParallelism,
		logger:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.parallelism < 1 {
		r.parallelism = 1
	}
	return r
}

// Run reconciles every interval until ctx is done. The next cycle is only
// scheduled after the previous one has finished rendering.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info().Dur("interval", r.interval).Msg("Viewer reconciler started")
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Viewer reconciler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if err := r.Step(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn().Err(err).Msg("Reconcile cycle failed")
		}
		timer.Reset(r.interval)
	}
}

// Step runs one fetch and reconcile cycle.
func (r *Reconciler) Step(ctx context.Context) error {
	state, err := r.fetcher.Read(ctx)
	if err != nil {
		observability.RecordPoll("error")
		return fmt.Errorf("failed to fetch state: %w", err)
	}
	observability.RecordPoll("success")

	retranslateAll := r.applyLanguages(state)

	if state.Text == "" {
		if r.blockCount() > 0 || r.cache.Len() > 0 {
			r.reset()
		}
		return nil
	}

	texts := paragraph.Split(state.Text)
	dirty := r.diff(texts, retranslateAll)
	cacheChanged := len(dirty) > 0

	if r.prune && len(texts) < r.blockCount() {
		before := r.cache.Len()
		r.setBlocks(r.snapshot()[:len(texts)])
		r.cache.Truncate(len(texts))
		r.renderer.Truncate(len(texts))
		observability.RecordBlockChange("prune")
		r.logger.Debug().Int("blocks", len(texts)).Msg("Pruned stale blocks")
		if r.cache.Len() != before {
			cacheChanged = true
		}
	}

	if r.translateBlocks(ctx, texts, dirty) {
		cacheChanged = true
	}
	if cacheChanged {
		r.renderer.SetAggregate(r.cache.Aggregate())
	}
	return nil
}

// Blocks returns the source text of every rendered block.
func (r *Reconciler) Blocks() []string {
	return r.snapshot()
}

// Languages returns the last applied language pair.
func (r *Reconciler) Languages() (string, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sourceLang, r.targetLang
}

// Cache returns the translation cache.
func (r *Reconciler) Cache() *Cache {
	return r.cache
}

// applyLanguages updates the badges and reports whether existing blocks need
// a fresh translation. Missing languages keep the previous pair.
func (r *Reconciler) applyLanguages(state store.State) bool {
	r.mu.Lock()
	source, target := state.SourceLang, state.TargetLang
	if source == "" {
		source = r.sourceLang
	}
	if target == "" {
		target = r.targetLang
	}
	if source == r.sourceLang && target == r.targetLang {
		r.mu.Unlock()
		return false
	}
	hadPair := r.sourceLang != "" || r.targetLang != ""
	r.sourceLang, r.targetLang = source, target
	r.mu.Unlock()

	r.renderer.SetLanguages(source, target)
	r.logger.Info().Str("source_lang", source).Str("target_lang", target).Msg("Languages changed")
	return hadPair
}

// diff renders the source changes for texts and returns the indexes whose
// translation has to be refreshed.
func (r *Reconciler) diff(texts []string, retranslateAll bool) []int {
	blocks := r.snapshot()
	var dirty []int

	for i, text := range texts {
		if i >= len(blocks) {
			blocks = append(blocks, text)
			r.renderer.AppendSource(i, text)
			observability.RecordBlockChange("create")
			dirty = append(dirty, i)
			continue
		}

		old := blocks[i]
		switch {
		case text == old:
			if retranslateAll {
				dirty = append(dirty, i)
			}
			continue
		case strings.HasPrefix(text, old):
			r.renderer.AppendSource(i, text[len(old):])
			observability.RecordBlockChange("append")
		default:
			r.renderer.ReplaceSource(i, text)
			observability.RecordBlockChange("replace")
		}
		blocks[i] = text
		dirty = append(dirty, i)
	}

	for _, i := range dirty {
		r.cache.Invalidate(i)
	}
	r.setBlocks(blocks)
	return dirty
}

type translation struct {
	index int
	text  string
	err   error
}

// translateBlocks translates the dirty blocks concurrently and applies the
// results in index order. It reports whether the cache changed.
func (r *Reconciler) translateBlocks(ctx context.Context, texts []string, dirty []int) bool {
	if len(dirty) == 0 || r.translator == nil {
		return false
	}
	source, target := r.Languages()

	results := make([]translation, len(dirty))
	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for n, i := range dirty {
		n, i := n, i
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(ctx, r.translateTimeout)
			defer cancel()
			text, err := r.translator.Translate(tctx, texts[i], source, target)
			results[n] = translation{index: i, text: text, err: err}
			return nil
		})
	}
	_ = g.Wait()

	changed := false
	for _, res := range results {
		if res.err != nil {
			r.logger.Warn().Err(res.err).Int("block", res.index).Msg("Translation failed")
			observability.RecordError("translation", "viewer")
			r.renderer.TranslationFailed(res.index, res.err)
			continue
		}
		r.cache.Set(res.index, res.text)
		r.renderer.SetTranslation(res.index, res.text)
		changed = true
	}
	return changed
}

func (r *Reconciler) reset() {
	r.setBlocks(nil)
	r.cache.Clear()
	r.renderer.Reset()
	observability.RecordBlockChange("reset")
	r.logger.Info().Msg("Transcript cleared, viewer reset")
}

func (r *Reconciler) blockCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blocks)
}

func (r *Reconciler) snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.blocks))
	copy(out, r.blocks)
	return out
}

func (r *Reconciler) setBlocks(blocks []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks = blocks
}
