package viewer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/listenai/neural-link/internal/store"
)

type fakeFetcher struct {
	state store.State
	err   error
}

func (f *fakeFetcher) Read(ctx context.Context) (store.State, error) {
	return f.state, f.err
}

// prefixTranslator tags text with the target language.
type prefixTranslator struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	block chan struct{}
}

func (p *prefixTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, text)
	err := p.fail[text]
	p.mu.Unlock()

	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return targetLang + ":" + text, nil
}

func (p *prefixTranslator) reset() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	calls := p.calls
	p.calls = nil
	return calls
}

// recordingRenderer records every call as a readable operation.
type recordingRenderer struct {
	ops       []string
	aggregate string
}

func (r *recordingRenderer) SetLanguages(s, t string) { r.add("languages %s %s", s, t) }
func (r *recordingRenderer) AppendSource(i int, suffix string) {
	r.add("append %d %q", i, suffix)
}
func (r *recordingRenderer) ReplaceSource(i int, text string) { r.add("replace %d %q", i, text) }
func (r *recordingRenderer) SetTranslation(i int, text string) {
	r.add("translation %d %q", i, text)
}
func (r *recordingRenderer) TranslationFailed(i int, err error) { r.add("failed %d", i) }
func (r *recordingRenderer) SetAggregate(text string) {
	r.aggregate = text
	r.add("aggregate %q", text)
}
func (r *recordingRenderer) Truncate(n int) { r.add("truncate %d", n) }
func (r *recordingRenderer) Reset()         { r.add("reset") }

func (r *recordingRenderer) add(format string, args ...any) {
	r.ops = append(r.ops, fmt.Sprintf(format, args...))
}

func (r *recordingRenderer) take() []string {
	ops := r.ops
	r.ops = nil
	return ops
}

func (r *recordingRenderer) has(op string) bool {
	for _, o := range r.ops {
		if o == op {
			return true
		}
	}
	return false
}

type harness struct {
	fetcher    *fakeFetcher
	translator *prefixTranslator
	renderer   *recordingRenderer
	rec        *Reconciler
}

func newHarness(opts ...Option) *harness {
	h := &harness{
		fetcher:    &fakeFetcher{},
		translator: &prefixTranslator{fail: map[string]error{}},
		renderer:   &recordingRenderer{},
	}
	h.rec = NewReconciler(h.fetcher, h.translator, h.renderer, NewCache(), opts...)
	return h
}

func (h *harness) step(t *testing.T, text, source, target string) {
	t.Helper()
	h.fetcher.state = store.State{Text: text, SourceLang: source, TargetLang: target}
	if err := h.rec.Step(context.Background()); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
}

func TestReconciler_FirstFetchCreatesBlocks(t *testing.T) {
	h := newHarness()
	h.step(t, "Hello\n\nWorld", "en", "pl")

	want := []string{
		`languages en pl`,
		`append 0 "Hello"`,
		`append 1 "World"`,
		`translation 0 "pl:Hello"`,
		`translation 1 "pl:World"`,
		`aggregate "pl:Hello\n\npl:World"`,
	}
	if got := h.renderer.take(); !reflect.DeepEqual(got, want) {
		t.Errorf("Unexpected ops:\n got %q\nwant %q", got, want)
	}
	if got := h.rec.Blocks(); !reflect.DeepEqual(got, []string{"Hello", "World"}) {
		t.Errorf("Unexpected blocks %q", got)
	}
}

func TestReconciler_UnchangedTextIsNoop(t *testing.T) {
	h := newHarness()
	h.step(t, "Hello", "en", "pl")
	h.renderer.take()
	h.translator.reset()

	h.step(t, "Hello", "en", "pl")

	if ops := h.renderer.take(); len(ops) != 0 {
		t.Errorf("Expected no render ops, got %q", ops)
	}
	if calls := h.translator.reset(); len(calls) != 0 {
		t.Errorf("Expected no translations, got %q", calls)
	}
}

func TestReconciler_PrefixExtensionAppendsSuffixOnly(t *testing.T) {
	h := newHarness()
	h.step(t, "Hello", "en", "pl")
	h.renderer.take()
	h.translator.reset()

	h.step(t, "Hello world", "en", "pl")

	ops := h.renderer.take()
	if len(ops) == 0 || ops[0] != `append 0 " world"` {
		t.Fatalf("Expected exact suffix append, got %q", ops)
	}
	if calls := h.translator.reset(); !reflect.DeepEqual(calls, []string{"Hello world"}) {
		t.Errorf("Expected full block retranslation, got %q", calls)
	}
	if got, _ := h.rec.Cache().Get(0); got != "pl:Hello world" {
		t.Errorf("Unexpected cached translation %q", got)
	}
}

func TestReconciler_NonPrefixChangeReplaces(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
	}{
		{name: "correction", old: "Hello word", new: "Hello world!"},
		{name: "deletion", old: "Hello world", new: "Hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.step(t, tt.old, "en", "pl")
			h.renderer.take()

			h.step(t, tt.new, "en", "pl")

			ops := h.renderer.take()
			want := fmt.Sprintf("replace 0 %q", tt.new)
			if len(ops) == 0 || ops[0] != want {
				t.Errorf("Expected %s, got %q", want, ops)
			}
		})
	}
}

func TestReconciler_OnlyChangedBlocksRetranslate(t *testing.T) {
	h := newHarness()
	h.step(t, "One\n\nTwo", "en", "pl")
	h.translator.reset()

	h.step(t, "One\n\nTwo more\n\nThree", "en", "pl")

	calls := h.translator.reset()
	if !reflect.DeepEqual(sorted(calls), []string{"Three", "Two more"}) {
		t.Errorf("Expected only changed blocks translated, got %q", calls)
	}
	if h.renderer.aggregate != "pl:One\n\npl:Two more\n\npl:Three" {
		t.Errorf("Unexpected aggregate %q", h.renderer.aggregate)
	}
}

func TestReconciler_EmptyTextResets(t *testing.T) {
	h := newHarness()
	h.step(t, "One\n\nTwo", "en", "pl")
	h.renderer.take()

	h.step(t, "", "", "")

	if ops := h.renderer.take(); !reflect.DeepEqual(ops, []string{"reset"}) {
		t.Errorf("Expected a single reset, got %q", ops)
	}
	if n := len(h.rec.Blocks()); n != 0 {
		t.Errorf("Expected no blocks, got %d", n)
	}
	if n := h.rec.Cache().Len(); n != 0 {
		t.Errorf("Expected empty cache, got %d", n)
	}

	h.step(t, "", "en", "pl")
	if ops := h.renderer.take(); len(ops) != 0 {
		t.Errorf("Expected repeated empty text to be a no-op, got %q", ops)
	}
}

func TestReconciler_TargetLanguageChangeRetranslatesAll(t *testing.T) {
	h := newHarness()
	h.step(t, "One\n\nTwo", "en", "pl")
	h.renderer.take()
	h.translator.reset()

	h.step(t, "One\n\nTwo", "en", "de")

	if !h.renderer.has("languages en de") {
		t.Errorf("Expected language badge update, got %q", h.renderer.ops)
	}
	if calls := h.translator.reset(); !reflect.DeepEqual(sorted(calls), []string{"One", "Two"}) {
		t.Errorf("Expected every block retranslated, got %q", calls)
	}
	if h.renderer.aggregate != "de:One\n\nde:Two" {
		t.Errorf("Unexpected aggregate %q", h.renderer.aggregate)
	}
	for _, op := range h.renderer.ops {
		if strings.HasPrefix(op, "append") || strings.HasPrefix(op, "replace") {
			t.Errorf("Expected no source change, got %s", op)
		}
	}
}

func TestReconciler_MissingLanguagesKeepPrevious(t *testing.T) {
	h := newHarness()
	h.step(t, "One", "en", "pl")
	h.renderer.take()

	h.step(t, "One", "", "")

	if ops := h.renderer.take(); len(ops) != 0 {
		t.Errorf("Expected no ops, got %q", ops)
	}
	if s, tl := h.rec.Languages(); s != "en" || tl != "pl" {
		t.Errorf("Expected en/pl to be kept, got %s/%s", s, tl)
	}
}

func TestReconciler_PrunesStaleTrailingBlocks(t *testing.T) {
	h := newHarness()
	h.step(t, "One\n\nTwo\n\nThree", "en", "pl")
	h.renderer.take()

	h.step(t, "One", "en", "pl")

	if !h.renderer.has("truncate 1") {
		t.Errorf("Expected truncate, got %q", h.renderer.ops)
	}
	if got := h.rec.Blocks(); !reflect.DeepEqual(got, []string{"One"}) {
		t.Errorf("Unexpected blocks %q", got)
	}
	if h.renderer.aggregate != "pl:One" {
		t.Errorf("Unexpected aggregate %q", h.renderer.aggregate)
	}
}

func TestReconciler_KeepsStaleBlocksWithoutPrune(t *testing.T) {
	h := newHarness(WithPrune(false))
	h.step(t, "One\n\nTwo", "en", "pl")
	h.renderer.take()

	h.step(t, "One", "en", "pl")

	if ops := h.renderer.take(); len(ops) != 0 {
		t.Errorf("Expected no ops, got %q", ops)
	}
	if n := len(h.rec.Blocks()); n != 2 {
		t.Errorf("Expected stale block kept, got %d blocks", n)
	}
}

func TestReconciler_TranslationFailureLeavesCacheUnset(t *testing.T) {
	h := newHarness()
	h.translator.fail["Two"] = errors.New("quota exceeded")

	h.step(t, "One\n\nTwo", "en", "pl")

	if !h.renderer.has("failed 1") {
		t.Errorf("Expected failure placeholder, got %q", h.renderer.ops)
	}
	if _, ok := h.rec.Cache().Get(1); ok {
		t.Error("Expected no cached translation for failed block")
	}
	if h.renderer.aggregate != "pl:One" {
		t.Errorf("Unexpected aggregate %q", h.renderer.aggregate)
	}

	// Unchanged content is not retried.
	h.translator.reset()
	h.step(t, "One\n\nTwo", "en", "pl")
	if calls := h.translator.reset(); len(calls) != 0 {
		t.Errorf("Expected no retry for unchanged block, got %q", calls)
	}
}

func TestReconciler_TranslationTimeout(t *testing.T) {
	h := newHarness(WithTranslateTimeout(20 * time.Millisecond))
	h.translator.block = make(chan struct{})
	defer close(h.translator.block)

	h.step(t, "Slow", "en", "pl")

	if !h.renderer.has("failed 0") {
		t.Errorf("Expected timeout to report failure, got %q", h.renderer.ops)
	}
	if h.rec.Cache().Len() != 0 {
		t.Error("Expected empty cache after timeout")
	}
}

func TestReconciler_FetchErrorChangesNothing(t *testing.T) {
	h := newHarness()
	h.step(t, "One", "en", "pl")
	h.renderer.take()

	h.fetcher.err = errors.New("connection refused")
	if err := h.rec.Step(context.Background()); err == nil {
		t.Fatal("Expected fetch error")
	}
	if ops := h.renderer.take(); len(ops) != 0 {
		t.Errorf("Expected no ops, got %q", ops)
	}
	if got := h.rec.Blocks(); !reflect.DeepEqual(got, []string{"One"}) {
		t.Errorf("Unexpected blocks %q", got)
	}
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	h := newHarness(WithInterval(5 * time.Millisecond))
	h.fetcher.state = store.State{Text: "One", SourceLang: "en", TargetLang: "pl"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.rec.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	if got := h.rec.Blocks(); !reflect.DeepEqual(got, []string{"One"}) {
		t.Errorf("Unexpected blocks %q", got)
	}
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
