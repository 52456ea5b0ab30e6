package transcript

import (
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestAccumulator_CommitThenPartialDoesNotDuplicate(t *testing.T) {
	acc := NewAccumulator()
	acc.OnFinal("hello")
	got := acc.OnPartial("world")

	if got != "hello\n\nworld" {
		t.Fatalf("unexpected transcript: %q", got)
	}
	if acc.Transcript() != got {
		t.Fatalf("Transcript() disagrees with returned value: %q", acc.Transcript())
	}
}

func TestAccumulator_PartialReplacesLiveText(t *testing.T) {
	acc := NewAccumulator()
	acc.OnPartial("he")
	acc.OnPartial("hell")
	acc.OnPartial("hello there")

	if got := acc.Transcript(); got != "hello there" {
		t.Fatalf("unexpected transcript: %q", got)
	}
	if len(acc.Segments()) != 0 {
		t.Fatalf("expected no committed segments, got %q", acc.Segments())
	}
}

func TestAccumulator_CommitMovesLiveIntoSegments(t *testing.T) {
	acc := NewAccumulator()
	acc.OnPartial("first")
	acc.Commit()
	acc.OnPartial("second")

	if !reflect.DeepEqual(acc.Segments(), []string{"first"}) {
		t.Fatalf("unexpected segments: %q", acc.Segments())
	}
	if acc.Live() != "second" {
		t.Fatalf("unexpected live text: %q", acc.Live())
	}
	if got := acc.Transcript(); got != "first\n\nsecond" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestAccumulator_CommitSkipsBlankLiveText(t *testing.T) {
	acc := NewAccumulator()
	acc.OnFinal("one")
	acc.Commit()
	acc.OnFinal("   ")

	if !reflect.DeepEqual(acc.Segments(), []string{"one"}) {
		t.Fatalf("unexpected segments: %q", acc.Segments())
	}
}

func TestAccumulator_StartSessionCommitsPendingText(t *testing.T) {
	acc := NewAccumulator()
	acc.OnPartial("unfinished thought")
	acc.StartSession()
	acc.OnPartial("next")

	if got := acc.Transcript(); got != "unfinished thought\n\nnext" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestAccumulator_Reset(t *testing.T) {
	acc := NewAccumulator()
	acc.OnFinal("a")
	acc.OnPartial("b")
	acc.Reset()

	if acc.Transcript() != "" || acc.Live() != "" || len(acc.Segments()) != 0 {
		t.Fatalf("expected empty accumulator, got %q", acc.Transcript())
	}
}

func TestAccumulator_SubscribeReceivesEveryMutation(t *testing.T) {
	acc := NewAccumulator()
	var mu sync.Mutex
	var seen []string
	unsubscribe := acc.Subscribe(func(transcript string) {
		mu.Lock()
		seen = append(seen, transcript)
		mu.Unlock()
	})

	acc.OnPartial("a")
	acc.OnFinal("ab")
	acc.Reset()
	unsubscribe()
	acc.OnPartial("ignored")

	want := []string{"a", "ab", ""}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("expected %q, got %q", want, seen)
	}
}

func TestAccumulator_ListenersSeeMutationOrder(t *testing.T) {
	acc := NewAccumulator()

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var last string
	acc.Subscribe(func(transcript string) {
		if transcript == "partial" {
			close(entered)
			<-release
		}
		mu.Lock()
		last = transcript
		mu.Unlock()
	})

	partialDone := make(chan struct{})
	go func() {
		defer close(partialDone)
		acc.OnPartial("partial")
	}()
	<-entered

	resetDone := make(chan struct{})
	go func() {
		defer close(resetDone)
		acc.Reset()
	}()

	select {
	case <-resetDone:
		t.Fatal("Reset notified while an earlier notification was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-partialDone
	<-resetDone

	mu.Lock()
	defer mu.Unlock()
	if last != acc.Transcript() {
		t.Fatalf("listener's last transcript %q != accumulator transcript %q", last, acc.Transcript())
	}
	if last != "" {
		t.Fatalf("expected reset to be the last notification, got %q", last)
	}
}

func TestAccumulator_RefreshRenotifiesCurrentTranscript(t *testing.T) {
	acc := NewAccumulator()
	acc.OnFinal("kept")

	var seen []string
	acc.Subscribe(func(transcript string) { seen = append(seen, transcript) })

	if got := acc.Refresh(); got != "kept" {
		t.Fatalf("unexpected transcript: %q", got)
	}
	if !reflect.DeepEqual(seen, []string{"kept"}) {
		t.Fatalf("expected one notification, got %q", seen)
	}
	if !reflect.DeepEqual(acc.Segments(), []string{"kept"}) {
		t.Fatalf("refresh changed segments: %q", acc.Segments())
	}
}
