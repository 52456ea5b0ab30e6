package paragraph

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitJoinRoundTrip(t *testing.T) {
	tests := [][]string{
		{"hello"},
		{"hello", "world"},
		{"Ala ma kota.", "Kot ma Alę.", "koniec"},
		{" leading space", "trailing space ", "\nsingle newline inside"},
	}

	for _, blocks := range tests {
		got := Split(Join(blocks))
		if !reflect.DeepEqual(got, blocks) {
			t.Errorf("Split(Join(%q)) = %q", blocks, got)
		}
	}
}

func TestSplit_DropsEmptyBlocks(t *testing.T) {
	got := Split("a\n\n\n\nb\n\n")
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %q, got %q", want, got)
	}

	if blocks := Split(""); len(blocks) != 0 {
		t.Errorf("Expected no blocks for empty text, got %q", blocks)
	}
	if blocks := Split(Separator); len(blocks) != 0 {
		t.Errorf("Expected no blocks for bare separator, got %q", blocks)
	}
}

func TestChunk_RespectsLimit(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog and keeps running far away"
	chunks := Chunk(text, 16)

	if len(chunks) < 2 {
		t.Fatalf("Expected several chunks, got %q", chunks)
	}
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 16 {
			t.Errorf("Chunk %q exceeds limit", c)
		}
	}
	if joined := strings.Join(chunks, " "); joined != text {
		t.Errorf("Expected chunks to rebuild text, got %q", joined)
	}
}

func TestChunk_LongWordStandsAlone(t *testing.T) {
	chunks := Chunk("a supercalifragilistic b", 5)
	want := []string{"a", "supercalifragilistic", "b"}
	if !reflect.DeepEqual(chunks, want) {
		t.Errorf("Expected %q, got %q", want, chunks)
	}
}

func TestChunk_NormalizesWhitespace(t *testing.T) {
	chunks := Chunk("  one\ttwo \n three  ", 100)
	want := []string{"one two three"}
	if !reflect.DeepEqual(chunks, want) {
		t.Errorf("Expected %q, got %q", want, chunks)
	}
	if got := Chunk("   ", 10); got != nil {
		t.Errorf("Expected nil for blank text, got %q", got)
	}
}

func TestChunk_CountsRunes(t *testing.T) {
	// "żółć" is 4 runes but 8 bytes.
	chunks := Chunk("żółć żółć", 9)
	if len(chunks) != 1 {
		t.Errorf("Expected a single chunk, got %q", chunks)
	}
}
