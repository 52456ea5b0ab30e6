package paragraph

import (
	"strings"
	"unicode/utf8"
)

// Separator delimits committed segments in a transcript and blocks on the
// viewer side.
const Separator = "\n\n"

// Join concatenates blocks with Separator.
func Join(blocks []string) string {
	return strings.Join(blocks, Separator)
}

// Split breaks text into blocks on Separator and drops empty blocks.
// Split(Join(b)) == b for non-empty blocks that do not contain Separator.
func Split(text string) []string {
	if text == "" {
		return nil
	}
	parts := strings.Split(text, Separator)
	blocks := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		blocks = append(blocks, part)
	}
	return blocks
}

// Chunk splits text into word-boundary chunks of at most limit runes each.
// Words are separated by single spaces inside a chunk; a single word longer
// than limit becomes a chunk of its own.
func Chunk(text string, limit int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if limit <= 0 {
		return []string{strings.Join(words, " ")}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	for _, word := range words {
		wordLen := utf8.RuneCountInString(word)
		if currentLen > 0 && currentLen+1+wordLen > limit {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(word)
		currentLen += wordLen
	}
	if currentLen > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
