package translate

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/listenai/neural-link/internal/paragraph"
)

// DefaultChunkLimit keeps each request inside the lookup API's query limit.
const DefaultChunkLimit = 500

// Chunked splits long text into word-boundary chunks, translates them in
// parallel and joins the results with single spaces in chunk order.
type Chunked struct {
	inner Translator
	limit int
}

// NewChunked wraps inner so long texts are split into chunks of at most
// limit characters and translated in parallel.
func NewChunked(inner Translator, limit int) *Chunked {
	if limit <= 0 {
		limit = DefaultChunkLimit
	}
	return &Chunked{inner: inner, limit: limit}
}

// Translate translates text chunk by chunk and joins the results in order.
// The first chunk error fails the whole text.
func (c *Chunked) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if utf8.RuneCountInString(text) <= c.limit {
		return c.inner.Translate(ctx, text, sourceLang, targetLang)
	}

	chunks := paragraph.Chunk(text, c.limit)
	results := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			translated, err := c.inner.Translate(gctx, chunk, sourceLang, targetLang)
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			results[i] = translated
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return strings.Join(results, " "), nil
}
