package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// FileSource reads raw audio from a file or a FIFO, opened once per session.
// Stdin is shared between sessions through ingest.Source instead.
type FileSource struct {
	Path string
}

// Open returns a fresh reader for one session.
func (s FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.Path == "" {
		return nil, errors.New("no audio input configured")
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio input %q: %w", s.Path, err)
	}
	return f, nil
}
