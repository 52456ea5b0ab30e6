package translate

import (
	"context"
	"fmt"
	"net/http"
)

// Translator maps text from one language to another.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// APIError is a failure reported by the translation service, either as an
// HTTP status or as the status embedded in the response body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("translation api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("translation api returned status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying later may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// LanguagePair formats the source|target code used by the lookup API.
func LanguagePair(sourceLang, targetLang string) string {
	return sourceLang + "|" + targetLang
}
