package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/listenai/neural-link/internal/observability"
)

// MaxBodyBytes bounds a single write.
const MaxBodyBytes = 1 << 20

var requiredFields = []string{"text", "sourceLang", "targetLang"}

// Handler serves the remote store wire protocol:
//
//	POST /               {"text","sourceLang","targetLang"} -> {"status":"success"} | 400 {"status":"error"}
//	GET  /?action=fetch  last accepted body verbatim, or DefaultState
type Handler struct {
	backend Backend
	logger  zerolog.Logger
}

// NewHandler creates a store handler over backend.
func NewHandler(backend Backend, logger zerolog.Logger) *Handler {
	return &Handler{backend: backend, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch {
	case r.Method == http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost:
		h.handleWrite(w, r)
	case r.Method == http.MethodGet && r.URL.Query().Get("action") == "fetch":
		h.handleFetch(w)
	default:
		writeStatus(w, http.StatusNotFound, "error")
	}
}

func (h *Handler) handleWrite(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read write body")
		observability.RecordStoreWrite("rejected")
		writeStatus(w, http.StatusBadRequest, "error")
		return
	}
	if len(raw) > MaxBodyBytes {
		observability.RecordStoreWrite("rejected")
		writeStatus(w, http.StatusRequestEntityTooLarge, "error")
		return
	}

	if err := validate(raw); err != nil {
		h.logger.Debug().Err(err).Msg("Rejected write")
		observability.RecordStoreWrite("rejected")
		writeStatus(w, http.StatusBadRequest, "error")
		return
	}

	if err := h.backend.Save(bytes.TrimSpace(raw)); err != nil {
		h.logger.Error().Err(err).Msg("Failed to persist state")
		observability.RecordStoreWrite("error")
		writeStatus(w, http.StatusInternalServerError, "error")
		return
	}

	observability.RecordStoreWrite("success")
	writeStatus(w, http.StatusOK, "success")
}

func (h *Handler) handleFetch(w http.ResponseWriter) {
	raw, ok, err := h.backend.Load()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load state")
		observability.RecordStoreRead("error")
		writeStatus(w, http.StatusInternalServerError, "error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		observability.RecordStoreRead("default")
		_ = json.NewEncoder(w).Encode(DefaultState())
		return
	}

	observability.RecordStoreRead("stored")
	_, _ = w.Write(raw)
}

// validate accepts a JSON object whose text and language fields are strings.
// Extra fields are kept and served back verbatim.
func validate(raw []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if fields == nil {
		return errors.New("body is not an object")
	}
	for _, name := range requiredFields {
		value, ok := fields[name]
		if !ok {
			return fmt.Errorf("missing field %q", name)
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return fmt.Errorf("field %q is not a string", name)
		}
	}
	return nil
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
