package capture

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const maxRequestBytes = 64 << 10

type languagesRequest struct {
	SourceLang string `json:"sourceLang"`
	TargetLang string `json:"targetLang"`
}

type speakRequest struct {
	Text string `json:"text"`
}

type settingsRequest struct {
	SpeakOnStop *bool `json:"speakOnStop"`
}

// Handler exposes the controller over HTTP:
//
//	GET  /status              current Status
//	POST /session/start       start recording
//	POST /session/stop        stop recording
//	POST /transcript/reset    clear the transcript
//	POST /languages           {"sourceLang","targetLang"}
//	POST /settings            {"speakOnStop"}
//	POST /speak               {"text"}; empty text speaks the transcript
func (c *Controller) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.Status())
	})

	mux.HandleFunc("POST /session/start", func(w http.ResponseWriter, r *http.Request) {
		if err := c.Start(r.Context()); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeJSON(w, http.StatusOK, c.Status())
	})

	mux.HandleFunc("POST /session/stop", func(w http.ResponseWriter, r *http.Request) {
		if err := c.Stop(r.Context()); err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, ErrNotRecording) {
				code = http.StatusConflict
			}
			writeError(w, code, err)
			return
		}
		writeJSON(w, http.StatusOK, c.Status())
	})

	mux.HandleFunc("POST /transcript/reset", func(w http.ResponseWriter, r *http.Request) {
		c.Reset()
		writeJSON(w, http.StatusOK, c.Status())
	})

	mux.HandleFunc("POST /languages", func(w http.ResponseWriter, r *http.Request) {
		var req languagesRequest
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := c.SetLanguages(req.SourceLang, req.TargetLang); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, c.Status())
	})

	mux.HandleFunc("POST /settings", func(w http.ResponseWriter, r *http.Request) {
		var req settingsRequest
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.SpeakOnStop != nil {
			c.SetSpeakOnStop(*req.SpeakOnStop)
		}
		writeJSON(w, http.StatusOK, c.Status())
	})

	mux.HandleFunc("POST /speak", func(w http.ResponseWriter, r *http.Request) {
		var req speakRequest
		if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := c.Speak(r.Context(), req.Text); err != nil {
			code := http.StatusBadGateway
			if errors.Is(err, ErrNoSpeaker) {
				code = http.StatusServiceUnavailable
			}
			writeError(w, code, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "spoken"})
	})

	return mux
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
