package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/listenai/neural-link/internal/speech"
)

func pcmOf(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestCartesiaSpeaker_Speak(t *testing.T) {
	var got cartesiaRequest
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("X-API-Key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Write(pcmOf(1000, 2000, -1000, -2000))
	}))
	defer srv.Close()

	var sink bytes.Buffer
	speaker := NewCartesiaSpeaker(CartesiaConfig{
		APIKey:  "key",
		BaseURL: srv.URL,
		VoiceID: "voice-1",
		ModelID: "sonic-multilingual",
	}, &sink)

	err := speaker.Speak(context.Background(), speech.Utterance{
		Text:   "Dzień dobry",
		Locale: "pl-PL",
		Rate:   0.5,
		Volume: 0.5,
	})
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	if apiKey != "key" {
		t.Errorf("Expected api key header, got %q", apiKey)
	}
	if got.Transcript != "Dzień dobry" || got.Voice.ID != "voice-1" || got.Language != "pl" {
		t.Errorf("Unexpected request %+v", got)
	}
	if got.Voice.Controls != nil {
		t.Errorf("Expected no speed control at normal rate, got %+v", got.Voice.Controls)
	}
	if !bytes.Equal(sink.Bytes(), pcmOf(500, 1000, -500, -1000)) {
		t.Errorf("Expected volume-scaled audio, got %v", sink.Bytes())
	}
}

func TestCartesiaSpeaker_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer srv.Close()

	var sink bytes.Buffer
	speaker := NewCartesiaSpeaker(CartesiaConfig{APIKey: "key", BaseURL: srv.URL}, &sink)
	if err := speaker.Speak(context.Background(), speech.Utterance{Text: "hi"}); err == nil {
		t.Fatal("Expected error")
	}
	if sink.Len() != 0 {
		t.Error("Expected nothing written on failure")
	}
}

func TestCartesiaSpeaker_EmptyTextAndMissingKey(t *testing.T) {
	speaker := NewCartesiaSpeaker(CartesiaConfig{}, nil)
	if err := speaker.Speak(context.Background(), speech.Utterance{Text: "  "}); err != nil {
		t.Errorf("Expected empty text to be a no-op, got %v", err)
	}
	if err := speaker.Speak(context.Background(), speech.Utterance{Text: "hi"}); err == nil {
		t.Error("Expected missing key error")
	}
}

func TestSpeedFromRate(t *testing.T) {
	tests := []struct {
		rate   float64
		expect float64
	}{
		{rate: 0, expect: 0},
		{rate: 0.5, expect: 0},
		{rate: 1, expect: 1},
		{rate: 0.25, expect: -0.5},
		{rate: 2, expect: 1},
	}
	for _, tt := range tests {
		if got := speedFromRate(tt.rate); got != tt.expect {
			t.Errorf("speedFromRate(%v): expected %v, got %v", tt.rate, tt.expect, got)
		}
	}
}
