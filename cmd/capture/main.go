package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/listenai/neural-link/internal/capture"
	"github.com/listenai/neural-link/internal/config"
	"github.com/listenai/neural-link/internal/ingest"
	"github.com/listenai/neural-link/internal/observability"
	"github.com/listenai/neural-link/internal/publish"
	"github.com/listenai/neural-link/internal/resilience"
	"github.com/listenai/neural-link/internal/speech"
	"github.com/listenai/neural-link/internal/store"
	"github.com/listenai/neural-link/internal/stt"
	"github.com/listenai/neural-link/internal/transcript"
	"github.com/listenai/neural-link/internal/tts"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateCapture()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.WithComponent("capture")

	logger.Info().
		Str("port", cfg.CapturePort).
		Str("store_url", cfg.StoreURL).
		Str("audio_input", cfg.AudioInput).
		Str("source_lang", cfg.SourceLang).
		Str("target_lang", cfg.TargetLang).
		Msg("Capture client starting")

	storeClient := store.NewClient(cfg.StoreURL, nil)
	publisher := publish.NewPublisher(storeClient,
		publish.WithDebounce(cfg.PublishDebounce()),
		publish.WithTimeout(cfg.PublishTimeout()),
		publish.WithLogger(logger.With().Str("component", "publish").Logger()),
	)
	publisher.OnStatusChange(func(s publish.Status) {
		logger.Debug().Stringer("status", s).Msg("Store connection status changed")
	})

	recognizer := stt.NewDeepgramRecognizer(stt.DeepgramConfig{
		APIKey:     cfg.DeepgramAPIKey,
		Model:      cfg.DeepgramModel,
		Encoding:   cfg.AudioEncoding,
		SampleRate: cfg.AudioSampleRate,
		Channels:   cfg.AudioChannels,
		ChunkSize:  cfg.AudioChunkSize,
		Logger:     logger.With().Str("component", "stt").Logger(),
	})

	var speaker speech.Speaker
	var sink io.WriteCloser
	if cfg.CartesiaAPIKey != "" {
		var out io.Writer = io.Discard
		if cfg.TTSOutputFile != "" {
			f, err := os.OpenFile(cfg.TTSOutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				logger.Fatal().Err(err).Str("path", cfg.TTSOutputFile).Msg("Failed to open TTS output")
			}
			sink, out = f, f
		}
		speaker = tts.NewCartesiaSpeaker(tts.CartesiaConfig{
			APIKey:           cfg.CartesiaAPIKey,
			VoiceID:          cfg.CartesiaVoiceID,
			ModelID:          cfg.CartesiaModelID,
			OutputSampleRate: cfg.AudioSampleRate,
			Logger:           logger.With().Str("component", "tts").Logger(),
		}, out)
	} else {
		logger.Info().Msg("CARTESIA_API_KEY not set, speech playback disabled")
	}

	var source speech.AudioSource = capture.FileSource{Path: cfg.AudioInput}
	var ingestSource *ingest.Source
	switch cfg.AudioInput {
	case config.AudioInputStdin, config.AudioInputWebSocket:
		ingestSource = ingest.NewSource(logger.With().Str("component", "ingest").Logger())
		source = ingestSource
	}
	if cfg.AudioInput == config.AudioInputStdin {
		go func() {
			if err := ingestSource.Feed(os.Stdin); err != nil {
				logger.Error().Err(err).Msg("Stdin audio feed stopped")
				return
			}
			logger.Info().Msg("Stdin audio ended")
		}()
	}

	controller := capture.NewController(
		transcript.NewAccumulator(),
		publisher,
		recognizer,
		source,
		speaker,
		capture.Options{
			SourceLang:  cfg.SourceLang,
			TargetLang:  cfg.TargetLang,
			SpeakOnStop: cfg.SpeakOnStop,
			Voice: capture.Voice{
				Pitch:  cfg.SpeechPitch,
				Rate:   cfg.SpeechRate,
				Volume: cfg.SpeechVolume,
			},
			Logger: logger,
		},
	)

	mux := http.NewServeMux()
	mux.Handle("/", controller.Handler())
	if cfg.AudioInput == config.AudioInputWebSocket {
		mux.Handle("/audio", ingestSource)
		logger.Info().Msg("Accepting streamed audio at /audio")
	}
	mux.HandleFunc("/health", observability.HealthCheckHandler("capture"))
	mux.HandleFunc("/ready", observability.ReadinessHandler("capture", map[string]observability.HealthCheckFunc{
		"store": storeClient.Ping,
	}))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.CapturePort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().
			Str("port", cfg.CapturePort).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/status", cfg.CapturePort)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	if err := resilience.Reconnect(ctx, "store", func(ctx context.Context) error {
		_, err := storeClient.Ping(ctx)
		return err
	}, cfg.ReconnectConfig()); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Msg("Store not reachable yet, publishing will report network errors")
	}

	if cfg.CaptureAutoStart && ctx.Err() == nil {
		if err := controller.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to start capture session")
		}
	}

	<-ctx.Done()
	logger.Info().Msg("Shutting down capture client...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	controller.Close(shutdownCtx)
	if sink != nil {
		sink.Close()
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Capture client exited gracefully")
}
