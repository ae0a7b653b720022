package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openscribe/meetingd/internal/capture"
	"github.com/openscribe/meetingd/internal/config"
	"github.com/openscribe/meetingd/internal/engine"
	"github.com/openscribe/meetingd/internal/meeting"
	"github.com/openscribe/meetingd/internal/pipeline"
	"github.com/openscribe/meetingd/internal/server"
	"github.com/openscribe/meetingd/internal/speakers"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the meeting daemon: capture, transcription, and the HTTP/WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := meeting.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	profiles, err := speakers.LoadFile(cfg.ProfilesPath)
	if err != nil {
		return err
	}

	cap, err := capture.NewEngine(cfg.SampleRate)
	if err != nil {
		return err
	}
	defer cap.Terminate()

	pipe := pipeline.New(pipeline.Config{
		FlushInterval:     cfg.FlushInterval,
		StopCooldown:      cfg.StopCooldown,
		SpeakerMatchFloor: cfg.SpeakerMatchFloor,
	}, pipeline.Collaborators{
		Capture:    cap,
		ASR:        engine.NewASRClient(cfg.AsrURL, cfg.SampleRate),
		Diarizer:   engine.NewDiarizerClient(cfg.DiarizerURL, cfg.SampleRate),
		Summarizer: engine.NewSummarizerClient(cfg.SummarizerURL, cfg.SummarizerKey, cfg.SummaryModel),
		Profiles:   profiles,
		Store:      store,
	})
	cap.SetListener(pipe)
	defer pipe.Close()

	srv := server.New(pipe, store)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("meeting daemon starting", "http", cfg.HTTPAddr, "asr", cfg.AsrURL, "diarizer", cfg.DiarizerURL)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	// Finish the active meeting so nothing is left mid-recording.
	if pipe.Active() {
		if err := pipe.StopMeeting(context.Background()); err != nil {
			slog.Error("stop meeting on shutdown", "error", err)
		}
	}
	pipe.Close()

	slog.Info("shutdown complete")
	return nil
}
