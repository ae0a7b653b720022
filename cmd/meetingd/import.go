package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/openscribe/meetingd/internal/config"
	"github.com/openscribe/meetingd/internal/engine"
	"github.com/openscribe/meetingd/internal/meeting"
	"github.com/openscribe/meetingd/internal/pipeline"
	"github.com/openscribe/meetingd/internal/speakers"
)

func newImportCmd() *cobra.Command {
	var title string
	var diarize bool

	cmd := &cobra.Command{
		Use:   "import <audio-file>",
		Short: "Transcribe a pre-recorded meeting from raw float32 PCM audio",
		Long: `Import transcribes a raw audio file (mono little-endian float32 PCM at the
configured sample rate) into a completed meeting. Re-importing the same file
overwrites the previous import instead of creating a duplicate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), args[0], title, diarize)
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "meeting title (defaults to the file name)")
	cmd.Flags().BoolVar(&diarize, "diarize", true, "attribute windows to speakers")
	return cmd
}

func runImport(ctx context.Context, path, title string, diarize bool) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	samples := engine.BytesToFloat32(data)

	if title == "" {
		title = path
	}

	store, err := meeting.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	im := &pipeline.Importer{
		ASR:           engine.NewASRClient(cfg.AsrURL, cfg.SampleRate),
		Store:         store,
		SampleRate:    cfg.SampleRate,
		WindowSamples: cfg.BatchWindowSeconds * cfg.SampleRate,
	}
	if diarize {
		im.Diarizer = engine.NewDiarizerClient(cfg.DiarizerURL, cfg.SampleRate)
		profiles, err := speakers.LoadFile(cfg.ProfilesPath)
		if err != nil {
			return err
		}
		im.Profiles = profiles
	}

	m, err := im.Import(ctx, title, samples)
	if err != nil {
		return err
	}

	fmt.Printf("imported %s: %d segments, %s\n", m.ID, len(m.Segments), m.Duration)
	return nil
}
