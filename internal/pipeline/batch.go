package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lukechampine.com/blake3"

	"github.com/openscribe/meetingd/internal/engine"
	"github.com/openscribe/meetingd/internal/errors"
	"github.com/openscribe/meetingd/internal/meeting"
	"github.com/openscribe/meetingd/internal/speakers"
	"github.com/openscribe/meetingd/internal/trace"
)

// Importer transcribes a pre-recorded meeting offline. Unlike the live
// pipeline it has the whole recording up front, so it walks fixed windows
// with no overlap and no continuation merging.
type Importer struct {
	ASR      Transcriber
	Diarizer Diarizer // optional; nil disables speaker attribution
	Profiles speakers.Directory
	Store    meeting.Store

	// SampleRate of the source audio; zero means the pipeline default.
	// Offsets and durations are derived from it, so it must match the
	// rate the samples were decoded at.
	SampleRate int

	// WindowSamples overrides the per-window size; zero means 30 seconds.
	WindowSamples int
}

// Import transcribes samples into a completed meeting and persists it.
// The meeting ID is derived from the audio content, so re-importing the
// same recording overwrites the previous import instead of duplicating it.
func (im *Importer) Import(ctx context.Context, title string, samples []float32) (*meeting.Meeting, error) {
	if len(samples) == 0 {
		return nil, errors.New(errors.CodeTranscription, "no samples to import")
	}

	rate := im.SampleRate
	if rate <= 0 {
		rate = SampleRate
	}
	windowSize := im.WindowSamples
	if windowSize <= 0 {
		windowSize = 30 * rate
	}

	m := meeting.New(title)
	m.ID = contentID(samples)

	ctx, span := trace.StartSpan(ctx, "batch_import")
	defer span.End()
	span.SetAttr("meeting", m.ID)
	log := trace.Logger(ctx)

	for start := 0; start < len(samples); start += windowSize {
		end := start + windowSize
		if end > len(samples) {
			end = len(samples)
		}
		// Trailing slivers under a second carry no transcribable speech.
		if end-start < rate {
			break
		}
		window := samples[start:end]
		offset := time.Duration(start) * time.Second / time.Duration(rate)

		text, err := im.ASR.Transcribe(ctx, window)
		if err != nil {
			log.Warn("window transcription failed, skipped",
				"offset", offset, "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		who := im.attribute(ctx, window)
		m.AppendSegment(offset, text, who.id, who.name, true)
		m.AddParticipant(who.id)
	}

	m.Duration = time.Duration(len(samples)) * time.Second / time.Duration(rate)
	m.Status = meeting.StatusCompleted

	if err := im.Store.Save(ctx, m); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "save imported meeting")
	}

	log.Info("import complete", "meeting", m.ID,
		"segments", len(m.Segments), "duration", m.Duration)
	return m, nil
}

// attribute resolves the dominant speaker of one window, or an anonymous
// identity when diarization is unavailable or fails.
func (im *Importer) attribute(ctx context.Context, window []float32) identity {
	if im.Diarizer == nil {
		return identity{}
	}

	result, err := im.Diarizer.Diarize(ctx, normalizeWindow(window))
	if err != nil {
		trace.Logger(ctx).Warn("window diarization failed", "error", err)
		return identity{}
	}
	label, ok := dominantLabel(result.Turns)
	if !ok {
		return identity{}
	}

	if im.Profiles != nil {
		if p, ok := im.Profiles.ByID(label); ok {
			return identity{id: p.ID, name: p.Name}
		}
	}
	return identity{name: displayNameFor(label)}
}

// contentID hashes the raw sample bytes into a stable meeting identifier.
func contentID(samples []float32) string {
	sum := blake3.Sum256(engine.Float32ToBytes(samples))
	return fmt.Sprintf("import-%x", sum[:16])
}
