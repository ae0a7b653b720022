package pipeline

import (
	"context"
	"math"
	"regexp"
	"sort"

	"github.com/google/uuid"

	"github.com/openscribe/meetingd/internal/engine"
	"github.com/openscribe/meetingd/internal/speakers"
	"github.com/openscribe/meetingd/internal/trace"
)

// identity is the resolved (speakerId, speakerName) pair a pass attributes
// new text to.
type identity struct {
	id   string
	name string
}

// speakerIdentifier resolves who is speaking in a context window by
// diarizing it and matching the dominant voice against enrolled profiles.
// It never fails: every error path degrades to the last-known identity.
type speakerIdentifier struct {
	diarizer   Diarizer
	profiles   speakers.Directory
	matchFloor float64
}

// identify returns the speaker for the current window, or last unchanged
// when nothing better can be established.
func (si *speakerIdentifier) identify(ctx context.Context, window []float32, last identity) identity {
	if si.profiles == nil || si.diarizer == nil || len(window) == 0 {
		return last
	}
	profiles := si.profiles.Profiles()
	if len(profiles) == 0 {
		return last
	}

	log := trace.Logger(ctx)

	// Profiles were enrolled from peak-normalized audio; the live window
	// must match that scale or embedding comparison is meaningless.
	normalized := normalizeWindow(window)

	result, err := si.diarizer.Diarize(ctx, normalized)
	if err != nil {
		log.Warn("diarization failed, keeping last speaker", "error", err)
		return last
	}

	label, ok := dominantLabel(result.Turns)
	if !ok {
		return last
	}

	embedding := result.Embeddings[label]
	best := identity{}
	bestScore := 0.0
	for _, p := range profiles {
		score := cosine(embedding, p.Embedding)
		if score > bestScore {
			bestScore = score
			best = identity{id: p.ID, name: p.Name}
		}
	}

	if bestScore > si.matchFloor {
		return best
	}

	// No profile cleared the floor. Prefer continuity over flip-flopping
	// on a marginal match.
	if last.name != "" {
		return last
	}
	return identity{name: displayNameFor(label)}
}

// normalizeWindow scales a copy of the window so its peak amplitude is
// normalizationPeak, capping the gain at maxGain.
func normalizeWindow(window []float32) []float32 {
	var peak float32
	for _, s := range window {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
	}
	if peak == 0 {
		return append([]float32(nil), window...)
	}

	gain := normalizationPeak / float64(peak)
	if gain > maxGain {
		gain = maxGain
	}

	out := make([]float32, len(window))
	for i, s := range window {
		out[i] = float32(float64(s) * gain)
	}
	return out
}

// dominantLabel reduces diarized turns to the label with the greatest
// cumulative duration. Ties break to the lexically lowest label so the
// reduction is deterministic regardless of turn order.
func dominantLabel(turns []engine.Turn) (string, bool) {
	durations := make(map[string]float64)
	for _, t := range turns {
		durations[t.Speaker] += t.End - t.Start
	}
	if len(durations) == 0 {
		return "", false
	}

	labels := make([]string, 0, len(durations))
	for label := range durations {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	best := labels[0]
	for _, label := range labels[1:] {
		if durations[label] > durations[best] {
			best = label
		}
	}
	return best, true
}

// cosine computes dot(a,b) / (|a|*|b|). Returns exactly 0 for mismatched
// lengths or a zero-norm vector.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var diarizerLabelPattern = regexp.MustCompile(`(?i)^speaker[_\- ]?([0-9]+)$`)

// displayNameFor synthesizes a provisional display name from a raw
// diarizer label: "SPEAKER_00" becomes "Speaker 00", while labels that look
// like generated unique identifiers get a generic name.
func displayNameFor(label string) string {
	if m := diarizerLabelPattern.FindStringSubmatch(label); m != nil {
		return "Speaker " + m[1]
	}
	if _, err := uuid.Parse(label); err == nil {
		return "Unknown Participant"
	}
	return label
}
