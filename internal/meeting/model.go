// Package meeting defines the meeting aggregate and its persistence.
package meeting

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the meeting lifecycle state.
type Status string

const (
	StatusRecording  Status = "recording"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

// Segment is one attributed utterance. Text may grow through continuation
// merges; speaker attribution and offset are immutable once set.
type Segment struct {
	ID          string        `json:"id"`
	Offset      time.Duration `json:"offset"` // from meeting start
	Text        string        `json:"text"`
	SpeakerID   string        `json:"speaker_id,omitempty"`
	SpeakerName string        `json:"speaker_name,omitempty"`
	Final       bool          `json:"final"`
}

// Meeting is the aggregate root for one recorded session.
type Meeting struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Status       Status        `json:"status"`
	Segments     []Segment     `json:"segments"`
	Participants []string      `json:"participants"`
	Summary      string        `json:"summary,omitempty"`
	ActionItems  []string      `json:"action_items,omitempty"`
}

// New creates a meeting in the recording state.
func New(title string) *Meeting {
	return &Meeting{
		ID:        uuid.NewString(),
		Title:     title,
		StartedAt: time.Now(),
		Status:    StatusRecording,
	}
}

// LastSegment returns the most recent segment, or nil.
func (m *Meeting) LastSegment() *Segment {
	if len(m.Segments) == 0 {
		return nil
	}
	return &m.Segments[len(m.Segments)-1]
}

// AppendSegment adds a new segment with a fresh identity.
func (m *Meeting) AppendSegment(offset time.Duration, text, speakerID, speakerName string, final bool) {
	m.Segments = append(m.Segments, Segment{
		ID:          uuid.NewString(),
		Offset:      offset,
		Text:        text,
		SpeakerID:   speakerID,
		SpeakerName: speakerName,
		Final:       final,
	})
}

// AddParticipant records a speaker identity; returns false if already present.
func (m *Meeting) AddParticipant(id string) bool {
	if id == "" {
		return false
	}
	for _, p := range m.Participants {
		if p == id {
			return false
		}
	}
	m.Participants = append(m.Participants, id)
	return true
}

// Transcript renders the segments as speaker-prefixed lines, the form the
// summarizer prompt consumes.
func (m *Meeting) Transcript() string {
	var b strings.Builder
	for _, s := range m.Segments {
		if s.SpeakerName != "" {
			b.WriteString(s.SpeakerName)
			b.WriteString(": ")
		}
		b.WriteString(s.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// Clone returns a deep copy safe to hand outside the pipeline's lock.
func (m *Meeting) Clone() *Meeting {
	c := *m
	c.Segments = append([]Segment(nil), m.Segments...)
	c.Participants = append([]string(nil), m.Participants...)
	c.ActionItems = append([]string(nil), m.ActionItems...)
	return &c
}
