// Package pipeline implements the live-meeting transcription pipeline:
// sample accumulation, chunked re-transcription, speaker identification,
// and segment assembly into a persisted meeting.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/openscribe/meetingd/internal/engine"
	"github.com/openscribe/meetingd/internal/errors"
	"github.com/openscribe/meetingd/internal/meeting"
	"github.com/openscribe/meetingd/internal/speakers"
	"github.com/openscribe/meetingd/internal/syncx"
	"github.com/openscribe/meetingd/internal/trace"
)

// Capture is the audio capture collaborator. Flush returns only once every
// sample buffered before the call has been delivered to the listener, so
// a pass that runs after Flush sees all the audio it is owed.
type Capture interface {
	StartRecording(ctx context.Context) error
	StopRecording() error
	Flush(ctx context.Context) error
}

// Transcriber is the speech-to-text collaborator. It must tolerate repeated
// calls on overlapping spans.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

// Diarizer attributes time spans of a window to speaker labels, with an
// embedding per label.
type Diarizer interface {
	Diarize(ctx context.Context, samples []float32) (*engine.Diarization, error)
}

// Summarizer produces the post-meeting summary document.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (*engine.Summary, error)
}

// Event is one transcript update for UI consumption: the incremental text,
// the resolved speaker, and whether the text is final.
type Event struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker"`
	Final   bool   `json:"final"`
}

// Config holds the pipeline tunables.
type Config struct {
	FlushInterval     time.Duration
	StopCooldown      time.Duration
	SpeakerMatchFloor float64
}

func (c Config) withDefaults() Config {
	if c.FlushInterval <= 0 {
		c.FlushInterval = 15 * time.Second
	}
	if c.StopCooldown <= 0 {
		c.StopCooldown = 3 * time.Second
	}
	if c.SpeakerMatchFloor <= 0 {
		c.SpeakerMatchFloor = defaultMatchFloor
	}
	return c
}

// Collaborators are the injected external engines.
type Collaborators struct {
	Capture    Capture
	ASR        Transcriber
	Diarizer   Diarizer
	Summarizer Summarizer
	Profiles   speakers.Directory
	Store      meeting.Store
}

// Pipeline owns at most one active meeting at a time. All meeting state
// (accumulator, meeting, cursor) is confined behind one mutex; inference
// runs on separate goroutines and only results are applied under the lock.
type Pipeline struct {
	cfg    Config
	collab Collaborators
	ident  speakerIdentifier

	mu        sync.Mutex
	acc       accumulator
	current   *meeting.Meeting
	last      identity
	stoppedAt time.Time
	cancelRun context.CancelFunc

	wg       sync.WaitGroup
	eventsCh chan Event
	level    *syncx.Guard[float32]
}

// New creates a pipeline with its collaborators injected. The pipeline
// registers itself as the capture listener via OnSamples/OnLevel; wire that
// up before starting a meeting.
func New(cfg Config, collab Collaborators) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		cfg:    cfg,
		collab: collab,
		ident: speakerIdentifier{
			diarizer:   collab.Diarizer,
			profiles:   collab.Profiles,
			matchFloor: cfg.SpeakerMatchFloor,
		},
		eventsCh: make(chan Event, eventBufferSize),
		level:    syncx.NewGuard(float32(0)),
	}
}

// Events returns the transcript update stream.
func (p *Pipeline) Events() <-chan Event { return p.eventsCh }

// emit sends an event without blocking; a slow consumer loses events, a
// pass never stalls.
func (p *Pipeline) emit(e Event) {
	select {
	case p.eventsCh <- e:
	default:
	}
}

// OnSamples ingests flushed capture audio into the accumulator. Samples
// arriving with no meeting in flight are dropped.
func (p *Pipeline) OnSamples(samples []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return
	}
	p.acc.append(samples)
}

// OnLevel records the latest input level reading.
func (p *Pipeline) OnLevel(level float32) {
	p.level.Set(level)
}

// Level returns the most recent input level.
func (p *Pipeline) Level() float32 { return p.level.Get() }

// Active reports whether a meeting is currently recording.
func (p *Pipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil && p.current.Status == meeting.StatusRecording
}

// Current returns a copy of the in-flight meeting, or nil.
func (p *Pipeline) Current() *meeting.Meeting {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	return p.current.Clone()
}

// RecentlyStopped reports whether a meeting stopped within the cooldown
// window. The surrounding dictation feature uses this to keep trailing
// meeting audio out of ordinary transcription output.
func (p *Pipeline) RecentlyStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.stoppedAt.IsZero() && time.Since(p.stoppedAt) < p.cfg.StopCooldown
}

// StartMeeting begins a new meeting. Fails if one is already recording or
// the capture collaborator cannot start; on capture failure the pipeline
// reverts to idle.
func (p *Pipeline) StartMeeting(ctx context.Context, title string) (*meeting.Meeting, error) {
	p.mu.Lock()
	if p.current != nil && p.current.Status == meeting.StatusRecording {
		p.mu.Unlock()
		return nil, errors.New(errors.CodeCapture, "a meeting is already recording")
	}
	m := meeting.New(title)
	p.current = m
	p.acc.reset()
	p.last = identity{}
	p.mu.Unlock()

	if err := p.collab.Capture.StartRecording(ctx); err != nil {
		p.mu.Lock()
		p.current = nil
		p.mu.Unlock()
		return nil, errors.Wrap(err, errors.CodeCapture, "start recording")
	}

	if err := p.collab.Store.Save(ctx, m.Clone()); err != nil {
		trace.Logger(ctx).Warn("initial meeting save failed", "error", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.mu.Lock()
	p.cancelRun = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.schedulerLoop(runCtx)

	trace.Logger(ctx).Info("meeting started", "meeting", m.ID, "title", title)
	return m.Clone(), nil
}

// schedulerLoop drives the periodic flush-then-transcribe cycle while the
// meeting records.
func (p *Pipeline) schedulerLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A slow engine must not hold up the next tick. Passes are
			// safe to overlap: the cursor advances at selection time,
			// under the lock, so no span is handed out twice.
			//
			// Cancellation stops scheduling only. A pass already in
			// flight owns its span (the cursor moved past it) and must
			// run to completion and commit, so it gets a context that
			// survives the scheduler's cancel; Close still joins it.
			passCtx := context.WithoutCancel(ctx)
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.flushAndRun(passCtx)
			}()
		}
	}
}

// flushAndRun asks the capture layer to hand over its buffered audio, then
// runs one transcription pass over whatever is new.
func (p *Pipeline) flushAndRun(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "flush_pass")
	defer span.End()

	if err := p.collab.Capture.Flush(ctx); err != nil {
		trace.Logger(ctx).Warn("capture flush failed", "error", err)
		// Run the pass anyway over whatever already arrived.
	}
	p.runPass(ctx)
}

// runPass executes one chunk-select → identify → transcribe → commit cycle.
// The cursor advances at selection time, under the lock, so no span is ever
// re-queued even when passes overlap.
func (p *Pipeline) runPass(ctx context.Context) {
	p.mu.Lock()
	m := p.current
	if m == nil {
		p.mu.Unlock()
		return
	}
	span, ok := selectChunk(p.acc.lastFlushIndex, p.acc.size())
	if !ok {
		p.mu.Unlock()
		return
	}
	chunk := p.acc.slice(span.start, span.end)
	window := p.acc.window(contextSize(p.acc.size()))
	p.acc.lastFlushIndex = span.end
	last := p.last
	elapsed := time.Since(m.StartedAt)
	p.mu.Unlock()

	log := trace.Logger(ctx)

	// Resolve the speaker before committing so text and attribution land
	// together, exactly once.
	who := p.ident.identify(ctx, window, last)

	text, err := p.collab.ASR.Transcribe(ctx, chunk)
	if err != nil {
		log.Error("transcription failed, pass skipped", "error", err, "samples", len(chunk))
		return
	}

	p.commit(ctx, m, text, who, elapsed)
}

// commit merges transcribed text into the meeting: a continuation of the
// last segment when the speaker is unchanged, a new segment otherwise.
// Persists after every mutation and emits one transcript event.
func (p *Pipeline) commit(ctx context.Context, m *meeting.Meeting, text string, who identity, elapsed time.Duration) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	p.mu.Lock()
	p.last = who
	if lastSeg := m.LastSegment(); lastSeg != nil && lastSeg.SpeakerName == who.name {
		lastSeg.Text += " " + text
	} else {
		m.AppendSegment(elapsed, text, who.id, who.name, true)
	}
	m.Duration = elapsed
	m.AddParticipant(who.id)
	snapshot := m.Clone()
	p.mu.Unlock()

	if err := p.collab.Store.Save(ctx, snapshot); err != nil {
		trace.Logger(ctx).Error("meeting save failed", "error", err, "meeting", m.ID)
	}

	p.emit(Event{Text: text, Speaker: who.name, Final: true})
}

// StopMeeting ends the active meeting: stops the scheduler and capture,
// runs one final pass over trailing audio, then hands off to asynchronous
// summarization. Returns once the meeting is in the processing state.
func (p *Pipeline) StopMeeting(ctx context.Context) error {
	p.mu.Lock()
	m := p.current
	if m == nil || m.Status != meeting.StatusRecording {
		p.mu.Unlock()
		return errors.New(errors.CodeCapture, "no active meeting")
	}
	// Claim the stop while holding the lock: the status leaves recording
	// here, so a concurrent second stop fails the guard above instead of
	// running the handoff twice.
	m.Status = meeting.StatusProcessing
	cancel := p.cancelRun
	p.cancelRun = nil
	p.stoppedAt = time.Now()
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	log := trace.Logger(ctx)

	if err := p.collab.Capture.StopRecording(); err != nil {
		log.Warn("capture stop failed", "error", err)
	}

	// Last chance to pick up trailing audio. Flush acknowledges delivery,
	// so the final pass sees everything that was still buffered.
	if err := p.collab.Capture.Flush(ctx); err != nil {
		log.Warn("final flush failed", "error", err)
	}
	p.runPass(ctx)

	p.mu.Lock()
	snapshot := m.Clone()
	p.mu.Unlock()

	if err := p.collab.Store.Save(ctx, snapshot); err != nil {
		log.Error("meeting save failed", "error", err, "meeting", m.ID)
	}

	p.wg.Add(1)
	go p.finalize(context.WithoutCancel(ctx), m)

	log.Info("meeting stopped", "meeting", m.ID, "segments", len(snapshot.Segments))
	return nil
}

// finalize requests the summary document and completes the meeting. A
// summarization failure still completes the meeting — nothing may leave it
// stuck in processing.
func (p *Pipeline) finalize(ctx context.Context, m *meeting.Meeting) {
	defer p.wg.Done()

	ctx, span := trace.StartSpan(ctx, "finalize_meeting")
	defer span.End()
	span.SetAttr("meeting", m.ID)
	log := trace.Logger(ctx)

	p.mu.Lock()
	transcript := m.Transcript()
	p.mu.Unlock()

	summary, err := p.collab.Summarizer.Summarize(ctx, transcript)
	if err != nil {
		log.Warn("summarization failed, completing without summary", "error", err)
	}

	p.mu.Lock()
	if summary != nil {
		m.Summary = summary.Summary
		m.ActionItems = summary.ActionItems
	}
	m.Status = meeting.StatusCompleted
	if p.current == m {
		p.current = nil
	}
	snapshot := m.Clone()
	p.mu.Unlock()

	if err := p.collab.Store.Save(ctx, snapshot); err != nil {
		log.Error("final meeting save failed", "error", err, "meeting", m.ID)
	}

	log.Info("meeting completed", "meeting", m.ID, "has_summary", summary != nil)
}

// Close stops any active meeting machinery and waits for in-flight passes
// and summarization to finish, so nothing writes to torn-down state.
func (p *Pipeline) Close() {
	p.mu.Lock()
	cancel := p.cancelRun
	p.cancelRun = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}
