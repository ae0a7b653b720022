package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openscribe/meetingd/internal/engine"
	"github.com/openscribe/meetingd/internal/errors"
	"github.com/openscribe/meetingd/internal/meeting"
	"github.com/openscribe/meetingd/internal/speakers"
)

type fakeCapture struct {
	mu       sync.Mutex
	started  bool
	startErr error
	onFlush  func(ctx context.Context) error
}

func (f *fakeCapture) StartRecording(_ context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *fakeCapture) StopRecording() error {
	f.mu.Lock()
	f.started = false
	f.mu.Unlock()
	return nil
}

func (f *fakeCapture) Flush(ctx context.Context) error {
	if f.onFlush != nil {
		return f.onFlush(ctx)
	}
	return nil
}

// fakeASR returns queued texts in order, then empty strings.
type fakeASR struct {
	mu    sync.Mutex
	texts []string
	calls int
}

func (f *fakeASR) Transcribe(_ context.Context, _ []float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.texts) == 0 {
		return "", nil
	}
	text := f.texts[0]
	f.texts = f.texts[1:]
	return text, nil
}

type fakeSummarizer struct {
	summary *engine.Summary
	err     error
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ string) (*engine.Summary, error) {
	return f.summary, f.err
}

// memStore keeps the latest save per meeting ID.
type memStore struct {
	mu       sync.Mutex
	meetings map[string]*meeting.Meeting
}

func newMemStore() *memStore {
	return &memStore{meetings: make(map[string]*meeting.Meeting)}
}

func (s *memStore) Save(_ context.Context, m *meeting.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meetings[m.ID] = m.Clone()
	return nil
}

func (s *memStore) LoadAll(_ context.Context) ([]*meeting.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*meeting.Meeting, 0, len(s.meetings))
	for _, m := range s.meetings {
		out = append(out, m.Clone())
	}
	return out, nil
}

func (s *memStore) get(id string) *meeting.Meeting {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.meetings[id]; ok {
		return m.Clone()
	}
	return nil
}

func newTestPipeline(t *testing.T, asr *fakeASR, dia Diarizer, profiles speakers.Directory) (*Pipeline, *fakeCapture, *memStore) {
	t.Helper()
	cap := &fakeCapture{}
	store := newMemStore()
	p := New(Config{
		FlushInterval:     time.Hour, // passes driven manually in tests
		StopCooldown:      50 * time.Millisecond,
		SpeakerMatchFloor: defaultMatchFloor,
	}, Collaborators{
		Capture:    cap,
		ASR:        asr,
		Diarizer:   dia,
		Summarizer: &fakeSummarizer{summary: &engine.Summary{Summary: "recap", ActionItems: []string{"follow up"}}},
		Profiles:   profiles,
		Store:      store,
	})
	t.Cleanup(p.Close)
	return p, cap, store
}

func TestStartMeetingRejectsSecondStart(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeASR{}, nil, nil)

	if _, err := p.StartMeeting(context.Background(), "standup"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := p.StartMeeting(context.Background(), "second"); err == nil {
		t.Fatal("second start succeeded with a meeting already recording")
	}
	if err := p.StopMeeting(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestStartMeetingCaptureFailureRevertsToIdle(t *testing.T) {
	p, cap, _ := newTestPipeline(t, &fakeASR{}, nil, nil)
	cap.startErr = errors.New(errors.CodeCapture, "no input device")

	if _, err := p.StartMeeting(context.Background(), "standup"); err == nil {
		t.Fatal("start succeeded despite capture failure")
	}
	if p.Active() {
		t.Fatal("pipeline active after failed start")
	}

	// The failure must not wedge the pipeline: a retry works.
	cap.startErr = nil
	if _, err := p.StartMeeting(context.Background(), "retry"); err != nil {
		t.Fatalf("retry start: %v", err)
	}
}

func TestRunPassSkipsWithoutNewAudio(t *testing.T) {
	asr := &fakeASR{texts: []string{"hello"}}
	p, _, _ := newTestPipeline(t, asr, nil, nil)

	if _, err := p.StartMeeting(context.Background(), "standup"); err != nil {
		t.Fatalf("start: %v", err)
	}

	p.OnSamples(make([]float32, minNewSamples/2))
	p.runPass(context.Background())

	if asr.calls != 0 {
		t.Fatalf("transcriber called %d times on sub-second delta", asr.calls)
	}
}

func TestContinuationMergeAndSpeakerChange(t *testing.T) {
	asr := &fakeASR{texts: []string{"hello", "world", "hi there"}}
	dia := &fakeDiarizer{result: &engine.Diarization{
		Turns:      []engine.Turn{{Speaker: "SPEAKER_00", Start: 0, End: 5}},
		Embeddings: map[string][]float32{"SPEAKER_00": {1, 0}},
	}}
	profiles := speakers.Static{
		{ID: "p1", Name: "Alice", Embedding: []float32{1, 0}},
		{ID: "p2", Name: "Bob", Embedding: []float32{0, 1}},
	}
	p, _, _ := newTestPipeline(t, asr, dia, profiles)

	m, err := p.StartMeeting(context.Background(), "standup")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Two passes with the same dominant speaker merge into one segment.
	p.OnSamples(make([]float32, 2*minNewSamples))
	p.runPass(context.Background())
	p.OnSamples(make([]float32, 2*minNewSamples))
	p.runPass(context.Background())

	cur := p.Current()
	if len(cur.Segments) != 1 {
		t.Fatalf("segments = %d, want 1 after continuation merge", len(cur.Segments))
	}
	if got := cur.Segments[0].Text; got != "hello world" {
		t.Fatalf("merged text = %q, want %q", got, "hello world")
	}
	if cur.Segments[0].SpeakerName != "Alice" {
		t.Fatalf("speaker = %q, want Alice", cur.Segments[0].SpeakerName)
	}

	// Speaker changes to Bob: a new segment starts.
	dia.result = &engine.Diarization{
		Turns:      []engine.Turn{{Speaker: "SPEAKER_01", Start: 0, End: 5}},
		Embeddings: map[string][]float32{"SPEAKER_01": {0, 1}},
	}
	p.OnSamples(make([]float32, 2*minNewSamples))
	p.runPass(context.Background())

	cur = p.Current()
	if len(cur.Segments) != 2 {
		t.Fatalf("segments = %d, want 2 after speaker change", len(cur.Segments))
	}
	if cur.Segments[1].SpeakerName != "Bob" || cur.Segments[1].Text != "hi there" {
		t.Fatalf("second segment = %+v", cur.Segments[1])
	}
	if len(cur.Participants) != 2 {
		t.Fatalf("participants = %v, want both profile IDs", cur.Participants)
	}
	if cur.ID != m.ID {
		t.Fatalf("meeting identity changed mid-session")
	}
}

func TestEmptyTranscriptionIsNoOp(t *testing.T) {
	asr := &fakeASR{texts: []string{"   "}}
	p, _, _ := newTestPipeline(t, asr, nil, nil)

	if _, err := p.StartMeeting(context.Background(), "standup"); err != nil {
		t.Fatalf("start: %v", err)
	}
	p.OnSamples(make([]float32, 2*minNewSamples))
	p.runPass(context.Background())

	if cur := p.Current(); len(cur.Segments) != 0 {
		t.Fatalf("segments = %d, want 0 for whitespace-only text", len(cur.Segments))
	}
}

func TestEventsEmittedPerCommit(t *testing.T) {
	asr := &fakeASR{texts: []string{"hello"}}
	p, _, _ := newTestPipeline(t, asr, nil, nil)

	if _, err := p.StartMeeting(context.Background(), "standup"); err != nil {
		t.Fatalf("start: %v", err)
	}
	p.OnSamples(make([]float32, 2*minNewSamples))
	p.runPass(context.Background())

	select {
	case e := <-p.Events():
		if e.Text != "hello" || !e.Final {
			t.Fatalf("event = %+v", e)
		}
	default:
		t.Fatal("no event emitted for committed text")
	}
}

func TestStopMeetingRunsFinalPassAndSummarizes(t *testing.T) {
	asr := &fakeASR{texts: []string{"closing remarks"}}
	p, cap, store := newTestPipeline(t, asr, nil, nil)

	// Trailing audio arrives only when the pipeline flushes the capture
	// layer, which StopMeeting must do before its final pass.
	var flushOnce sync.Once
	cap.onFlush = func(_ context.Context) error {
		flushOnce.Do(func() { p.OnSamples(make([]float32, 2*minNewSamples)) })
		return nil
	}

	m, err := p.StartMeeting(context.Background(), "standup")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.StopMeeting(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	p.Close() // waits for finalize

	saved := store.get(m.ID)
	if saved == nil {
		t.Fatal("meeting not persisted")
	}
	if saved.Status != meeting.StatusCompleted {
		t.Fatalf("status = %s, want completed", saved.Status)
	}
	if len(saved.Segments) != 1 || saved.Segments[0].Text != "closing remarks" {
		t.Fatalf("final pass segment missing: %+v", saved.Segments)
	}
	if saved.Summary != "recap" || len(saved.ActionItems) != 1 {
		t.Fatalf("summary not attached: %q %v", saved.Summary, saved.ActionItems)
	}
	if p.Current() != nil {
		t.Fatal("pipeline still holds a current meeting after completion")
	}
}

func TestSummarizationFailureStillCompletes(t *testing.T) {
	cap := &fakeCapture{}
	store := newMemStore()
	p := New(Config{StopCooldown: time.Millisecond}, Collaborators{
		Capture:    cap,
		ASR:        &fakeASR{},
		Summarizer: &fakeSummarizer{err: errors.New(errors.CodeSummarization, "model offline")},
		Store:      store,
	})
	t.Cleanup(p.Close)

	m, err := p.StartMeeting(context.Background(), "standup")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.StopMeeting(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	p.Close()

	saved := store.get(m.ID)
	if saved.Status != meeting.StatusCompleted {
		t.Fatalf("status = %s, meeting stuck out of completed", saved.Status)
	}
	if saved.Summary != "" {
		t.Fatalf("summary = %q, want empty after failure", saved.Summary)
	}
}

// gatedASR parks inside Transcribe until released, then reports whether its
// context was still alive.
type gatedASR struct {
	started chan struct{}
	release chan struct{}
	text    string
	once    sync.Once
	ctxErr  error
}

func (g *gatedASR) Transcribe(ctx context.Context, _ []float32) (string, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	g.ctxErr = ctx.Err()
	if g.ctxErr != nil {
		return "", g.ctxErr
	}
	return g.text, nil
}

type countingSummarizer struct {
	mu sync.Mutex
	n  int
}

func (c *countingSummarizer) Summarize(_ context.Context, _ string) (*engine.Summary, error) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return &engine.Summary{Summary: "recap"}, nil
}

func (c *countingSummarizer) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestStopDoesNotCancelInFlightPass(t *testing.T) {
	asr := &gatedASR{
		started: make(chan struct{}),
		release: make(chan struct{}),
		text:    "late arrival",
	}
	cap := &fakeCapture{}
	store := newMemStore()
	p := New(Config{
		FlushInterval: 20 * time.Millisecond,
		StopCooldown:  time.Millisecond,
	}, Collaborators{
		Capture:    cap,
		ASR:        asr,
		Summarizer: &fakeSummarizer{summary: &engine.Summary{Summary: "recap"}},
		Store:      store,
	})
	t.Cleanup(p.Close)

	var once sync.Once
	cap.onFlush = func(_ context.Context) error {
		once.Do(func() { p.OnSamples(make([]float32, 2*minNewSamples)) })
		return nil
	}

	m, err := p.StartMeeting(context.Background(), "standup")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// A scheduler pass is now parked inside Transcribe. Its span was
	// consumed at selection time, so losing the pass would lose the audio.
	<-asr.started

	if err := p.StopMeeting(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	close(asr.release)
	p.Close()

	if asr.ctxErr != nil {
		t.Fatalf("in-flight transcription context = %v, want alive across stop", asr.ctxErr)
	}
	saved := store.get(m.ID)
	if saved.Status != meeting.StatusCompleted {
		t.Fatalf("status = %s, want completed", saved.Status)
	}
	if len(saved.Segments) != 1 || saved.Segments[0].Text != "late arrival" {
		t.Fatalf("in-flight result not committed: %+v", saved.Segments)
	}
}

func TestConcurrentStopRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	sum := &countingSummarizer{}
	cap := &fakeCapture{}
	p := New(Config{
		FlushInterval: time.Hour,
		StopCooldown:  time.Millisecond,
	}, Collaborators{
		Capture:    cap,
		ASR:        &fakeASR{},
		Summarizer: sum,
		Store:      newMemStore(),
	})
	t.Cleanup(p.Close)

	var once sync.Once
	cap.onFlush = func(_ context.Context) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	}

	if _, err := p.StartMeeting(context.Background(), "standup"); err != nil {
		t.Fatalf("start: %v", err)
	}

	firstErr := make(chan error, 1)
	go func() { firstErr <- p.StopMeeting(context.Background()) }()
	<-entered

	// The first stop is parked in its final flush; the meeting is already
	// claimed, so a second stop must fail the guard.
	if err := p.StopMeeting(context.Background()); err == nil {
		t.Fatal("second stop accepted while the first was still in progress")
	}

	close(release)
	if err := <-firstErr; err != nil {
		t.Fatalf("first stop: %v", err)
	}
	p.Close()

	if got := sum.calls(); got != 1 {
		t.Fatalf("summarizer called %d times, want 1", got)
	}
}

func TestStopMeetingWithoutActive(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeASR{}, nil, nil)
	if err := p.StopMeeting(context.Background()); err == nil {
		t.Fatal("stop succeeded with no active meeting")
	}
}

func TestRecentlyStoppedCooldown(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeASR{}, nil, nil)

	if p.RecentlyStopped() {
		t.Fatal("recently stopped before any meeting")
	}
	if _, err := p.StartMeeting(context.Background(), "standup"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.StopMeeting(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !p.RecentlyStopped() {
		t.Fatal("not in cooldown immediately after stop")
	}
	time.Sleep(80 * time.Millisecond)
	if p.RecentlyStopped() {
		t.Fatal("cooldown did not expire")
	}
}

func TestOnSamplesDroppedWhenIdle(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeASR{}, nil, nil)
	p.OnSamples(make([]float32, 100))

	p.mu.Lock()
	size := p.acc.size()
	p.mu.Unlock()
	if size != 0 {
		t.Fatalf("accumulator holds %d samples with no meeting", size)
	}
}

func TestLevelTracking(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeASR{}, nil, nil)
	p.OnLevel(0.42)
	if got := p.Level(); got != 0.42 {
		t.Fatalf("level = %v, want 0.42", got)
	}
}
