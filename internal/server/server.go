// Package server provides the HTTP and WebSocket surface of the meeting
// pipeline: lifecycle endpoints, meeting queries, and a live transcript feed.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/openscribe/meetingd/internal/meeting"
	"github.com/openscribe/meetingd/internal/pipeline"
	"github.com/openscribe/meetingd/internal/trace"
)

// Pipeline is the slice of the meeting pipeline the server consumes.
type Pipeline interface {
	StartMeeting(ctx context.Context, title string) (*meeting.Meeting, error)
	StopMeeting(ctx context.Context) error
	Active() bool
	Current() *meeting.Meeting
	RecentlyStopped() bool
	Level() float32
	Events() <-chan pipeline.Event
}

// Message types pushed over the websocket.
type TranscriptMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Speaker string `json:"speaker"`
	Final   bool   `json:"final"`
}

type LevelMessage struct {
	Type  string  `json:"type"`
	Level float32 `json:"level"`
}

type StartRequest struct {
	Title string `json:"title"`
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	pipe  Pipeline
	store meeting.Store

	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}

	done chan struct{}
}

// New creates a server and starts its broadcast goroutines.
func New(pipe Pipeline, store meeting.Store) *Server {
	s := &Server{
		pipe:  pipe,
		store: store,
		conns: make(map[*websocket.Conn]struct{}),
		done:  make(chan struct{}),
	}

	go s.broadcastTranscripts()
	go s.broadcastLevels()

	return s
}

// Close stops the broadcast goroutines.
func (s *Server) Close() {
	close(s.done)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("POST /api/meeting/start", s.handleMeetingStart)
	mux.HandleFunc("POST /api/meeting/stop", s.handleMeetingStop)
	mux.HandleFunc("GET /api/meeting", s.handleCurrentMeeting)
	mux.HandleFunc("GET /api/meetings", s.handleListMeetings)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	ctx := r.Context()
	log := trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	// The feed is push-only; reads exist to notice disconnects.
	for {
		var msg json.RawMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			log.Debug("websocket closed", "error", err)
			return
		}
	}
}

func (s *Server) broadcastTranscripts() {
	for {
		select {
		case <-s.done:
			return
		case evt, ok := <-s.pipe.Events():
			if !ok {
				return
			}
			s.broadcast(TranscriptMessage{
				Type:    "transcript",
				Text:    evt.Text,
				Speaker: evt.Speaker,
				Final:   evt.Final,
			})
		}
	}
}

func (s *Server) broadcastLevels() {
	ticker := time.NewTicker(levelInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if !s.pipe.Active() {
				continue
			}
			s.broadcast(LevelMessage{Type: "level", Level: s.pipe.Level()})
		}
	}
}

func (s *Server) broadcast(msg any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.conns {
		go func(c *websocket.Conn) {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			defer cancel()
			_ = wsjson.Write(ctx, c, msg)
		}(conn)
	}
}

func (s *Server) handleMeetingStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Title == "" {
		req.Title = "Untitled Meeting"
	}

	m, err := s.pipe.StartMeeting(r.Context(), req.Title)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleMeetingStop(w http.ResponseWriter, r *http.Request) {
	if err := s.pipe.StopMeeting(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processing"})
}

func (s *Server) handleCurrentMeeting(w http.ResponseWriter, r *http.Request) {
	m := s.pipe.Current()
	if m == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active meeting"})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	meetings, err := s.store.LoadAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if meetings == nil {
		meetings = []*meeting.Meeting{}
	}
	writeJSON(w, http.StatusOK, meetings)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active":           s.pipe.Active(),
		"recently_stopped": s.pipe.RecentlyStopped(),
		"level":            s.pipe.Level(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
