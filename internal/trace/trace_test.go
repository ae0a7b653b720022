package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewContext(t *testing.T) {
	tc := New()
	if len(tc.TraceID) != 32 {
		t.Errorf("trace ID should be 32 hex chars, got %d", len(tc.TraceID))
	}
	if len(tc.SpanID) != 16 {
		t.Errorf("span ID should be 16 hex chars, got %d", len(tc.SpanID))
	}
	if tc.ParentSpanID != "" {
		t.Error("root context should have no parent")
	}
}

func TestNewChild(t *testing.T) {
	parent := New()
	child := NewChild(parent)

	if child.TraceID != parent.TraceID {
		t.Error("child should share trace ID")
	}
	if child.SpanID == parent.SpanID {
		t.Error("child should have a new span ID")
	}
	if child.ParentSpanID != parent.SpanID {
		t.Error("child's parent should be parent's span")
	}
}

func TestContextRoundTrip(t *testing.T) {
	tc := New()
	ctx := WithContext(context.Background(), tc)

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("context should carry trace")
	}
	if got.TraceID != tc.TraceID {
		t.Errorf("trace ID mismatch: %s != %s", got.TraceID, tc.TraceID)
	}
}

func TestStartSpan(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "pass")
	root.SetAttr("samples", 16000)

	_, child := StartSpan(ctx, "diarize")
	if child.Ctx.TraceID != root.Ctx.TraceID {
		t.Error("nested span should inherit trace ID")
	}

	if root.Duration() != 0 {
		t.Error("duration should be zero before End")
	}
	time.Sleep(time.Millisecond)
	root.End()
	if root.Duration() <= 0 {
		t.Error("duration should be positive after End")
	}
}

func TestMiddleware(t *testing.T) {
	var seen Context
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(TraceIDKey, "abc123")
	req.Header.Set(SpanIDKey, "def456")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen.TraceID != "abc123" {
		t.Errorf("trace ID not propagated: %s", seen.TraceID)
	}
	if seen.ParentSpanID != "def456" {
		t.Errorf("caller span should become parent: %s", seen.ParentSpanID)
	}

	// No headers: a fresh trace is created
	req = httptest.NewRequest("GET", "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen.TraceID == "" {
		t.Error("middleware should create a trace when none supplied")
	}
}
