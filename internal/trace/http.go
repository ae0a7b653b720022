package trace

import "net/http"

// Middleware extracts or creates a trace context for incoming HTTP requests.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := Context{
			TraceID:      r.Header.Get(TraceIDKey),
			ParentSpanID: r.Header.Get(SpanIDKey),
			SpanID:       newID(8),
		}
		if tc.TraceID == "" {
			tc.TraceID = newID(16)
		}
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}
