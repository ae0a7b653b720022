package engine

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openscribe/meetingd/internal/errors"
)

const (
	defaultTimeout = 60 * time.Second
	maxErrBody     = 4096
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// statusError maps an HTTP response status to the pipeline error taxonomy,
// reading a bounded slice of the body for context.
func statusError(resp *http.Response, code errors.Code, op string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
	msg := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		code = errors.CodeRateLimited
	case resp.StatusCode >= 500:
		code = errors.CodeUnavailable
	}
	return errors.Newf(code, "%s: %s: %s", op, resp.Status, msg)
}

// transportError wraps a failed round trip; transport failures are always
// retryable.
func transportError(err error, op string) error {
	return errors.Wrapf(err, errors.CodeUnavailable, "%s request", op)
}
