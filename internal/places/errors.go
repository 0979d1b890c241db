package places

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const (
	opTextSearch = "textsearch"
	opDetails    = "details"
)

const (
	statusNotFound       = "NOT_FOUND"
	statusOverQueryLimit = "OVER_QUERY_LIMIT"
	statusUnknownError   = "UNKNOWN_ERROR"
)

// APIError reports a non-OK answer from the directory, either at the http
// layer (HTTPStatus) or in the response body (Status).
type APIError struct {
	Op         string
	HTTPStatus int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("places %s: http status %d", e.Op, e.HTTPStatus)
	}
	if e.Message != "" {
		return fmt.Sprintf("places %s: %s: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("places %s: %s", e.Op, e.Status)
}

// Transient reports whether retrying the same call may succeed.
func (e *APIError) Transient() bool {
	if e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= http.StatusInternalServerError {
		return true
	}
	return e.Status == statusOverQueryLimit || e.Status == statusUnknownError
}

// IsTransient reports whether err is worth retrying: throttling, server side
// failures and network timeouts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// mapsStatusPattern matches the library's "maps: STATUS - message" errors.
var mapsStatusPattern = regexp.MustCompile(`(?s)^maps: ([A-Z_]+) - (.*)$`)

// apiError classifies an error from the maps client. Request urls carry the
// api key, so url errors are unwrapped before they reach logs.
func apiError(op string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if m := mapsStatusPattern.FindStringSubmatch(err.Error()); m != nil {
		return &APIError{Op: op, Status: m[1], Message: strings.TrimSpace(m[2])}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("places %s: %w", op, urlErr.Err)
	}
	return fmt.Errorf("places %s: %w", op, err)
}

// statusTransport turns non-200 answers into *APIError. The maps client
// decodes any body it is given and would otherwise hide the http status.
type statusTransport struct {
	next http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return nil, &APIError{Op: path.Base(path.Dir(req.URL.Path)), HTTPStatus: resp.StatusCode}
}
