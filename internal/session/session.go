// Package session fetches listing pages over HTTP with the headers and timeout
// policy the harvester needs.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"realty/internal/metrics"
)

// ErrNoContent means the page exists but carries nothing to harvest: an empty
// body, or a status the source uses past the last page (204, 404, 410).
// The harvester treats it as the end of pagination.
var ErrNoContent = errors.New("session: no content")

// NoContentError is the concrete ErrNoContent. StatusCode is 0 for an empty
// 2xx body.
type NoContentError struct {
	URL        string
	StatusCode int
}

func (e *NoContentError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%v: empty body for %s", ErrNoContent, e.URL)
	}
	return fmt.Sprintf("%v: http status %d for %s", ErrNoContent, e.StatusCode, e.URL)
}

func (e *NoContentError) Is(target error) bool { return target == ErrNoContent }

// NotFound reports whether the server said the page does not exist (404 or
// 410) rather than that it is empty.
func (e *NoContentError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// StatusError is a non-2xx response that does not mean "no more pages".
type StatusError struct {
	URL        string
	StatusCode int
	Body       string // first 4KB, trimmed
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

// DefaultUserAgent is a desktop browser; the source rejects obvious bots.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:84.0) Gecko/20100101 Firefox/84.0"

const maxErrBody = 4096

// Options configures a Session.
type Options struct {
	// Timeout bounds one request including the body read. Default 30s.
	Timeout time.Duration

	// UserAgent overrides DefaultUserAgent.
	UserAgent string

	// Job labels the HTTP metrics.
	Job string
}

// Session fetches pages with a consistent timeout and header policy.
type Session struct {
	client  *http.Client
	timeout time.Duration
	header  http.Header
	job     string
}

// New creates a Session. If client is nil, http.DefaultClient is used.
func New(client *http.Client, opts Options) *Session {
	if client == nil {
		client = http.DefaultClient
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}

	h := make(http.Header)
	h.Set("User-Agent", ua)
	h.Set("Accept", "application/json, text/javascript, */*;q=0.01")
	h.Set("Accept-Language", "ru-RU,ru;q=0.8,en-US;q=0.5,en;q=0.3")
	h.Set("X-Requested-With", "XMLHttpRequest")

	return &Session{client: client, timeout: timeout, header: h, job: opts.Job}
}

// Header returns a copy of the headers sent with every request.
func (s *Session) Header() http.Header { return s.header.Clone() }

// Fetch GETs url and returns the body text.
//
// Errors:
//   - *NoContentError (matches ErrNoContent) for an empty/whitespace body or
//     status 204/404/410
//   - *StatusError for any other non-2xx status
//   - transport and body read errors, wrapped
func (s *Session) Fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header = s.header.Clone()

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		metrics.RecordHTTP(s.job, 0, err, time.Since(start), -1)
		return "", fmt.Errorf("http get %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusGone:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrBody))
		metrics.RecordHTTP(s.job, resp.StatusCode, nil, time.Since(start), 0)
		return "", &NoContentError{URL: url, StatusCode: resp.StatusCode}

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		metrics.RecordHTTP(s.job, resp.StatusCode, nil, time.Since(start), int64(len(body)))
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	b, err := io.ReadAll(resp.Body)
	metrics.RecordHTTP(s.job, resp.StatusCode, err, time.Since(start), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("read body %s: %w", url, err)
	}

	body := string(b)
	if strings.TrimSpace(body) == "" {
		return "", &NoContentError{URL: url}
	}
	return body, nil
}
