package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetch_ReturnsBodyAndSendsBrowserHeaders(t *testing.T) {
	t.Parallel()

	hdr := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr <- r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	t.Cleanup(srv.Close)

	s := New(srv.Client(), Options{Timeout: 2 * time.Second})
	body, err := s.Fetch(context.Background(), srv.URL+"/ajax/flats/?page=1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if body != `{"data":[]}` {
		t.Fatalf("unexpected body: %q", body)
	}
	h := <-hdr
	if got := h.Get("User-Agent"); got != DefaultUserAgent {
		t.Fatalf("User-Agent=%q", got)
	}
	if got := h.Get("Accept-Language"); !strings.HasPrefix(got, "ru-RU") {
		t.Fatalf("Accept-Language=%q", got)
	}
}

func TestFetch_CustomUserAgent(t *testing.T) {
	t.Parallel()

	ua := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua <- r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("x"))
	}))
	t.Cleanup(srv.Close)

	s := New(srv.Client(), Options{UserAgent: "harvest-test/1.0"})
	if _, err := s.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := <-ua; got != "harvest-test/1.0" {
		t.Fatalf("User-Agent=%q", got)
	}
}

func TestFetch_NoContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		wantCode int
		notFound bool
	}{
		{"empty_body", http.StatusOK, "", 0, false},
		{"whitespace_body", http.StatusOK, " \n\t", 0, false},
		{"204", http.StatusNoContent, "", http.StatusNoContent, false},
		{"404", http.StatusNotFound, "not found", http.StatusNotFound, true},
		{"410", http.StatusGone, "gone", http.StatusGone, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			_, err := New(srv.Client(), Options{}).Fetch(context.Background(), srv.URL)
			if !errors.Is(err, ErrNoContent) {
				t.Fatalf("err=%v, want ErrNoContent", err)
			}
			var nc *NoContentError
			if !errors.As(err, &nc) {
				t.Fatalf("err=%T, want *NoContentError", err)
			}
			if nc.StatusCode != tt.wantCode || nc.NotFound() != tt.notFound {
				t.Fatalf("status=%d notFound=%v, want %d %v", nc.StatusCode, nc.NotFound(), tt.wantCode, tt.notFound)
			}
		})
	}
}

// TestFetch_Non2xx verifies we include status code and a body snippet.
func TestFetch_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.Client(), Options{}).Fetch(context.Background(), srv.URL)
	if errors.Is(err, ErrNoContent) {
		t.Fatalf("403 must not be treated as no content")
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %T %v", err, err)
	}
	if se.StatusCode != 403 || se.Body != "nope" {
		t.Fatalf("unexpected status error: %+v", se)
	}
	if !strings.Contains(err.Error(), "http status 403") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestFetch_TransportErrorIsFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(&http.Client{}, Options{Timeout: time.Second}).Fetch(context.Background(), url)
	if err == nil || errors.Is(err, ErrNoContent) {
		t.Fatalf("err=%v, want transport error", err)
	}
}

func TestFetch_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	_, err := New(srv.Client(), Options{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, want deadline exceeded", err)
	}
}
