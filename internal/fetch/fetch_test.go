package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchSuccess(t *testing.T) {
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := NewClient(DefaultOptions())
	body, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("body = %q", body)
	}
	if !strings.HasPrefix(gotAgent, "Mozilla/5.0") {
		t.Errorf("User-Agent = %q, want browser-like agent", gotAgent)
	}
}

func TestFetchNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	c := NewClient(DefaultOptions())
	if _, err := c.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 410 response")
	}
}

func TestFetchEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(DefaultOptions())
	_, err := c.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("err = %v, want ErrEmptyBody", err)
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.Timeout = 20 * time.Millisecond
	c := NewClient(opts)

	if _, err := c.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected timeout error")
	}
}

// flakyHandler fails the first failures requests with 503, then succeeds.
func flakyHandler(failures int64) (http.HandlerFunc, *atomic.Int64) {
	var calls atomic.Int64
	return func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failures {
			http.Error(w, "not yet", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("finally"))
	}, &calls
}

func TestFetchWithRetryEventualSuccess(t *testing.T) {
	const failures = 2
	handler, calls := flakyHandler(failures)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	opts := DefaultOptions()
	opts.Retries = failures
	c := NewClient(opts)

	body, err := c.FetchWithRetry(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchWithRetry failed: %v", err)
	}
	if string(body) != "finally" {
		t.Errorf("body = %q", body)
	}
	if calls.Load() != failures+1 {
		t.Errorf("attempts = %d, want %d", calls.Load(), failures+1)
	}
}

func TestFetchWithRetryExhausted(t *testing.T) {
	const failures = 2
	handler, calls := flakyHandler(failures)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	opts := DefaultOptions()
	opts.Retries = failures - 1
	c := NewClient(opts)

	_, err := c.FetchWithRetry(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected failure with one retry too few")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("err = %v, want last attempt's status error", err)
	}
	if calls.Load() != failures {
		t.Errorf("attempts = %d, want %d", calls.Load(), failures)
	}
}

func TestFetchWithRetryShortCircuits(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("first try"))
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.Retries = 5
	c := NewClient(opts)

	if _, err := c.FetchWithRetry(context.Background(), srv.URL); err != nil {
		t.Fatalf("FetchWithRetry failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("attempts = %d, want 1", calls.Load())
	}
}
