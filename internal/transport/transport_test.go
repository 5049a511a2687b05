package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestPost_SucceedsOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("missing x-api-key header")
		}
		if r.Header.Get("Idempotency-Key") != "abc" {
			t.Errorf("missing idempotency key header")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr, err := New(Config{IngestURL: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = tr.Post(context.Background(), "/v1/ingest", map[string]string{"x": "y"}, map[string]string{"Idempotency-Key": "abc"})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
}

func TestPost_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	tr, err := New(Config{IngestURL: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = tr.Post(context.Background(), "/v1/ingest", map[string]string{}, nil)
	de, ok := err.(*DeliveryError)
	if !ok {
		t.Fatalf("expected *DeliveryError, got %v", err)
	}
	if de.Kind != KindClientError {
		t.Fatalf("expected KindClientError, got %v", de.Kind)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable error, got %d", calls)
	}
}

func TestPost_ServerErrorRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr, err := New(Config{IngestURL: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tr.Post(context.Background(), "/v1/ingest", map[string]string{}, nil); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestPost_RateLimitedExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr, err := New(Config{IngestURL: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = tr.Post(context.Background(), "/v1/ingest", map[string]string{}, nil)
	de, ok := err.(*DeliveryError)
	if !ok {
		t.Fatalf("expected *DeliveryError, got %v", err)
	}
	if de.Kind != KindRateLimited || de.Attempts != maxAttempts {
		t.Fatalf("expected exhausted RateLimited after %d attempts, got kind=%v attempts=%d", maxAttempts, de.Kind, de.Attempts)
	}
	if atomic.LoadInt32(&calls) != int32(maxAttempts) {
		t.Fatalf("expected %d calls, got %d", maxAttempts, calls)
	}
}

func TestNew_RejectsEmptyIngestURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing ingest_url")
	}
}
