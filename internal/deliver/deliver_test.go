package deliver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/studysync/internal/item"
)

func sampleRecords() []item.Record {
	due := time.Date(2025, 9, 19, 23, 59, 0, 0, time.UTC)
	return []item.Record{
		{Title: "Essay 1 Due", Course: "ENGL 200", DueAt: due, Kind: item.KindAssignment, SourceUID: "cal-2025-9-19-essay 1 due"},
		{Title: "Quiz 2", DueAt: due.Add(24 * time.Hour), Kind: item.KindQuiz, SourceUID: "quiz-2025-9-20-quiz 2"},
	}
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestBulk_PostsRecords(t *testing.T) {
	var got []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/assignments/bulk" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok123" {
			t.Errorf("authorization = %q", auth)
		}
		if r.Header.Get("Idempotency-Key") == "" {
			t.Errorf("missing Idempotency-Key")
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"stats":{"imported":1,"updated":1}}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL + "/", Token: "tok123", Retry: fastRetry()}
	stats, err := c.Bulk(context.Background(), sampleRecords())
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if stats.Imported != 1 || stats.Updated != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(got) != 2 {
		t.Fatalf("server saw %d records", len(got))
	}
	if got[0]["due_at"] != "2025-09-19T23:59:00.000Z" || got[0]["source_uid"] != "cal-2025-9-19-essay 1 due" {
		t.Fatalf("first record = %v", got[0])
	}
	if got[1]["course"] != nil {
		t.Fatalf("empty course should be null, got %v", got[1]["course"])
	}
}

func TestBulk_EmptyBatchNotSent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Token: "t"}
	if _, err := c.Bulk(context.Background(), nil); err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if calls != 0 {
		t.Fatalf("empty batch should not be sent")
	}
}

func TestBulk_MissingToken(t *testing.T) {
	c := &Client{BaseURL: "http://127.0.0.1:1"}
	if _, err := c.Bulk(context.Background(), sampleRecords()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestBulk_Unauthorized(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad token"}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Token: "expired", Retry: fastRetry()}
	_, err := c.Bulk(context.Background(), sampleRecords())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	var herr *HTTPError
	if !errors.As(err, &herr) || herr.StatusCode != 401 {
		t.Fatalf("expected HTTPError 401, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("401 must not be retried, calls = %d", calls)
	}
}

func TestBulk_RetriesWithSameIdempotencyKey(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		n := len(keys)
		mu.Unlock()
		switch n {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`{"ok":true,"stats":{"imported":2,"updated":0}}`))
		}
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Token: "t", Retry: fastRetry()}
	stats, err := c.Bulk(context.Background(), sampleRecords())
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if stats.Imported != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(keys) != 3 {
		t.Fatalf("attempts = %d, want 3", len(keys))
	}
	if keys[0] == "" || keys[0] != keys[1] || keys[1] != keys[2] {
		t.Fatalf("idempotency keys differ across retries: %v", keys)
	}
}

func TestBulk_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Token: "t", Retry: fastRetry()}
	_, err := c.Bulk(context.Background(), sampleRecords())
	var herr *HTTPError
	if !errors.As(err, &herr) || herr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected HTTPError 502, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestBulk_RejectedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"due_at invalid"}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Token: "t", Retry: fastRetry()}
	if _, err := c.Bulk(context.Background(), sampleRecords()); err == nil {
		t.Fatalf("expected error when backend answers ok=false")
	}
}

func TestHealth(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(404)
			return
		}
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	healthy.Store(false)
	var herr *HTTPError
	if err := c.Health(context.Background()); !errors.As(err, &herr) || herr.StatusCode != 503 {
		t.Fatalf("expected HTTPError 503, got %v", err)
	}
}

func TestEndpointDefaultsToHostedBackend(t *testing.T) {
	c := &Client{}
	if got := c.endpoint("/health"); got != DefaultBaseURL+"/health" {
		t.Fatalf("endpoint = %q", got)
	}
}
