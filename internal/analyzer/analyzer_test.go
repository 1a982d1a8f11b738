package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeTestImage(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "shot.png")
	if err := os.WriteFile(path, []byte("not-really-a-png"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLocalAnalyzerNeverFails(t *testing.T) {
	path := writeTestImage(t)
	result := NewLocal().Analyze(context.Background(), path, "", "")
	if !result.Fallback {
		t.Fatal("expected LocalAnalyzer to always report Fallback")
	}
	if result.Summary == "" {
		t.Fatal("expected a non-empty metadata summary")
	}
}

func TestMockAnalyzerSucceeds(t *testing.T) {
	path := writeTestImage(t)
	result := NewMock().Analyze(context.Background(), path, "gpt", "describe")
	if result.Fallback {
		t.Fatalf("expected a non-fallback result, got %+v", result)
	}
}

func TestHTTPAnalyzerSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(responseBody{Summary: "a tidy desktop"})
	}))
	defer srv.Close()

	a := NewHTTP(srv.URL, "test-key")
	path := writeTestImage(t)
	result := a.Analyze(context.Background(), path, "gpt", "describe")
	if result.Fallback {
		t.Fatalf("expected success, got fallback reason %q", result.Reason)
	}
	if result.Summary != "a tidy desktop" {
		t.Fatalf("summary = %q", result.Summary)
	}
}

func TestHTTPAnalyzerNonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewHTTP(srv.URL, "bad-key")
	path := writeTestImage(t)
	result := a.Analyze(context.Background(), path, "gpt", "describe")
	if !result.Fallback {
		t.Fatal("expected a fallback result")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one attempt for a non-retryable failure, got %d", calls)
	}
}

func TestHTTPAnalyzerMalformedPayloadFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unexpected":"shape"}`))
	}))
	defer srv.Close()

	a := NewHTTP(srv.URL, "key")
	path := writeTestImage(t)
	result := a.Analyze(context.Background(), path, "gpt", "describe")
	if !result.Fallback || result.Reason != "malformed_payload" {
		t.Fatalf("got %+v, want Fallback with reason malformed_payload", result)
	}
}

func TestHTTPAnalyzerRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(responseBody{Summary: "recovered"})
	}))
	defer srv.Close()

	a := NewHTTP(srv.URL, "key")
	path := writeTestImage(t)
	result := a.Analyze(context.Background(), path, "gpt", "describe")
	if result.Fallback {
		t.Fatalf("expected eventual success, got fallback reason %q", result.Reason)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}
