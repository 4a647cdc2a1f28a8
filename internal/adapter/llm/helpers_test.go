package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lectern/internal/domain"
)

func TestMapHTTPError429(t *testing.T) {
	err := mapHTTPError(http.StatusTooManyRequests, []byte(`{"error":"rate limit exceeded"}`))
	if !errors.Is(err, domain.ErrRateLimit) {
		t.Errorf("expected ErrRateLimit, got %v", err)
	}
	if got := err.Error(); got == "" {
		t.Error("error message should not be empty")
	}
}

func TestMapHTTPError401(t *testing.T) {
	err := mapHTTPError(http.StatusUnauthorized, []byte(`{"error":"invalid api key"}`))
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Errorf("expected ErrAuthInvalid, got %v", err)
	}
}

func TestMapHTTPError403(t *testing.T) {
	err := mapHTTPError(http.StatusForbidden, []byte(`{"error":"forbidden"}`))
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Errorf("expected ErrAuthInvalid, got %v", err)
	}
}

func TestMapHTTPError413(t *testing.T) {
	err := mapHTTPError(http.StatusRequestEntityTooLarge, []byte(`{"error":"context too long"}`))
	if !errors.Is(err, domain.ErrContextOverflow) {
		t.Errorf("expected ErrContextOverflow, got %v", err)
	}
}

func TestMapHTTPError500(t *testing.T) {
	err := mapHTTPError(http.StatusInternalServerError, []byte(`{"error":"internal server error"}`))
	if !errors.Is(err, domain.ErrProviderDown) {
		t.Errorf("expected ErrProviderDown (retryable), got %v", err)
	}
}

func TestMapHTTPError502(t *testing.T) {
	err := mapHTTPError(http.StatusBadGateway, []byte(`bad gateway`))
	if !errors.Is(err, domain.ErrProviderDown) {
		t.Errorf("expected ErrProviderDown (retryable), got %v", err)
	}
}

func TestMapHTTPError529(t *testing.T) {
	err := mapHTTPError(529, []byte(`{"error":{"type":"overloaded_error"}}`))
	if !errors.Is(err, domain.ErrProviderDown) {
		t.Errorf("expected ErrProviderDown for overloaded, got %v", err)
	}
}

func TestMapHTTPErrorUnknownStatus(t *testing.T) {
	err := mapHTTPError(418, []byte(`I'm a teapot`))
	if err == nil {
		t.Fatal("expected error")
	}
	// Should not wrap any known sentinel.
	if errors.Is(err, domain.ErrRateLimit) || errors.Is(err, domain.ErrAuthInvalid) ||
		errors.Is(err, domain.ErrContextOverflow) || errors.Is(err, domain.ErrProviderDown) {
		t.Errorf("expected no sentinel wrapping for unknown status, got %v", err)
	}
}

func TestMapHTTPErrorIncludesBody(t *testing.T) {
	body := `{"error":{"message":"detailed error info from API"}}`
	err := mapHTTPError(http.StatusTooManyRequests, []byte(body))
	if !strings.Contains(err.Error(), "API error 429") {
		t.Errorf("error message should name the status code, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "detailed error info") {
		t.Errorf("error message should include the body, got %q", err.Error())
	}
}

func TestDoJSONRequestSetsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Custom") != "value" {
			t.Errorf("custom header = %q", r.Header.Get("X-Custom"))
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	body, err := doJSONRequest(context.Background(), server.Client(), server.URL,
		[]byte(`{}`), map[string]string{"X-Custom": "value"})
	if err != nil {
		t.Fatalf("doJSONRequest: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}
}

func TestDoJSONRequestContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := doJSONRequest(ctx, server.Client(), server.URL, []byte(`{}`), nil)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
