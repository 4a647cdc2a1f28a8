package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"lectern/internal/domain"
)

func TestOllamaEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req ollamaEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Input) != 2 {
			t.Errorf("input len = %d, want 2", len(req.Input))
		}

		resp := ollamaEmbedResponse{
			Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOllamaProvider(WithOllamaBaseURL(server.URL))
	vecs, err := p.Embed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("vecs len = %d, want 2", len(vecs))
	}
	if vecs[0][0] != 0.1 || vecs[1][0] != 0.3 {
		t.Errorf("unexpected vectors: %v", vecs)
	}
}

func TestOllamaEmbedEmptyInput(t *testing.T) {
	p := NewOllamaProvider()
	vecs, err := p.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vecs != nil {
		t.Errorf("expected nil for empty input, got %v", vecs)
	}
}

func TestOllamaEmbedServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`model not loaded`))
	}))
	defer server.Close()

	p := NewOllamaProvider(WithOllamaBaseURL(server.URL))
	_, err := p.Embed(context.Background(), []string{"hello"})
	if !errors.Is(err, domain.ErrProviderDown) {
		t.Errorf("expected ErrProviderDown, got: %v", err)
	}
}

func TestOllamaEmbedCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := ollamaEmbedResponse{Embeddings: [][]float32{{0.1}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOllamaProvider(WithOllamaBaseURL(server.URL))
	_, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	if !errors.Is(err, domain.ErrEmbeddingFailed) {
		t.Errorf("expected ErrEmbeddingFailed for count mismatch, got: %v", err)
	}
}

func TestOllamaOptions(t *testing.T) {
	p := NewOllamaProvider(
		WithOllamaModel("mxbai-embed-large"),
		WithOllamaDimensions(1024),
		WithOllamaBaseURL("http://remote:11434"),
		WithOllamaClient(&http.Client{}),
	)
	if p.model != "mxbai-embed-large" {
		t.Errorf("model = %q", p.model)
	}
	if p.Dimensions() != 1024 {
		t.Errorf("Dimensions() = %d, want 1024", p.Dimensions())
	}
	if p.baseURL != "http://remote:11434" {
		t.Errorf("baseURL = %q", p.baseURL)
	}
	if p.Name() != "ollama" {
		t.Errorf("Name() = %q, want ollama", p.Name())
	}
}
