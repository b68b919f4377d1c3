package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCLIPClientEmbedImage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req clipRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.ImageURL != "https://cdn.example.com/covers/abc.jpg" {
			t.Fatalf("unexpected image URL %q", req.ImageURL)
		}
		json.NewEncoder(w).Encode(clipResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	client, err := NewCLIPClient(Config{APIURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	vec, err := client.EmbedImage(context.Background(), "https://cdn.example.com/covers/abc.jpg")
	if err != nil {
		t.Fatalf("embed image: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3 dims, got %d", len(vec))
	}
}

func TestCLIPClientEmptyEmbedding(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(clipResponse{})
	}))
	defer server.Close()

	client, err := NewCLIPClient(Config{APIURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.EmbedImage(context.Background(), "https://x/img.jpg"); err == nil {
		t.Fatal("expected error on empty embedding")
	}
}

func TestCLIPClientRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := NewCLIPClient(Config{}); err == nil {
		t.Fatal("expected error when service URL missing")
	}
}
