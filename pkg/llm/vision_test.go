package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVisionClientCompleteJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req visionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_schema" {
			t.Fatalf("expected json_schema response format")
		}
		if len(req.Messages) != 1 {
			t.Fatalf("expected one message, got %d", len(req.Messages))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": `{"layout_similarity":0.8,"content_similarity":0.9,"confidence":0.7}`}},
			},
		})
	}))
	defer server.Close()

	client, err := NewVisionClient(Config{APIURL: server.URL, Model: "gpt-vision-test"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	var out struct {
		LayoutSimilarity  float64 `json:"layout_similarity"`
		ContentSimilarity float64 `json:"content_similarity"`
		Confidence        float64 `json:"confidence"`
	}
	schema := map[string]interface{}{"type": "object"}
	err = client.CompleteJSON(context.Background(), "compare", []string{"https://x/a.jpg", "https://x/b.jpg"}, "cover_comparison", schema, &out)
	if err != nil {
		t.Fatalf("complete json: %v", err)
	}
	if out.LayoutSimilarity != 0.8 || out.ContentSimilarity != 0.9 || out.Confidence != 0.7 {
		t.Fatalf("unexpected decoded values: %+v", out)
	}
}

func TestVisionClientMalformedAnswer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": "not json"}},
			},
		})
	}))
	defer server.Close()

	client, err := NewVisionClient(Config{APIURL: server.URL, Model: "gpt-vision-test"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	var out map[string]interface{}
	if err := client.CompleteJSON(context.Background(), "compare", []string{"https://x/a.jpg"}, "s", nil, &out); err == nil {
		t.Fatal("expected decode error on non-JSON answer")
	}
}

func TestVisionClientRequiresImages(t *testing.T) {
	t.Parallel()

	client, err := NewVisionClient(Config{Model: "gpt-vision-test"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	var out map[string]interface{}
	if err := client.CompleteJSON(context.Background(), "p", nil, "s", nil, &out); err == nil {
		t.Fatal("expected error with no images")
	}
}
