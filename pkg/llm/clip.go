package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ImageEmbeddingClient produces embedding vectors for images by URL. Like
// EmbeddingClient, implementations make a single attempt per call.
type ImageEmbeddingClient interface {
	EmbedImage(ctx context.Context, imageURL string) ([]float32, error)
}

// CLIPProvider talks to an OpenCLIP-compatible embedding service over HTTP.
type CLIPProvider struct {
	client *http.Client
	apiKey string
	apiURL string
	model  string
}

func NewCLIPClient(cfg Config) (ImageEmbeddingClient, error) {
	if cfg.APIURL == "" {
		return nil, errors.New("clip service URL is required")
	}
	return &CLIPProvider{
		client: &http.Client{Timeout: 60 * time.Second},
		apiKey: cfg.APIKey,
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		model:  cfg.Model,
	}, nil
}

type clipRequest struct {
	Model    string `json:"model,omitempty"`
	ImageURL string `json:"image_url"`
}

type clipResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *CLIPProvider) EmbedImage(ctx context.Context, imageURL string) ([]float32, error) {
	if imageURL == "" {
		return nil, errors.New("image URL is required")
	}
	payload, err := json.Marshal(clipRequest{Model: p.model, ImageURL: imageURL})
	if err != nil {
		return nil, fmt.Errorf("clip: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("clip: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clip: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("clip: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var response clipResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("clip: decode response: %w", err)
	}
	if len(response.Embedding) == 0 {
		return nil, errors.New("clip: empty embedding in response")
	}
	return response.Embedding, nil
}
