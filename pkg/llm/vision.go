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

// VisionClient runs a single non-streaming completion over one or more
// images and decodes the model's JSON answer into out. The response is
// constrained with a JSON schema so the decode does not depend on prompt
// discipline alone.
type VisionClient interface {
	CompleteJSON(ctx context.Context, prompt string, imageURLs []string, schemaName string, schema map[string]interface{}, out interface{}) error
}

type VisionProvider struct {
	client *http.Client
	apiKey string
	apiURL string
	model  string
}

func NewVisionClient(cfg Config) (VisionClient, error) {
	if cfg.Model == "" {
		return nil, errors.New("vision model is required")
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1"
	}
	return &VisionProvider{
		client: &http.Client{Timeout: 120 * time.Second},
		apiKey: cfg.APIKey,
		apiURL: apiURL,
		model:  cfg.Model,
	}, nil
}

type visionRequest struct {
	Model          string                `json:"model"`
	Messages       []Message             `json:"messages"`
	ResponseFormat *visionResponseFormat `json:"response_format,omitempty"`
}

type visionResponseFormat struct {
	Type       string           `json:"type"`
	JSONSchema visionJSONSchema `json:"json_schema"`
}

type visionJSONSchema struct {
	Name   string                 `json:"name"`
	Strict bool                   `json:"strict"`
	Schema map[string]interface{} `json:"schema"`
}

type visionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *VisionProvider) CompleteJSON(ctx context.Context, prompt string, imageURLs []string, schemaName string, schema map[string]interface{}, out interface{}) error {
	if len(imageURLs) == 0 {
		return errors.New("vision: at least one image URL is required")
	}

	parts := make([]ContentPart, 0, len(imageURLs)+1)
	parts = append(parts, ContentPart{Type: "text", Text: prompt})
	for _, url := range imageURLs {
		parts = append(parts, ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}})
	}

	reqBody := visionRequest{
		Model:    p.model,
		Messages: []Message{{Role: "user", Content: parts}},
	}
	if schema != nil {
		reqBody.ResponseFormat = &visionResponseFormat{
			Type: "json_schema",
			JSONSchema: visionJSONSchema{
				Name:   schemaName,
				Strict: true,
				Schema: schema,
			},
		}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("vision: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("vision: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("vision: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vision: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var response visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("vision: decode response: %w", err)
	}
	if len(response.Choices) == 0 {
		return errors.New("vision: no choices in response")
	}
	content := response.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("vision: decode answer %q: %w", content, err)
	}
	return nil
}
