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

// anthropicMaxTokens is the per-turn output ceiling sent with every
// request; the Messages API rejects requests without one.
const anthropicMaxTokens = 4096

const anthropicVersion = "2023-06-01"

type AnthropicProvider struct {
	client *http.Client
	apiKey string
	apiURL string
	model  string
}

func NewAnthropicProvider(cfg Config) *AnthropicProvider {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.anthropic.com"
	}
	return &AnthropicProvider{
		client: &http.Client{Timeout: 5 * time.Minute},
		apiKey: cfg.APIKey,
		apiURL: apiURL,
		model:  cfg.Model,
	}
}

func (p *AnthropicProvider) Complete(ctx context.Context, messages []Message, tools []Tool) (Stream, error) {
	if p.model == "" {
		return nil, errors.New("anthropic model is required")
	}
	system, converted := anthropicMessagesFrom(messages)
	reqBody := anthropicRequest{
		Model:     p.model,
		MaxTokens: anthropicMaxTokens,
		System:    system,
		Messages:  converted,
		Stream:    true,
	}
	for _, tool := range tools {
		reqBody.Tools = append(reqBody.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Parameters,
		})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Anthropic-Version", anthropicVersion)
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anthropic: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	return newSSEStream(resp), nil
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type      string                `json:"type"`
	Text      string                `json:"text,omitempty"`
	ID        string                `json:"id,omitempty"`
	Name      string                `json:"name,omitempty"`
	Input     json.RawMessage       `json:"input,omitempty"`
	ToolUseID string                `json:"tool_use_id,omitempty"`
	Content   string                `json:"content,omitempty"`
	Source    *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// anthropicMessagesFrom maps the provider-neutral transcript onto the
// Messages API: system messages collapse into the top-level system string,
// tool results become user-role tool_result blocks, and assistant tool
// calls become tool_use blocks.
func anthropicMessagesFrom(messages []Message) (string, []anthropicMessage) {
	var system []string
	converted := make([]anthropicMessage, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if text, ok := msg.Content.(string); ok && text != "" {
				system = append(system, text)
			}
		case "tool":
			converted = append(converted, anthropicMessage{
				Role: "user",
				Content: []anthropicContent{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   stringContent(msg.Content),
				}},
			})
		case "assistant":
			blocks := anthropicBlocksFrom(msg.Content)
			for _, call := range msg.ToolCalls {
				input := json.RawMessage(call.Function.Arguments)
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropicContent{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Function.Name,
					Input: input,
				})
			}
			if len(blocks) == 0 {
				continue
			}
			converted = append(converted, anthropicMessage{Role: "assistant", Content: blocks})
		default:
			blocks := anthropicBlocksFrom(msg.Content)
			if len(blocks) == 0 {
				blocks = []anthropicContent{{Type: "text", Text: ""}}
			}
			converted = append(converted, anthropicMessage{Role: "user", Content: blocks})
		}
	}
	return strings.Join(system, "\n\n"), converted
}

func anthropicBlocksFrom(content interface{}) []anthropicContent {
	switch c := content.(type) {
	case string:
		if c == "" {
			return nil
		}
		return []anthropicContent{{Type: "text", Text: c}}
	case []ContentPart:
		blocks := make([]anthropicContent, 0, len(c))
		for _, part := range c {
			if part.ImageURL != nil {
				blocks = append(blocks, anthropicContent{
					Type:   "image",
					Source: &anthropicImageSource{Type: "url", URL: part.ImageURL.URL},
				})
				continue
			}
			if part.Text != "" {
				blocks = append(blocks, anthropicContent{Type: "text", Text: part.Text})
			}
		}
		return blocks
	default:
		return nil
	}
}

func stringContent(content interface{}) string {
	if text, ok := content.(string); ok {
		return text
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	return string(raw)
}
