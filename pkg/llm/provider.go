package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// Provider streams chat completions for a message transcript and tool set.
type Provider interface {
	Complete(ctx context.Context, messages []Message, tools []Tool) (Stream, error)
}

// Stream yields raw model events one frame at a time. Callers own the frame
// shape: providers differ in how they spell text deltas and tool calls, so
// the payload is handed up undecoded.
type Stream interface {
	Recv() (RawEvent, error)
	Close() error
}

// RawEvent is a single decoded-from-SSE but otherwise untouched model event.
type RawEvent struct {
	Payload json.RawMessage
}

// Message is one entry in a chat transcript. Content is either a plain
// string or a []ContentPart for multi-modal input.
type Message struct {
	Role       string        `json:"role"`
	Content    interface{}   `json:"content"`
	Name       string        `json:"name,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCallRef `json:"tool_calls,omitempty"`
}

// ContentPart is a typed segment of a multi-modal message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL wraps an image reference inside a content part.
type ImageURL struct {
	URL string `json:"url"`
}

// Tool describes a callable function advertised to the model.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolCallRef records a completed tool call on an assistant transcript entry.
type ToolCallRef struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and raw JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type sseStream struct {
	resp   *http.Response
	reader *bufio.Reader
}

func newSSEStream(resp *http.Response) Stream {
	return &sseStream{
		resp:   resp,
		reader: bufio.NewReader(resp.Body),
	}
}

func (s *sseStream) Close() error {
	return s.resp.Body.Close()
}

func (s *sseStream) Recv() (RawEvent, error) {
	for {
		data, err := s.readEvent()
		if err != nil {
			return RawEvent{}, err
		}
		payload := strings.TrimSpace(string(data))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			return RawEvent{}, io.EOF
		}
		return RawEvent{Payload: json.RawMessage(data)}, nil
	}
}

func (s *sseStream) readEvent() ([]byte, error) {
	var dataLines []string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(dataLines) > 0 {
				return []byte(strings.Join(dataLines, "\n")), nil
			}
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		if errors.Is(err, io.EOF) {
			if len(dataLines) > 0 {
				return []byte(strings.Join(dataLines, "\n")), nil
			}
			return nil, io.EOF
		}
	}
}
