package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lotuscatalog/curator/internal/adminctx"
	"github.com/lotuscatalog/curator/pkg/llm"
	"github.com/lotuscatalog/curator/pkg/logging"
)

const (
	maxIncomingMessages = 60
	maxMessageRunes     = 10000
	maxTurnsCeiling     = 12
)

// ChatHandler exposes the orchestrator over SSE.
type ChatHandler struct {
	Orchestrator *Orchestrator
	Logger       logging.Logger
}

func NewChatHandler(orchestrator *Orchestrator, logger logging.Logger) *ChatHandler {
	return &ChatHandler{Orchestrator: orchestrator, Logger: logger}
}

// RegisterRoutes mounts the chat endpoint.
func RegisterRoutes(router gin.IRoutes, handler *ChatHandler) {
	router.POST("/chat", handler.HandleChat)
}

// ChatRequest is the inbound body. Message content is either a plain
// string or an array of typed segments.
type ChatRequest struct {
	Messages []IncomingMessage `json:"messages"`
	MaxTurns int               `json:"max_turns,omitempty"`
	Locale   string            `json:"locale,omitempty"`
}

type IncomingMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent accepts both content encodings the clients send.
type MessageContent struct {
	Text  string
	Parts []llm.ContentPart
}

func (m *MessageContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		m.Text = text
		return nil
	}
	var parts []llm.ContentPart
	if err := json.Unmarshal(data, &parts); err == nil {
		m.Parts = parts
		return nil
	}
	return errors.New("content must be a string or a segment array")
}

func (m MessageContent) hasImage() bool {
	for _, part := range m.Parts {
		if part.Type == "image_url" || part.ImageURL != nil {
			return true
		}
	}
	return false
}

func (m MessageContent) runeCount() int {
	n := len([]rune(m.Text))
	for _, part := range m.Parts {
		n += len([]rune(part.Text))
	}
	return n
}

func (h *ChatHandler) HandleChat(c *gin.Context) {
	adminEmail := strings.TrimSpace(c.GetHeader("X-Admin-Email"))
	if adminEmail == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "admin identity required"})
		return
	}
	c.Set("admin_email", adminEmail)

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	maxTurns := req.MaxTurns
	if maxTurns > maxTurnsCeiling {
		maxTurns = maxTurnsCeiling
	}

	requestID := c.GetString("request_id")
	ctx := adminctx.WithAdminEmail(c.Request.Context(), adminEmail)
	ctx = adminctx.WithRequestID(ctx, requestID)
	if req.Locale != "" {
		ctx = adminctx.WithLocale(ctx, req.Locale)
	}

	streamer, err := newSSEStreamer(c.Writer, requestID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unavailable"})
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.Orchestrator.Run(ctx, messages, maxTurns, streamer)
	_ = streamer.sendDoneMarker()
}

// convertMessages validates roles and the image placement invariant, then
// maps the request into provider messages.
func convertMessages(incoming []IncomingMessage) ([]llm.Message, error) {
	if len(incoming) == 0 {
		return nil, errors.New("messages are required")
	}
	if len(incoming) > maxIncomingMessages {
		return nil, errors.New("too many messages")
	}

	messages := make([]llm.Message, 0, len(incoming))
	for _, msg := range incoming {
		switch msg.Role {
		case "user", "assistant", "system":
		default:
			return nil, fmt.Errorf("unsupported role %q", msg.Role)
		}
		if msg.Role != "user" && msg.Content.hasImage() {
			return nil, errors.New("only user messages may carry images")
		}
		if msg.Content.runeCount() > maxMessageRunes {
			return nil, errors.New("message too long")
		}

		out := llm.Message{Role: msg.Role}
		if len(msg.Content.Parts) > 0 {
			out.Content = msg.Content.Parts
		} else {
			out.Content = msg.Content.Text
		}
		messages = append(messages, out)
	}
	return messages, nil
}

// sseStreamer frames events for the SSE transport. It implements
// EventSink; every event is one data frame, flushed immediately.
type sseStreamer struct {
	writer    http.ResponseWriter
	flusher   http.Flusher
	requestID string
}

func newSSEStreamer(writer http.ResponseWriter, requestID string) (*sseStreamer, error) {
	flusher, ok := writer.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}
	return &sseStreamer{writer: writer, flusher: flusher, requestID: requestID}, nil
}

func (s *sseStreamer) Send(ev Event) error {
	if ev.Type == EventAssistantDelta {
		ev.RequestID = s.requestID
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.writer, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseStreamer) sendDoneMarker() error {
	if _, err := fmt.Fprintf(s.writer, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
