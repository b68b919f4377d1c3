package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/lotuscatalog/curator/internal/agents"
	"github.com/lotuscatalog/curator/pkg/llm"
	"github.com/lotuscatalog/curator/pkg/logging"
)

func newTestRouter(t *testing.T, provider *scriptedProvider) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	orchestrator := NewOrchestrator(provider, testRegistry(t, nil), agents.NewRegistry(), logging.NewLogger())
	RegisterRoutes(router, NewChatHandler(orchestrator, logging.NewLogger()))
	return router
}

func postChat(t *testing.T, router *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func sseEvents(t *testing.T, body string) []Event {
	t.Helper()
	var events []Event
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("bad SSE frame %q: %v", payload, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestHandleChatStreams(t *testing.T) {
	provider := &scriptedProvider{turns: [][]json.RawMessage{
		{deltaFrame("你好")},
	}}
	router := newTestRouter(t, provider)

	w := postChat(t, router, `{"messages":[{"role":"user","content":"你好"}]}`,
		map[string]string{"X-Admin-Email": "admin@example.com"})

	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.HasSuffix(strings.TrimSpace(w.Body.String()), "data: [DONE]") {
		t.Fatalf("stream must end with the DONE marker: %q", w.Body.String())
	}

	events := sseEvents(t, w.Body.String())
	if len(events) != 2 || events[0].Type != EventAssistantDelta || events[1].Type != EventAssistantDone {
		t.Fatalf("unexpected events %+v", events)
	}
	if events[0].Content != "你好" {
		t.Fatalf("unexpected delta content %q", events[0].Content)
	}
}

func TestHandleChatSegmentContent(t *testing.T) {
	provider := &scriptedProvider{turns: [][]json.RawMessage{
		{toolCallFrame(0, "call_1", agents.HandoffToolName(agents.VisionAgent), "{}")},
		{toolCallFrame(0, "call_2", "analyze_book_cover", `{"image_url":"https://cdn/c.jpg"}`)},
		{deltaFrame("识别完成。")},
	}}
	router := newTestRouter(t, provider)

	body := `{"messages":[{"role":"user","content":[{"type":"text","text":"这本书"},{"type":"image_url","image_url":{"url":"https://cdn/c.jpg"}}]}]}`
	w := postChat(t, router, body, map[string]string{"X-Admin-Email": "admin@example.com"})

	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	events := sseEvents(t, w.Body.String())

	var sawHandoff, sawStart, sawResult bool
	for _, ev := range events {
		switch ev.Type {
		case EventHandoff:
			sawHandoff = true
			if ev.To != agents.VisionAgent {
				t.Fatalf("unexpected handoff target %q", ev.To)
			}
		case EventToolStart:
			sawStart = true
		case EventToolResult:
			sawResult = true
		}
	}
	if !sawHandoff || !sawStart || !sawResult {
		t.Fatalf("missing events in %+v", events)
	}
	if events[len(events)-1].Type != EventAssistantDone {
		t.Fatalf("assistant_done must be last: %+v", events)
	}
}

func TestHandleChatRequiresAdminEmail(t *testing.T) {
	router := newTestRouter(t, &scriptedProvider{})

	w := postChat(t, router, `{"messages":[{"role":"user","content":"hi"}]}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestHandleChatRejectsBadPayloads(t *testing.T) {
	router := newTestRouter(t, &scriptedProvider{})
	headers := map[string]string{"X-Admin-Email": "admin@example.com"}

	cases := []string{
		`{"messages":[]}`,
		`{"messages":[{"role":"bot","content":"hi"}]}`,
		`{"messages":[{"role":"assistant","content":[{"type":"image_url","image_url":{"url":"https://cdn/c.jpg"}}]}]}`,
		`{"messages":[{"role":"user","content":{"bad":"shape"}}]}`,
	}
	for _, body := range cases {
		w := postChat(t, router, body, headers)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestConvertMessages(t *testing.T) {
	msgs, err := convertMessages([]IncomingMessage{
		{Role: "system", Content: MessageContent{Text: "context"}},
		{Role: "user", Content: MessageContent{Parts: imageMessage().Content.([]llm.ContentPart)}},
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if _, ok := msgs[0].Content.(string); !ok {
		t.Fatalf("plain text must stay a string: %+v", msgs[0])
	}
	if _, ok := msgs[1].Content.([]llm.ContentPart); !ok {
		t.Fatalf("segments must stay typed parts: %+v", msgs[1])
	}
	if !hasImageAttachment(msgs) {
		t.Fatal("image segment must be detectable after conversion")
	}
}
