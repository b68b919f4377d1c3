package chat

import "time"

// Event types on the normalized wire stream.
const (
	EventAssistantDelta = "assistant_delta"
	EventAssistantDone  = "assistant_done"
	EventHandoff        = "handoff"
	EventToolStart      = "tool_start"
	EventToolResult     = "tool_result"
	EventToolAppend     = "tool_append"
	EventError          = "error"
)

// Event is one normalized stream event. The union is closed: clients only
// ever see the types above, whatever the model runtime emits.
type Event struct {
	Type       string      `json:"type"`
	Content    string      `json:"content,omitempty"`
	RequestID  string      `json:"request_id,omitempty"`
	To         string      `json:"to,omitempty"`
	ID         string      `json:"id,omitempty"`
	Name       string      `json:"name,omitempty"`
	Args       interface{} `json:"args,omitempty"`
	StartedAt  string      `json:"startedAt,omitempty"`
	Success    *bool       `json:"success,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	FinishedAt string      `json:"finishedAt,omitempty"`
	Message    interface{} `json:"message,omitempty"`
}

// ToolMessage is the transcript message carried by tool_append events.
type ToolMessage struct {
	Role       string `json:"role"`
	Name       string `json:"name"`
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

func eventTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func DeltaEvent(content string) Event {
	return Event{Type: EventAssistantDelta, Content: content}
}

func DoneEvent() Event {
	return Event{Type: EventAssistantDone}
}

func HandoffEvent(to string) Event {
	return Event{Type: EventHandoff, To: to}
}

func ToolStartEvent(id, name string, args interface{}) Event {
	return Event{Type: EventToolStart, ID: id, Name: name, Args: args, StartedAt: eventTimestamp()}
}

func ToolResultEvent(id, name string, success bool, result interface{}) Event {
	return Event{Type: EventToolResult, ID: id, Name: name, Success: &success, Result: result, FinishedAt: eventTimestamp()}
}

func ToolAppendEvent(name, callID, content string) Event {
	return Event{Type: EventToolAppend, Message: ToolMessage{
		Role:       "tool",
		Name:       name,
		ToolCallID: callID,
		Content:    content,
	}}
}

func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}
