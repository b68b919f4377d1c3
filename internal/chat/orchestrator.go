package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/lotuscatalog/curator/internal/adminctx"
	"github.com/lotuscatalog/curator/internal/agents"
	"github.com/lotuscatalog/curator/internal/tools"
	"github.com/lotuscatalog/curator/pkg/llm"
	"github.com/lotuscatalog/curator/pkg/logging"
)

const defaultMaxTurns = 8

// toolFirstNote is appended on the fallback pass when the first pass
// skipped image analysis entirely.
const toolFirstNote = "[System note: The user attached an image. You must call the appropriate analysis tool " +
	"(analyze_book_cover or analyze_item_photo) before writing any reply. Run the required tools first; " +
	"answer only after their results return.]"

// EventSink receives normalized events in emission order.
type EventSink interface {
	Send(Event) error
}

// Orchestrator drives one bounded-turn conversation: router handoff,
// specialist turn loop, tool execution through the registry, and the
// one-shot image fallback pass.
type Orchestrator struct {
	provider llm.Provider
	registry *tools.Registry
	agents   *agents.Registry
	logger   logging.Logger
	maxTurns int
}

func NewOrchestrator(provider llm.Provider, registry *tools.Registry, agentGraph *agents.Registry, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		registry: registry,
		agents:   agentGraph,
		logger:   logger,
		maxTurns: defaultMaxTurns,
	}
}

// SetMaxTurns overrides the per-pass turn ceiling.
func (o *Orchestrator) SetMaxTurns(n int) {
	if n > 0 {
		o.maxTurns = n
	}
}

type passOutcome struct {
	ranDomainTool bool
	streamedText  bool
}

// Run executes at most two passes and always terminates the stream with
// exactly one assistant_done. Model/transport failures become a single
// error event; tool failures stay inside result envelopes.
func (o *Orchestrator) Run(ctx context.Context, messages []llm.Message, maxTurns int, out EventSink) {
	if maxTurns <= 0 {
		maxTurns = o.maxTurns
	}
	runsActive.Inc()
	defer runsActive.Dec()

	cache := tools.NewCallCache()

	outcome, err := o.runPass(ctx, messages, maxTurns, cache, out, "")
	if err != nil {
		o.logger.WithError(err).WithField("request_id", adminctx.GetRequestID(ctx)).Warn("Chat pass failed")
		o.send(out, ErrorEvent("An error occurred while processing your request."))
		o.send(out, DoneEvent())
		return
	}

	if hasImageAttachment(messages) && !outcome.ranDomainTool {
		fallbackPassesTotal.Inc()
		o.logger.Info("Image present but no analysis tools ran; retrying with tool-first instruction")
		retry := append(append([]llm.Message{}, messages...), llm.Message{Role: "user", Content: toolFirstNote})
		if _, err := o.runPass(ctx, retry, maxTurns, cache, out, toolFirstNote); err != nil {
			o.logger.WithError(err).WithField("request_id", adminctx.GetRequestID(ctx)).Warn("Fallback chat pass failed")
			o.send(out, ErrorEvent("An error occurred while processing your request."))
		}
	}

	o.send(out, DoneEvent())
}

// runPass runs one full turn loop starting at the router. It never emits
// assistant_done; Run owns stream termination.
func (o *Orchestrator) runPass(ctx context.Context, messages []llm.Message, maxTurns int, cache *tools.CallCache, out EventSink, extraNote string) (passOutcome, error) {
	var outcome passOutcome

	current := o.agents.Router()
	lastHandoffTo := ""
	transcript := append([]llm.Message{}, messages...)

	for turn := 0; turn < maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		llmStart := time.Now()
		stream, err := o.provider.Complete(ctx, o.promptFor(ctx, current, transcript), o.toolDefs(current))
		if err != nil {
			llmCallsTotal.WithLabelValues("error").Inc()
			return outcome, err
		}

		var pending []ToolCallDelta
		var turnText []string
		for {
			frame, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				_ = stream.Close()
				llmCallsTotal.WithLabelValues("error").Inc()
				return outcome, err
			}
			ext := ExtractEvent(frame.Payload)
			for _, text := range ext.Texts {
				turnText = append(turnText, text)
				outcome.streamedText = true
				o.send(out, DeltaEvent(text))
			}
			if len(ext.ToolCalls) > 0 {
				pending = mergeToolCallDeltas(pending, ext.ToolCalls)
			}
		}
		_ = stream.Close()
		llmCallsTotal.WithLabelValues("success").Inc()
		llmDuration.Observe(time.Since(llmStart).Seconds())

		if len(pending) == 0 {
			return outcome, nil
		}

		// The next round must see the tool_use → tool_result pairing the
		// runtime expects.
		transcript = append(transcript, assistantMessage(turnText, pending))

		for _, call := range pending {
			callID := call.ID
			if callID == "" {
				callID = uuid.NewString()
			}

			if target := agents.HandoffTarget(call.Name); target != "" {
				transcript = append(transcript, o.handleHandoff(&current, &lastHandoffTo, target, callID, call.Name, out))
				continue
			}

			if !o.registry.Has(call.Name) {
				// Internal plumbing never reaches the client stream.
				o.logger.WithField("tool", call.Name).Debug("Dropping unknown tool call")
				transcript = append(transcript, llm.Message{
					Role:       "tool",
					Name:       call.Name,
					ToolCallID: callID,
					Content:    fmt.Sprintf("Unknown tool %s.", call.Name),
				})
				continue
			}

			transcript = append(transcript, o.executeTool(ctx, call, callID, cache, out, &outcome))
		}
	}
	return outcome, nil
}

// executeTool runs one domain tool call and emits its start/result/append
// events. The returned message feeds the result back to the model.
func (o *Orchestrator) executeTool(ctx context.Context, call ToolCallDelta, callID string, cache *tools.CallCache, out EventSink, outcome *passOutcome) llm.Message {
	outcome.ranDomainTool = true

	o.send(out, ToolStartEvent(callID, call.Name, decodeArgs(call.Args)))

	result := o.registry.Invoke(ctx, call.Name, json.RawMessage(call.Args), cache)

	status := "success"
	if !result.Success {
		status = "error"
	}
	toolCallsTotal.WithLabelValues(call.Name, status).Inc()

	success, payload := UnwrapEnvelope(decodeResult(result))
	o.send(out, ToolResultEvent(callID, call.Name, success, payload))

	content := resultContent(result)
	o.send(out, ToolAppendEvent(call.Name, callID, content))

	return llm.Message{Role: "tool", Name: call.Name, ToolCallID: callID, Content: content}
}

// handleHandoff validates and applies a control transfer. Consecutive
// identical handoffs collapse to a single event.
func (o *Orchestrator) handleHandoff(current **agents.Agent, lastHandoffTo *string, target, callID, toolName string, out EventSink) llm.Message {
	agent, known := o.agents.Get(target)
	if !known || !o.agents.CanHandoff(*current, target) {
		o.logger.WithFields(logging.Fields{"from": (*current).Name, "target": target}).Warn("Rejected undeclared handoff")
		return llm.Message{
			Role:       "tool",
			Name:       toolName,
			ToolCallID: callID,
			Content:    fmt.Sprintf("Cannot transfer to %s from here.", target),
		}
	}

	if target != *lastHandoffTo {
		handoffsTotal.WithLabelValues(target).Inc()
		o.send(out, HandoffEvent(target))
	}
	*lastHandoffTo = target
	*current = agent

	return llm.Message{
		Role:       "tool",
		Name:       toolName,
		ToolCallID: callID,
		Content:    fmt.Sprintf("Transferred to %s.", target),
	}
}

// promptFor places the active agent's instructions as the leading system
// message, ahead of any caller-provided system content. The request's
// locale, when present, is appended so every agent answers in the admin's
// language.
func (o *Orchestrator) promptFor(ctx context.Context, agent *agents.Agent, transcript []llm.Message) []llm.Message {
	instructions := agent.Instructions
	if locale := adminctx.GetLocale(ctx); locale != "" {
		instructions += fmt.Sprintf("\n\nThe admin's preferred language is %s. Reply in that language.", locale)
	}
	prompt := make([]llm.Message, 0, len(transcript)+1)
	prompt = append(prompt, llm.Message{Role: "system", Content: instructions})
	prompt = append(prompt, transcript...)
	return prompt
}

func (o *Orchestrator) toolDefs(agent *agents.Agent) []llm.Tool {
	defs := o.registry.Definitions(agent.Tools)
	for _, target := range agent.Handoffs {
		defs = append(defs, llm.Tool{
			Name:        agents.HandoffToolName(target),
			Description: fmt.Sprintf("Transfer the conversation to the %s agent.", target),
			Parameters:  map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		})
	}
	return defs
}

func (o *Orchestrator) send(out EventSink, ev Event) {
	eventsTotal.WithLabelValues(ev.Type).Inc()
	if err := out.Send(ev); err != nil {
		o.logger.WithError(err).WithField("event", ev.Type).Debug("Event sink write failed")
	}
}

func assistantMessage(turnText []string, pending []ToolCallDelta) llm.Message {
	content := ""
	for _, t := range turnText {
		content += t
	}
	refs := make([]llm.ToolCallRef, 0, len(pending))
	for _, call := range pending {
		refs = append(refs, llm.ToolCallRef{
			ID:   call.ID,
			Type: "function",
			Function: llm.FunctionCall{
				Name:      call.Name,
				Arguments: call.Args,
			},
		})
	}
	return llm.Message{Role: "assistant", Content: content, ToolCalls: refs}
}

func decodeArgs(raw string) interface{} {
	if raw == "" {
		return map[string]interface{}{}
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func decodeResult(result tools.Result) interface{} {
	raw, err := json.Marshal(result)
	if err != nil {
		return result
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return result
	}
	return v
}

func resultContent(result tools.Result) string {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":{"code":"unknown_error","details":%q}}`, err.Error())
	}
	return string(raw)
}

// hasImageAttachment reports whether any user message carries an image
// segment.
func hasImageAttachment(messages []llm.Message) bool {
	for _, msg := range messages {
		if msg.Role != "user" {
			continue
		}
		parts, ok := msg.Content.([]llm.ContentPart)
		if !ok {
			continue
		}
		for _, part := range parts {
			if part.Type == "image_url" || part.ImageURL != nil {
				return true
			}
		}
	}
	return false
}
