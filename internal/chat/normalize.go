package chat

import (
	"encoding/json"
	"sort"
	"strings"
)

// textTypeToken marks incremental-text nodes in the runtime's raw events.
// Any node whose type contains it is treated as streamed assistant text.
const textTypeToken = "output_text"

// scanNodeCap bounds the fallback tree scan so a pathological payload
// cannot stall the stream.
const scanNodeCap = 5000

// ToolCallDelta is one fragment of a streamed function call. Arguments
// arrive in pieces and are concatenated by Index.
type ToolCallDelta struct {
	Index int
	ID    string
	Name  string
	Args  string
}

// Extraction is everything pulled out of one raw stream frame.
type Extraction struct {
	Texts     []string
	ToolCalls []ToolCallDelta
	Finished  bool
}

// ExtractEvent normalizes one raw frame from the model runtime. Known
// shapes are tried first; if none yields text, a bounded scan over the
// whole payload tolerates upstream schema drift. Frames that match nothing
// are dropped rather than failing the stream.
func ExtractEvent(raw json.RawMessage) Extraction {
	var root interface{}
	if err := json.Unmarshal(raw, &root); err != nil {
		return Extraction{}
	}

	var ext Extraction
	extractCompletionChunk(root, &ext)
	extractMessageBlocks(root, &ext)
	if len(ext.Texts) == 0 {
		extractSegments(root, &ext)
	}
	if len(ext.Texts) == 0 {
		ext.Texts = scanForText(root)
	}
	return ext
}

// extractCompletionChunk handles the chat-completions delta shape:
// choices[].delta carries content and tool_calls, finish_reason marks the
// end of the turn.
func extractCompletionChunk(root interface{}, ext *Extraction) {
	obj, ok := root.(map[string]interface{})
	if !ok {
		return
	}
	choices, ok := obj["choices"].([]interface{})
	if !ok {
		return
	}
	for _, c := range choices {
		choice, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if reason, ok := choice["finish_reason"].(string); ok && reason != "" {
			ext.Finished = true
		}
		delta, ok := choice["delta"].(map[string]interface{})
		if !ok {
			continue
		}
		if content, ok := delta["content"].(string); ok && content != "" {
			ext.Texts = append(ext.Texts, content)
		}
		calls, ok := delta["tool_calls"].([]interface{})
		if !ok {
			continue
		}
		for _, raw := range calls {
			call, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			d := ToolCallDelta{}
			if idx, ok := call["index"].(float64); ok {
				d.Index = int(idx)
			}
			if id, ok := call["id"].(string); ok {
				d.ID = id
			}
			if fn, ok := call["function"].(map[string]interface{}); ok {
				if name, ok := fn["name"].(string); ok {
					d.Name = name
				}
				if args, ok := fn["arguments"].(string); ok {
					d.Args = args
				}
			}
			ext.ToolCalls = append(ext.ToolCalls, d)
		}
	}
}

// extractMessageBlocks handles the messages-stream block shapes: text and
// tool_use blocks open with content_block_start, grow through
// content_block_delta fragments keyed by index, and the turn ends at
// message_delta's stop_reason or message_stop.
func extractMessageBlocks(root interface{}, ext *Extraction) {
	obj, ok := root.(map[string]interface{})
	if !ok {
		return
	}
	typ, _ := obj["type"].(string)
	index := 0
	if idx, ok := obj["index"].(float64); ok {
		index = int(idx)
	}
	switch typ {
	case "content_block_start":
		block, ok := obj["content_block"].(map[string]interface{})
		if !ok {
			return
		}
		switch block["type"] {
		case "text":
			if text, ok := block["text"].(string); ok && text != "" {
				ext.Texts = append(ext.Texts, text)
			}
		case "tool_use":
			d := ToolCallDelta{Index: index}
			if id, ok := block["id"].(string); ok {
				d.ID = id
			}
			if name, ok := block["name"].(string); ok {
				d.Name = name
			}
			// A streamed call opens with an empty input object and fills in
			// through input_json_delta fragments; only a pre-populated
			// input is taken here.
			if input, ok := block["input"].(map[string]interface{}); ok && len(input) > 0 {
				if raw, err := json.Marshal(input); err == nil {
					d.Args = string(raw)
				}
			}
			ext.ToolCalls = append(ext.ToolCalls, d)
		}
	case "content_block_delta":
		delta, ok := obj["delta"].(map[string]interface{})
		if !ok {
			return
		}
		if text, ok := delta["text"].(string); ok && text != "" {
			ext.Texts = append(ext.Texts, text)
		}
		if partial, ok := delta["partial_json"].(string); ok && partial != "" {
			ext.ToolCalls = append(ext.ToolCalls, ToolCallDelta{Index: index, Args: partial})
		}
	case "message_delta":
		if delta, ok := obj["delta"].(map[string]interface{}); ok {
			if reason, ok := delta["stop_reason"].(string); ok && reason != "" {
				ext.Finished = true
			}
		}
	case "message_stop":
		ext.Finished = true
	}
}

// extractSegments handles typed-segment shapes: a node (or content array
// of nodes) whose type contains the text token, with the text under
// "text", "delta" or "textDelta".
func extractSegments(root interface{}, ext *Extraction) {
	obj, ok := root.(map[string]interface{})
	if !ok {
		return
	}
	if text := segmentText(obj); text != "" {
		ext.Texts = append(ext.Texts, text)
	}
	content, ok := obj["content"].([]interface{})
	if !ok {
		return
	}
	for _, raw := range content {
		if segment, ok := raw.(map[string]interface{}); ok {
			if text := segmentText(segment); text != "" {
				ext.Texts = append(ext.Texts, text)
			}
		}
	}
}

func segmentText(node map[string]interface{}) string {
	typ, ok := node["type"].(string)
	if !ok || !strings.Contains(typ, textTypeToken) {
		return ""
	}
	for _, key := range []string{"text", "delta", "textDelta"} {
		if text, ok := node[key].(string); ok && text != "" {
			return text
		}
	}
	return ""
}

// scanForText is the drift-tolerant fallback: a breadth-first walk over
// the payload, capped at scanNodeCap visited nodes, collecting any node
// that looks like incremental text. Map keys are visited in sorted order
// so output is deterministic.
func scanForText(root interface{}) []string {
	var texts []string
	queue := []interface{}{root}
	visited := 0

	for len(queue) > 0 && visited < scanNodeCap {
		node := queue[0]
		queue = queue[1:]
		visited++

		switch t := node.(type) {
		case map[string]interface{}:
			if text := segmentText(t); text != "" {
				texts = append(texts, text)
			}
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				queue = append(queue, t[k])
			}
		case []interface{}:
			for _, item := range t {
				queue = append(queue, item)
			}
		}
	}
	return texts
}

// mergeToolCallDeltas folds streamed call fragments into complete calls.
// Fragments with a seen index extend that call's arguments; new indexes
// append.
func mergeToolCallDeltas(existing, incoming []ToolCallDelta) []ToolCallDelta {
	for _, inc := range incoming {
		found := false
		for i := range existing {
			if existing[i].Index == inc.Index {
				if inc.ID != "" {
					existing[i].ID = inc.ID
				}
				if inc.Name != "" {
					existing[i].Name = inc.Name
				}
				existing[i].Args += inc.Args
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, inc)
		}
	}
	return existing
}

// UnwrapEnvelope interprets a decoded tool payload. A {success, data}
// envelope is unwrapped to data; a missing success field means success.
func UnwrapEnvelope(v interface{}) (bool, interface{}) {
	success := true
	obj, ok := v.(map[string]interface{})
	if !ok {
		return success, v
	}
	if s, ok := obj["success"].(bool); ok {
		success = s
	}
	if data, ok := obj["data"]; ok && data != nil {
		return success, data
	}
	return success, v
}
