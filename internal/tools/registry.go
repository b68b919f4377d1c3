// Package tools implements the admin-facing tool registry: strict input
// schemas, a confirmation gate for mutating tools, and per-request
// deduplication for repeatable ones.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/lotuscatalog/curator/internal/adminctx"
	"github.com/lotuscatalog/curator/internal/adminlog"
	"github.com/lotuscatalog/curator/pkg/llm"
	"github.com/lotuscatalog/curator/pkg/logging"
)

// Error codes carried in tool result envelopes.
const (
	CodeValidationError      = "validation_error"
	CodeConfirmationRequired = "confirmation_required"
	CodeNotFound             = "not_found"
	CodeDatabaseError        = "database_error"
	CodeUnknownError         = "unknown_error"
)

// ErrorInfo describes a failed tool call.
type ErrorInfo struct {
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// Result is the envelope every tool returns. Tool failures are values, not
// Go errors: the model reads them and reacts conversationally.
type Result struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// Success builds a successful result envelope.
func Success(message string, data interface{}) Result {
	return Result{Success: true, Message: message, Data: data}
}

// Failure builds a failed result envelope.
func Failure(code, message string, details interface{}) Result {
	return Result{Success: false, Message: message, Error: &ErrorInfo{Code: code, Details: details}}
}

// Tool is one registered operation. Mutating tools pass the confirmation
// gate before executing; cacheable tools are deduplicated per request.
type Tool struct {
	Name        string
	Description string
	Mutating    bool
	Cacheable   bool
	Schema      *jsonschema.Schema
	Execute     func(ctx context.Context, args map[string]interface{}) Result

	resolved *jsonschema.Resolved
}

// Registry holds the tool set. It is populated once at startup and
// read-only afterwards.
type Registry struct {
	tools  map[string]*Tool
	names  []string
	audit  adminlog.Recorder
	logger logging.Logger
}

func NewRegistry(audit adminlog.Recorder, logger logging.Logger) *Registry {
	return &Registry{
		tools:  map[string]*Tool{},
		audit:  audit,
		logger: logger,
	}
}

// Register adds a tool. Schemas are static; a schema that fails to resolve
// is a programming error.
func (r *Registry) Register(t *Tool) {
	resolved, err := t.Schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("tools: schema for %s does not resolve: %v", t.Name, err))
	}
	if _, exists := r.tools[t.Name]; exists {
		panic(fmt.Sprintf("tools: %s registered twice", t.Name))
	}
	t.resolved = resolved
	r.tools[t.Name] = t
	r.names = append(r.names, t.Name)
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether name is a registered domain tool.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names lists registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Definitions converts the named tools into model-facing declarations.
// Unknown names are skipped.
func (r *Registry) Definitions(names []string) []llm.Tool {
	defs := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, llm.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaMap(t.Schema),
		})
	}
	return defs
}

func schemaMap(s *jsonschema.Schema) map[string]interface{} {
	raw, err := json.Marshal(s)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	return m
}

// CallCache deduplicates cacheable tool calls within one request. It is
// created per request and discarded with it.
type CallCache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewCallCache() *CallCache {
	return &CallCache{seen: map[string]bool{}}
}

// visit records the key and reports whether this is its first occurrence.
func (c *CallCache) visit(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[key] {
		return false
	}
	c.seen[key] = true
	return true
}

// CanonicalArgs serializes a decoded JSON value with object keys sorted
// recursively, so argument order never changes the cache key.
func CanonicalArgs(v interface{}) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v interface{}) {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			key, _ := json.Marshal(k)
			b.Write(key)
			b.WriteByte(':')
			writeCanonical(b, t[k])
		}
		b.WriteByte('}')
	case []interface{}:
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			b.WriteString(fmt.Sprintf("%q", fmt.Sprint(t)))
			return
		}
		b.Write(raw)
	}
}

// Invoke runs the full pipeline for one tool call: schema validation, the
// confirmation gate, deduplication, then execution. Every outcome is a
// Result envelope.
func (r *Registry) Invoke(ctx context.Context, name string, rawArgs json.RawMessage, cache *CallCache) Result {
	tool, ok := r.tools[name]
	if !ok {
		return Failure(CodeUnknownError, fmt.Sprintf("Unknown tool %q.", name), name)
	}

	args := map[string]interface{}{}
	if len(rawArgs) > 0 && string(rawArgs) != "null" {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return Failure(CodeValidationError, "Tool arguments are not valid JSON.", err.Error())
		}
	}

	if err := tool.resolved.Validate(args); err != nil {
		return Failure(CodeValidationError, fmt.Sprintf("Invalid arguments for %s.", name), err.Error())
	}

	if tool.Mutating && args["confirmed"] != true {
		return Failure(CodeConfirmationRequired,
			fmt.Sprintf("%s changes stored data. Ask the user to confirm, then retry with confirmed=true.", name),
			name)
	}

	if tool.Cacheable && cache != nil {
		key := name + ":" + CanonicalArgs(args)
		if !cache.visit(key) {
			return Success(fmt.Sprintf("Skipped duplicate %s call (same image/args in this request).", name), nil)
		}
	}

	adminEmail := adminctx.GetAdminEmail(ctx)
	if r.audit != nil {
		r.audit.Record(ctx, adminlog.ActionFunctionCall, adminEmail, map[string]interface{}{"tool": name})
	}

	result := tool.Execute(ctx, args)

	if r.audit != nil {
		action := adminlog.ActionFunctionSuccess
		meta := map[string]interface{}{"tool": name}
		if !result.Success {
			action = adminlog.ActionFunctionError
			if result.Error != nil {
				meta["code"] = result.Error.Code
			}
		}
		r.audit.Record(ctx, action, adminEmail, meta)
	}
	return result
}
