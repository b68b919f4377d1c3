package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/lotuscatalog/curator/internal/adminctx"
	"github.com/lotuscatalog/curator/internal/adminlog"
	"github.com/lotuscatalog/curator/pkg/logging"
)

type recordedAction struct {
	Action     string
	AdminEmail string
	Metadata   map[string]interface{}
}

type fakeRecorder struct {
	actions []recordedAction
}

func (f *fakeRecorder) Record(_ context.Context, action, adminEmail string, metadata map[string]interface{}) {
	f.actions = append(f.actions, recordedAction{Action: action, AdminEmail: adminEmail, Metadata: metadata})
}

func echoSchema() *jsonschema.Schema {
	return objectSchema(map[string]*jsonschema.Schema{
		"a":         intProp("first"),
		"b":         stringArrayProp("second"),
		"confirmed": confirmedProp(),
	}, "a")
}

func TestConfirmationGateBlocksExecute(t *testing.T) {
	reg := NewRegistry(nil, logging.NewLogger())
	executed := false
	reg.Register(&Tool{
		Name:     "delete_everything",
		Mutating: true,
		Schema:   echoSchema(),
		Execute: func(context.Context, map[string]interface{}) Result {
			executed = true
			return Success("done", nil)
		},
	})

	result := reg.Invoke(context.Background(), "delete_everything", json.RawMessage(`{"a":1}`), nil)
	if result.Success {
		t.Fatal("expected failure without confirmation")
	}
	if result.Error == nil || result.Error.Code != CodeConfirmationRequired {
		t.Fatalf("expected confirmation_required, got %+v", result.Error)
	}
	if result.Error.Details != "delete_everything" {
		t.Fatalf("details must carry the tool name, got %v", result.Error.Details)
	}
	if executed {
		t.Fatal("execute must not run before confirmation")
	}

	result = reg.Invoke(context.Background(), "delete_everything", json.RawMessage(`{"a":1,"confirmed":true}`), nil)
	if !result.Success || !executed {
		t.Fatalf("expected confirmed call to execute, got %+v", result)
	}
}

func TestConfirmedFalseStillBlocked(t *testing.T) {
	reg := NewRegistry(nil, logging.NewLogger())
	reg.Register(&Tool{
		Name:     "delete_everything",
		Mutating: true,
		Schema:   echoSchema(),
		Execute: func(context.Context, map[string]interface{}) Result {
			t.Fatal("execute must not run")
			return Result{}
		},
	})

	result := reg.Invoke(context.Background(), "delete_everything", json.RawMessage(`{"a":1,"confirmed":false}`), nil)
	if result.Error == nil || result.Error.Code != CodeConfirmationRequired {
		t.Fatalf("expected confirmation_required, got %+v", result.Error)
	}
}

func TestDedupIgnoresArgumentOrder(t *testing.T) {
	reg := NewRegistry(nil, logging.NewLogger())
	calls := 0
	reg.Register(&Tool{
		Name:      "echo",
		Cacheable: true,
		Schema:    echoSchema(),
		Execute: func(context.Context, map[string]interface{}) Result {
			calls++
			return Success("ran", nil)
		},
	})

	cache := NewCallCache()
	first := reg.Invoke(context.Background(), "echo", json.RawMessage(`{"a":1,"b":["x","y"]}`), cache)
	second := reg.Invoke(context.Background(), "echo", json.RawMessage(`{"b":["x","y"],"a":1}`), cache)

	if !first.Success || !second.Success {
		t.Fatalf("both calls must succeed: %+v %+v", first, second)
	}
	if calls != 1 {
		t.Fatalf("expected a single execution, got %d", calls)
	}
	want := "Skipped duplicate echo call (same image/args in this request)."
	if second.Message != want {
		t.Fatalf("unexpected skip message %q", second.Message)
	}

	// Different arguments miss the cache.
	reg.Invoke(context.Background(), "echo", json.RawMessage(`{"a":2}`), cache)
	if calls != 2 {
		t.Fatalf("expected a fresh execution for new args, got %d", calls)
	}
}

func TestDedupScopedToCache(t *testing.T) {
	reg := NewRegistry(nil, logging.NewLogger())
	calls := 0
	reg.Register(&Tool{
		Name:      "echo",
		Cacheable: true,
		Schema:    echoSchema(),
		Execute: func(context.Context, map[string]interface{}) Result {
			calls++
			return Success("ran", nil)
		},
	})

	reg.Invoke(context.Background(), "echo", json.RawMessage(`{"a":1}`), NewCallCache())
	reg.Invoke(context.Background(), "echo", json.RawMessage(`{"a":1}`), NewCallCache())
	if calls != 2 {
		t.Fatalf("caches must not leak across requests, got %d calls", calls)
	}
}

func TestValidationRejectsBeforeExecute(t *testing.T) {
	reg := NewRegistry(nil, logging.NewLogger())
	reg.Register(&Tool{
		Name:   "echo",
		Schema: echoSchema(),
		Execute: func(context.Context, map[string]interface{}) Result {
			t.Fatal("execute must not run on invalid input")
			return Result{}
		},
	})

	cases := []string{
		`{}`,                   // missing required "a"
		`{"a":"one"}`,          // wrong type
		`{"a":1,"extra":true}`, // unknown property
		`{"a":1,`,              // malformed JSON
	}
	for _, raw := range cases {
		result := reg.Invoke(context.Background(), "echo", json.RawMessage(raw), nil)
		if result.Success || result.Error == nil || result.Error.Code != CodeValidationError {
			t.Fatalf("input %s: expected validation_error, got %+v", raw, result)
		}
	}
}

func TestUnknownTool(t *testing.T) {
	reg := NewRegistry(nil, logging.NewLogger())
	result := reg.Invoke(context.Background(), "no_such_tool", nil, nil)
	if result.Success || result.Error == nil || result.Error.Code != CodeUnknownError {
		t.Fatalf("expected unknown_error, got %+v", result)
	}
}

func TestAuditTrail(t *testing.T) {
	recorder := &fakeRecorder{}
	reg := NewRegistry(recorder, logging.NewLogger())
	reg.Register(&Tool{
		Name:   "echo",
		Schema: echoSchema(),
		Execute: func(context.Context, map[string]interface{}) Result {
			return Success("ran", nil)
		},
	})
	reg.Register(&Tool{
		Name:   "boom",
		Schema: echoSchema(),
		Execute: func(context.Context, map[string]interface{}) Result {
			return Failure(CodeDatabaseError, "down", nil)
		},
	})

	ctx := adminctx.WithAdminEmail(context.Background(), "admin@example.com")
	reg.Invoke(ctx, "echo", json.RawMessage(`{"a":1}`), nil)
	reg.Invoke(ctx, "boom", json.RawMessage(`{"a":1}`), nil)

	if len(recorder.actions) != 4 {
		t.Fatalf("expected 4 audit records, got %d", len(recorder.actions))
	}
	wantActions := []string{
		adminlog.ActionFunctionCall, adminlog.ActionFunctionSuccess,
		adminlog.ActionFunctionCall, adminlog.ActionFunctionError,
	}
	for i, want := range wantActions {
		if recorder.actions[i].Action != want {
			t.Fatalf("record %d: expected %s, got %s", i, want, recorder.actions[i].Action)
		}
		if recorder.actions[i].AdminEmail != "admin@example.com" {
			t.Fatalf("record %d: missing admin email", i)
		}
	}
	if recorder.actions[3].Metadata["code"] != CodeDatabaseError {
		t.Fatalf("error record must carry the code, got %+v", recorder.actions[3].Metadata)
	}
}

func TestCanonicalArgs(t *testing.T) {
	var nested map[string]interface{}
	if err := json.Unmarshal([]byte(`{"z":{"b":1,"a":[true,null,"s"]},"a":2}`), &nested); err != nil {
		t.Fatal(err)
	}
	want := `{"a":2,"z":{"a":[true,null,"s"],"b":1}}`
	if got := CanonicalArgs(nested); got != want {
		t.Fatalf("CanonicalArgs = %s, want %s", got, want)
	}
}

func TestDefinitions(t *testing.T) {
	reg := NewRegistry(nil, logging.NewLogger())
	reg.Register(&Tool{
		Name:        "echo",
		Description: "echoes",
		Schema:      echoSchema(),
		Execute: func(context.Context, map[string]interface{}) Result {
			return Success("ran", nil)
		},
	})

	defs := reg.Definitions([]string{"echo", "missing"})
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	if defs[0].Name != "echo" || defs[0].Parameters["type"] != "object" {
		t.Fatalf("unexpected definition %+v", defs[0])
	}
	props, ok := defs[0].Parameters["properties"].(map[string]interface{})
	if !ok || props["a"] == nil {
		t.Fatalf("schema properties missing: %+v", defs[0].Parameters)
	}
}
