package agents

import "testing"

func TestDefaultGraph(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Validate(); err != nil {
		t.Fatalf("graph invalid: %v", err)
	}

	router := reg.Router()
	if router == nil || router.Name != RouterAgent {
		t.Fatalf("unexpected router %+v", router)
	}
	if len(router.Tools) != 0 {
		t.Fatalf("router must carry no domain tools, got %v", router.Tools)
	}
	if len(router.Handoffs) != 3 {
		t.Fatalf("expected 3 specialists, got %v", router.Handoffs)
	}
}

func TestHandoffEdges(t *testing.T) {
	reg := NewRegistry()
	router := reg.Router()

	for _, target := range []string{VisionAgent, InventoryAgent, OrdersAgent} {
		if !reg.CanHandoff(router, target) {
			t.Fatalf("router must reach %s", target)
		}
	}

	vision, _ := reg.Get(VisionAgent)
	if reg.CanHandoff(vision, InventoryAgent) {
		t.Fatal("specialists must not hand off to peers")
	}
	if reg.CanHandoff(vision, VisionAgent) {
		t.Fatal("agents must not hand off to themselves")
	}
}

func TestHandoffToolNames(t *testing.T) {
	if got := HandoffToolName(VisionAgent); got != "transfer_to_Vision" {
		t.Fatalf("unexpected tool name %q", got)
	}
	if got := HandoffTarget("transfer_to_Orders"); got != "Orders" {
		t.Fatalf("unexpected target %q", got)
	}
	if got := HandoffTarget("create_book"); got != "" {
		t.Fatalf("domain tool is not a handoff, got %q", got)
	}
	if got := HandoffTarget("transfer_to_"); got != "" {
		t.Fatalf("empty target must not parse, got %q", got)
	}
}
