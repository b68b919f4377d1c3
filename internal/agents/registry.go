// Package agents defines the agent graph: one router that only hands off,
// and the specialists that carry the domain tools.
package agents

import "fmt"

// HandoffPrefix marks the pseudo-tools the model calls to transfer control.
const HandoffPrefix = "transfer_to_"

// Agent is one node in the handoff graph. The router carries no tools;
// specialists carry tools and no further handoffs.
type Agent struct {
	Name         string
	Instructions string
	Tools        []string
	Handoffs     []string
}

// Canonical agent names.
const (
	RouterAgent    = "Router"
	VisionAgent    = "Vision"
	InventoryAgent = "Inventory"
	OrdersAgent    = "Orders"
)

// Registry holds the agent graph, built once at startup.
type Registry struct {
	agents map[string]*Agent
	router string
}

// NewRegistry builds the default graph for the catalog assistant.
func NewRegistry() *Registry {
	r := &Registry{agents: map[string]*Agent{}, router: RouterAgent}

	r.add(&Agent{
		Name: RouterAgent,
		Instructions: "You are the routing agent for a Buddhist book and dharma item catalog. " +
			"Route silently and immediately: pick the right specialist and transfer without explaining the routing. " +
			"Photos of books or items go to Vision. Catalog questions, stock changes and duplicate checks go to Inventory. " +
			"Donation order questions go to Orders. Never answer domain questions yourself.",
		Handoffs: []string{VisionAgent, InventoryAgent, OrdersAgent},
	})
	r.add(&Agent{
		Name: VisionAgent,
		Instructions: "You catalog donated Buddhist books, dharma items and statues from photos. " +
			"Analyze every uploaded photo with analyze_book_cover or analyze_item_photo before responding. " +
			"Then run check_duplicates with the extracted fields. " +
			"Create or update entries only after the user explicitly confirms; pass confirmed=true only then. " +
			"Reply in the language the user writes in.",
		Tools: []string{"analyze_book_cover", "analyze_item_photo", "check_duplicates", "create_book", "update_book", "search_books"},
	})
	r.add(&Agent{
		Name: InventoryAgent,
		Instructions: "You manage the catalog of Buddhist books, dharma items and statues. " +
			"Use search_books to look things up and check_duplicates before creating entries. " +
			"Mutations need explicit user confirmation; pass confirmed=true only after the user agrees. " +
			"Reply in the language the user writes in.",
		Tools: []string{"search_books", "check_duplicates", "create_book", "update_book", "adjust_book_quantity"},
	})
	r.add(&Agent{
		Name: OrdersAgent,
		Instructions: "You manage donation orders. Use get_order and search_orders to answer questions. " +
			"Changing an order needs explicit user confirmation; pass confirmed=true only after the user agrees. " +
			"Reply in the language the user writes in.",
		Tools: []string{"get_order", "search_orders", "update_order"},
	})
	return r
}

func (r *Registry) add(a *Agent) {
	r.agents[a.Name] = a
}

// Router returns the entry agent of every run.
func (r *Registry) Router() *Agent {
	return r.agents[r.router]
}

// Get returns an agent by name.
func (r *Registry) Get(name string) (*Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// CanHandoff reports whether from may transfer control to target. Only
// declared edges exist; a specialist cannot hand off to a peer or itself.
func (r *Registry) CanHandoff(from *Agent, target string) bool {
	for _, h := range from.Handoffs {
		if h == target {
			return true
		}
	}
	return false
}

// HandoffTarget maps a pseudo-tool name to its agent name, or "" when the
// name is not a handoff.
func HandoffTarget(toolName string) string {
	if len(toolName) > len(HandoffPrefix) && toolName[:len(HandoffPrefix)] == HandoffPrefix {
		return toolName[len(HandoffPrefix):]
	}
	return ""
}

// HandoffToolName builds the pseudo-tool name for an agent.
func HandoffToolName(agent string) string {
	return HandoffPrefix + agent
}

// Validate checks the graph: every handoff edge points at a known agent.
func (r *Registry) Validate() error {
	for _, a := range r.agents {
		for _, h := range a.Handoffs {
			if _, ok := r.agents[h]; !ok {
				return fmt.Errorf("agent %s declares handoff to unknown agent %s", a.Name, h)
			}
		}
	}
	if _, ok := r.agents[r.router]; !ok {
		return fmt.Errorf("router agent %s is not registered", r.router)
	}
	return nil
}
