package tool

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// NamePattern is the identifier law every tool name must satisfy.
var NamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// PlannedTool is the LLM's intent for one tool, before any code exists.
type PlannedTool struct {
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	InputSchema         json.RawMessage `json:"inputSchema"`
	EndpointsUsed       []string        `json:"endpointsUsed"`
	ImplementationNotes string          `json:"implementationNotes"`
	NeedsNetwork        bool            `json:"needsNetwork"`
}

// GenerationPlan is the planner's validated output.
type GenerationPlan struct {
	Tools []PlannedTool `json:"tools"`
}

// CompiledTool is a planned tool enriched with its handler source: a
// textual async function body over the free variables args and fetch.
type CompiledTool struct {
	PlannedTool
	HandlerSource string `json:"handlerSource"`
}

// Table is the insertion-ordered set of compiled tools the executor
// serves, plus the whitelist domains persisted for cache-only restarts.
type Table struct {
	order            []string
	byName           map[string]*CompiledTool
	WhitelistDomains []string
}

// NewTable creates an empty table with the given whitelist domains.
func NewTable(whitelistDomains []string) *Table {
	return &Table{
		byName:           make(map[string]*CompiledTool),
		WhitelistDomains: whitelistDomains,
	}
}

// Add appends a compiled tool. Duplicate names are rejected.
func (t *Table) Add(ct *CompiledTool) error {
	name := strings.TrimSpace(ct.Name)
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if _, ok := t.byName[name]; ok {
		return fmt.Errorf("duplicate tool name: %s", name)
	}
	t.order = append(t.order, name)
	t.byName[name] = ct
	return nil
}

// Get returns the tool with the given name, or nil.
func (t *Table) Get(name string) *CompiledTool {
	return t.byName[name]
}

// Names returns the tool names in insertion order.
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// All returns the tools in insertion order.
func (t *Table) All() []*CompiledTool {
	out := make([]*CompiledTool, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.byName[name])
	}
	return out
}

// Len returns the number of tools.
func (t *Table) Len() int { return len(t.order) }

// FromCompiled rebuilds a table from a serialized tool slice, as stored
// in a cache entry.
func FromCompiled(tools []*CompiledTool, whitelistDomains []string) (*Table, error) {
	t := NewTable(whitelistDomains)
	for _, ct := range tools {
		if err := t.Add(ct); err != nil {
			return nil, err
		}
	}
	return t, nil
}
