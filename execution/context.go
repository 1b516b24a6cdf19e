package execution

import (
	"strings"

	"github.com/xraph/flowline/condition"
)

// Context is the mutable state threaded through one execution: the
// start input, accumulated step outputs, free-form variables, secrets,
// the trigger payload, and system metadata.
//
// Paths resolve against six top-level namespaces (input, outputs,
// variables, secrets, trigger, meta); a bare path falls back to
// variables and then input, so conditions can reference "count" instead
// of "variables.count".
type Context struct {
	Input     map[string]any            `json:"input,omitempty"`
	Outputs   map[string]map[string]any `json:"outputs,omitempty"`
	Variables map[string]any            `json:"variables,omitempty"`
	Secrets   map[string]string         `json:"secrets,omitempty"`
	Trigger   map[string]any            `json:"trigger,omitempty"`
	Meta      map[string]any            `json:"meta,omitempty"`
}

// NewContext creates a Context with every bag initialized.
func NewContext(input map[string]any) *Context {
	if input == nil {
		input = make(map[string]any)
	}
	return &Context{
		Input:     input,
		Outputs:   make(map[string]map[string]any),
		Variables: make(map[string]any),
		Secrets:   make(map[string]string),
		Trigger:   make(map[string]any),
		Meta:      make(map[string]any),
	}
}

// view assembles the namespaced root for path resolution.
func (c *Context) view() map[string]any {
	outputs := make(map[string]any, len(c.Outputs))
	for stepID, out := range c.Outputs {
		outputs[stepID] = out
	}
	secrets := make(map[string]any, len(c.Secrets))
	for k, v := range c.Secrets {
		secrets[k] = v
	}
	return map[string]any{
		"input":     c.Input,
		"outputs":   outputs,
		"variables": c.Variables,
		"secrets":   secrets,
		"trigger":   c.Trigger,
		"meta":      c.Meta,
	}
}

// Resolve looks up a dotted path with optional array indexing. It
// implements condition.Resolver.
func (c *Context) Resolve(path string) (any, bool) {
	head, _, _ := strings.Cut(path, ".")
	head, _, _ = strings.Cut(head, "[")
	switch head {
	case "input", "outputs", "variables", "secrets", "trigger", "meta":
		return condition.Lookup(c.view(), path)
	}

	// Bare paths: variables first, then input.
	if v, ok := condition.Lookup(c.Variables, path); ok {
		return v, true
	}
	return condition.Lookup(c.Input, path)
}

// Set writes a variable. It implements the variable bag contract used
// by variable-writing actions.
func (c *Context) Set(name string, value any) {
	c.Variables[name] = value
}

// RecordOutput stores a step's output under its step id.
func (c *Context) RecordOutput(stepID string, output map[string]any) {
	c.Outputs[stepID] = output
}

// Delete removes a variable.
func (c *Context) Delete(name string) {
	delete(c.Variables, name)
}

// ── Transform operations ────────────────────────────

// SetPath writes value at a dotted path inside Variables, creating
// intermediate maps as needed.
func (c *Context) SetPath(path string, value any) {
	parent, leaf := c.ensureParent(path)
	parent[leaf] = value
}

// AppendPath appends value to the list at a dotted path, creating the
// list when absent. A non-list value at the path is replaced by a list
// holding both.
func (c *Context) AppendPath(path string, value any) {
	parent, leaf := c.ensureParent(path)
	switch existing := parent[leaf].(type) {
	case nil:
		parent[leaf] = []any{value}
	case []any:
		parent[leaf] = append(existing, value)
	default:
		parent[leaf] = []any{existing, value}
	}
}

// MergePath merges a map value into the map at a dotted path, key by
// key. A non-map target is replaced.
func (c *Context) MergePath(path string, value any) {
	parent, leaf := c.ensureParent(path)
	incoming, ok := value.(map[string]any)
	if !ok {
		parent[leaf] = value
		return
	}
	target, ok := parent[leaf].(map[string]any)
	if !ok {
		target = make(map[string]any, len(incoming))
	}
	for k, v := range incoming {
		target[k] = v
	}
	parent[leaf] = target
}

// DeletePath removes the value at a dotted path. Missing intermediate
// segments are a no-op.
func (c *Context) DeletePath(path string) {
	segs := strings.Split(path, ".")
	current := c.Variables
	for _, seg := range segs[:len(segs)-1] {
		next, ok := current[seg].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, segs[len(segs)-1])
}

// ensureParent walks to the map owning the path's final segment,
// creating intermediate maps along the way.
func (c *Context) ensureParent(path string) (map[string]any, string) {
	segs := strings.Split(path, ".")
	current := c.Variables
	for _, seg := range segs[:len(segs)-1] {
		next, ok := current[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[seg] = next
		}
		current = next
	}
	return current, segs[len(segs)-1]
}

var _ condition.Resolver = (*Context)(nil)
