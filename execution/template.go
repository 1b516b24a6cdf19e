package execution

import (
	"fmt"
	"regexp"
	"strings"
)

var interpToken = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// ResolveTemplates resolves template expressions in a value against the
// context, recursively for maps and lists.
//
// A string that is exactly "${path}" resolves to the value at that path,
// preserving its type; a missing path yields nil. Strings containing
// "{{path}}" tokens are interpolated per token, with missing paths
// rendering as the empty string. Non-string scalars pass through
// unchanged.
func (c *Context) ResolveTemplates(v any) any {
	switch t := v.(type) {
	case string:
		return c.resolveString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = c.ResolveTemplates(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = c.ResolveTemplates(item)
		}
		return out
	default:
		return v
	}
}

// ResolveInput resolves every value of a step input map.
func (c *Context) ResolveInput(input map[string]any) map[string]any {
	if input == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = c.ResolveTemplates(v)
	}
	return out
}

func (c *Context) resolveString(s string) any {
	// Whole-string ${path}: type-preserving.
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") &&
		!strings.Contains(s[2:len(s)-1], "${") {
		path := strings.TrimSpace(s[2 : len(s)-1])
		v, ok := c.Resolve(path)
		if !ok {
			return nil
		}
		return v
	}

	// {{path}} tokens: stringly interpolation, missing paths go empty.
	if !interpToken.MatchString(s) {
		return s
	}
	return interpToken.ReplaceAllStringFunc(s, func(tok string) string {
		path := strings.TrimSpace(tok[2 : len(tok)-2])
		v, ok := c.Resolve(path)
		if !ok || v == nil {
			return ""
		}
		return stringify(v)
	})
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// Render whole numbers without a trailing ".0".
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
