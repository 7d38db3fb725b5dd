// Package expr resolves {{block.field}} and {{variable.name}} reference
// templates against a run-state snapshot. Resolution is side-effect-free and
// repeatable: the same snapshot always yields the same output, which lets
// retries re-resolve inputs safely.
package expr

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// refPattern matches one reference token. The inner group is the dotted path.
var refPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Source is what references are resolved against. The run state implements
// it; tests provide fixed maps.
type Source interface {
	Lookup(path []string) (any, error)
}

// UnresolvedReferenceError reports a reference that could not be resolved.
// Execution-bound fields treat this as a hard error: the engine refuses to
// run a block whose inputs still contain template syntax.
type UnresolvedReferenceError struct {
	Reference string
	Err       error
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference {{%s}}: %v", e.Reference, e.Err)
}

func (e *UnresolvedReferenceError) Unwrap() error { return e.Err }

// Resolve substitutes every reference token in value, recursing through
// maps and slices. Strings that consist of exactly one token resolve to the
// referenced value with its type preserved; tokens embedded in longer
// strings are stringified in place.
func Resolve(value any, src Source) (any, error) {
	switch v := value.(type) {
	case string:
		return resolveString(v, src)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			resolved, err := Resolve(elem, src)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			resolved, err := Resolve(elem, src)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

func resolveString(s string, src Source) (any, error) {
	matches := refPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// A string that is exactly one token keeps the referenced value's type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		ref := strings.TrimSpace(s[matches[0][2]:matches[0][3]])
		return lookupRef(ref, src)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		ref := strings.TrimSpace(s[m[2]:m[3]])
		val, err := lookupRef(ref, src)
		if err != nil {
			return nil, err
		}
		b.WriteString(stringify(val))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

func lookupRef(ref string, src Source) (any, error) {
	path := strings.Split(ref, ".")
	for i := range path {
		path[i] = strings.TrimSpace(path[i])
		if path[i] == "" {
			return nil, &UnresolvedReferenceError{Reference: ref, Err: fmt.Errorf("empty path segment")}
		}
	}
	val, err := src.Lookup(path)
	if err != nil {
		return nil, &UnresolvedReferenceError{Reference: ref, Err: err}
	}
	return val, nil
}

// stringify renders a resolved value for in-string substitution. Structured
// values become JSON so prompts and URLs stay parseable.
func stringify(val any) string {
	switch v := val.(type) {
	case nil:
		return "null"
	case string:
		return v
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// HasTemplates reports whether any string inside value still carries
// template syntax. The engine uses it as a final guard before dispatch.
func HasTemplates(value any) bool {
	switch v := value.(type) {
	case string:
		return refPattern.MatchString(v)
	case map[string]any:
		for _, elem := range v {
			if HasTemplates(elem) {
				return true
			}
		}
	case []any:
		for _, elem := range v {
			if HasTemplates(elem) {
				return true
			}
		}
	}
	return false
}
