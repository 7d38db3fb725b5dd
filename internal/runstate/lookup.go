package runstate

import (
	"errors"
	"fmt"
	"strconv"
)

// VariablePrefix is the first path segment routing a reference to the
// user-variable store instead of a block output.
const VariablePrefix = "variable"

// ErrSkippedReference is returned when an expression references the output
// of a block that was skipped. Referencing absence is an error rather than
// a silently-propagated empty value.
var ErrSkippedReference = errors.New("referenced block was skipped")

// ErrNotFound is returned when a reference matches no variable, scope value,
// or block output.
var ErrNotFound = errors.New("reference not found")

// Lookup resolves a dotted reference path against the run state. The first
// segment selects the source: "variable" reads the variable store, a scope
// key (loop, parallel) reads iteration variables, and anything else names a
// block whose recorded output is descended field by field.
func (c *Context) Lookup(path []string) (any, error) {
	if len(path) == 0 {
		return nil, ErrNotFound
	}

	if path[0] == VariablePrefix {
		if len(path) < 2 {
			return nil, fmt.Errorf("%w: bare %q reference", ErrNotFound, VariablePrefix)
		}
		val, ok := c.vars.Get(path[1])
		if !ok {
			return nil, fmt.Errorf("%w: variable %q", ErrNotFound, path[1])
		}
		return descend(val, path[2:])
	}

	if val, ok := c.scopeValue(path[0]); ok {
		return descend(val, path[1:])
	}

	rec, err := c.blockRecord(path[0])
	if err != nil {
		return nil, err
	}
	switch rec.Status {
	case StatusSkipped:
		return nil, fmt.Errorf("%w: %q", ErrSkippedReference, path[0])
	case StatusError:
		// Continue-policy blocks expose a null output downstream.
		return nil, nil
	case StatusSuccess:
		return descend(rec.Output, path[1:])
	default:
		return nil, fmt.Errorf("%w: block %q has not finished", ErrNotFound, path[0])
	}
}

// scopeValue searches the scope chain, innermost first, so a nested loop
// shadows its enclosing loop's variables.
func (c *Context) scopeValue(key string) (any, bool) {
	for ctx := c; ctx != nil; ctx = ctx.parent {
		ctx.mu.RLock()
		val, ok := ctx.scope[key]
		ctx.mu.RUnlock()
		if ok {
			return val, true
		}
	}
	return nil, false
}

// blockRecord finds a block by name or id in this context or any ancestor.
func (c *Context) blockRecord(ref string) (BlockRecord, error) {
	for ctx := c; ctx != nil; ctx = ctx.parent {
		ctx.mu.RLock()
		id := ref
		if mapped, ok := ctx.names[ref]; ok {
			id = mapped
		}
		rec, ok := ctx.records[id]
		if ok {
			out := *rec
			ctx.mu.RUnlock()
			return out, nil
		}
		ctx.mu.RUnlock()
	}
	return BlockRecord{}, fmt.Errorf("%w: block %q", ErrNotFound, ref)
}

// descend walks the remaining path segments through nested maps and slices.
func descend(val any, path []string) (any, error) {
	for _, seg := range path {
		switch v := val.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, fmt.Errorf("%w: field %q", ErrNotFound, seg)
			}
			val = next
		case map[string]string:
			next, ok := v[seg]
			if !ok {
				return nil, fmt.Errorf("%w: field %q", ErrNotFound, seg)
			}
			val = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("%w: index %q", ErrNotFound, seg)
			}
			val = v[idx]
		default:
			return nil, fmt.Errorf("%w: cannot descend into %T with %q", ErrNotFound, val, seg)
		}
	}
	return val, nil
}
