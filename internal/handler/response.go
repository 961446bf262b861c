package handler

import (
	"github.com/helixdb/helixdb/internal/codec"
	"github.com/helixdb/helixdb/internal/compiler"
	"github.com/helixdb/helixdb/internal/traversal"
)

// buildResponse evaluates every RETURN item against the final variable
// bindings, applying each item's remapping rules if it has any, and shapes
// the result into a plain JSON-able object keyed by return name. The map
// carries no order, and encoding/json writes its keys sorted, not in
// RETURN-clause order; the declared order is available from def.Returns.
func (it *interp) buildResponse(returns []compiler.LoweredReturn) (map[string]any, error) {
	resp := make(map[string]any, len(returns))
	for _, r := range returns {
		val, err := it.evalLoweredExpr(r.Expr)
		if err != nil {
			return nil, err
		}
		shaped, err := it.remap(val, r.Fields, r.Excludes)
		if err != nil {
			return nil, err
		}
		resp[r.Name] = shaped
	}
	return resp, nil
}

func (it *interp) remap(val any, fields map[string]compiler.Expr, excludes []string) (any, error) {
	switch v := val.(type) {
	case traversal.TraversalVal:
		return it.remapItem(v, fields, excludes)
	case []traversal.TraversalVal:
		out := make([]any, len(v))
		for i, e := range v {
			m, err := it.remapItem(e, fields, excludes)
			if err != nil {
				return nil, err
			}
			out[i] = m
		}
		return out, nil
	default:
		return anyFromBinding(val), nil
	}
}

// remapItem shapes one traversal value, applying its remapping rules: a
// bare identifier renames a property (or substitutes a request parameter
// when the item has no property of that name), a literal replaces the field
// outright, and a step chain runs a sub-traversal continuing from this
// item.
func (it *interp) remapItem(v traversal.TraversalVal, fields map[string]compiler.Expr, excludes []string) (any, error) {
	if v.Kind == traversal.KindCount {
		return v.CountVal, nil
	}
	if v.Kind == traversal.KindValue {
		return v.Value.ToAny(), nil
	}
	props := v.Props()
	out := map[string]any{}
	switch {
	case len(fields) > 0:
		for newName, expr := range fields {
			resolved, ok, err := it.resolveField(v, expr)
			if err != nil {
				return nil, err
			}
			if ok {
				out[newName] = resolved
			}
		}
	case len(excludes) > 0:
		excl := make(map[string]bool, len(excludes))
		for _, f := range excludes {
			excl[f] = true
		}
		for k, pv := range props {
			if !excl[k] {
				out[k] = pv.ToAny()
			}
		}
	default:
		for k, pv := range props {
			out[k] = pv.ToAny()
		}
	}
	base := map[string]any{"id": v.ID().String(), "label": v.Label(), "properties": out}
	if v.Kind == traversal.KindEdge {
		base["from_node"] = v.EdgeFrom.String()
		base["to_node"] = v.EdgeTo.String()
	}
	return base, nil
}

func (it *interp) resolveField(item traversal.TraversalVal, expr compiler.Expr) (any, bool, error) {
	switch ex := expr.(type) {
	case *compiler.Ident:
		if props := item.Props(); props != nil {
			if pv, ok := props[ex.Name]; ok {
				return pv.ToAny(), true, nil
			}
		}
		if binding, ok := it.vars[ex.Name]; ok {
			if cv, ok := binding.(codec.Value); ok {
				return cv.ToAny(), true, nil
			}
		}
		return nil, false, nil
	case *compiler.Literal:
		cv, err := literalToValue(ex)
		if err != nil {
			return nil, false, err
		}
		return cv.ToAny(), true, nil
	case *compiler.StepCall:
		return it.resolveSubTraversal(item, []*compiler.StepCall{ex})
	case *compiler.Chain:
		return it.resolveSubTraversal(item, ex.Steps)
	default:
		cv, err := it.evalScalar(expr)
		if err != nil {
			return nil, false, err
		}
		return cv.ToAny(), true, nil
	}
}

func (it *interp) resolveSubTraversal(item traversal.TraversalVal, steps []*compiler.StepCall) (any, bool, error) {
	sub, err := it.evalChainFrom([]traversal.TraversalVal{item}, loweredSteps(steps))
	if err != nil {
		return nil, false, err
	}
	shaped, err := it.remap(sub, nil, nil)
	if err != nil {
		return nil, false, err
	}
	return shaped, true, nil
}

// RenderItems shapes raw traversal values (e.g. a page drawn from an MCP
// connection's cursor) into the same JSON item shape buildResponse uses for
// RETURN values, with no remapping applied.
func RenderItems(items []traversal.TraversalVal) []any {
	out := make([]any, len(items))
	for i, v := range items {
		out[i] = renderPlain(v)
	}
	return out
}

func renderPlain(v traversal.TraversalVal) any {
	if v.Kind == traversal.KindCount {
		return v.CountVal
	}
	if v.Kind == traversal.KindValue {
		return v.Value.ToAny()
	}
	props := map[string]any{}
	for k, pv := range v.Props() {
		props[k] = pv.ToAny()
	}
	base := map[string]any{"id": v.ID().String(), "label": v.Label(), "properties": props}
	if v.Kind == traversal.KindEdge {
		base["from_node"] = v.EdgeFrom.String()
		base["to_node"] = v.EdgeTo.String()
	}
	return base
}

func anyFromBinding(val any) any {
	switch v := val.(type) {
	case codec.Value:
		return v.ToAny()
	case int, bool, map[string]any:
		return v
	default:
		return v
	}
}
