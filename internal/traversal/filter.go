package traversal

import (
	"sort"

	"github.com/helixdb/helixdb/internal/codec"
	"github.com/helixdb/helixdb/internal/herrors"
)

// FilterRef keeps only elements for which pred returns true without
// mutating anything (filter_ref never opens a write path).
func (t *Traversal) FilterRef(pred func(TraversalVal) bool) *Traversal {
	upstream := t.next
	return t.derive(func() (TraversalVal, bool, error) {
		for {
			v, ok, err := upstream()
			if err != nil || !ok {
				return v, ok, err
			}
			if pred(v) {
				return v, true, nil
			}
		}
	})
}

// FilterMut behaves like FilterRef but pred is allowed to mutate the
// transaction it closes over (filter_mut, used for predicates
// that need to write as a side effect while deciding membership).
func (t *Traversal) FilterMut(pred func(TraversalVal) (bool, error)) *Traversal {
	upstream := t.next
	return t.derive(func() (TraversalVal, bool, error) {
		for {
			v, ok, err := upstream()
			if err != nil || !ok {
				return v, ok, err
			}
			keep, err := pred(v)
			if err != nil {
				return TraversalVal{}, false, err
			}
			if keep {
				return v, true, nil
			}
		}
	})
}

// Dedup drops elements whose id has already been seen, preserving first
// occurrence order.
func (t *Traversal) Dedup() *Traversal {
	upstream := t.next
	seen := make(map[[16]byte]bool)
	return t.derive(func() (TraversalVal, bool, error) {
		for {
			v, ok, err := upstream()
			if err != nil || !ok {
				return v, ok, err
			}
			key := v.ID()
			if seen[key] {
				continue
			}
			seen[key] = true
			return v, true, nil
		}
	})
}

// Range keeps elements in [start, end), matching the offset/limit pairs
// HQL's RANGE clause compiles to.
func (t *Traversal) Range(start, end int) *Traversal {
	upstream := t.next
	i := 0
	return t.derive(func() (TraversalVal, bool, error) {
		for {
			if end >= 0 && i >= end {
				return TraversalVal{}, false, nil
			}
			v, ok, err := upstream()
			if err != nil || !ok {
				return v, ok, err
			}
			idx := i
			i++
			if idx < start {
				continue
			}
			return v, true, nil
		}
	})
}

// collectAll drains upstream fully; every sort/order step needs the whole
// stream materialized before it can know the final order.
func (t *Traversal) collectAll() ([]TraversalVal, error) {
	var out []TraversalVal
	for {
		v, ok, err := t.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

func valueLess(a, b codec.Value) bool {
	switch {
	case a.Kind == codec.KindString:
		return a.Str < b.Str
	case a.Kind == codec.KindF32 || a.Kind == codec.KindF64:
		return a.F64 < b.F64
	case a.Kind == codec.KindU8 || a.Kind == codec.KindU16 || a.Kind == codec.KindU32 || a.Kind == codec.KindU64:
		return a.U64 < b.U64
	default:
		return a.I64 < b.I64
	}
}

func propLess(v TraversalVal, field string) (codec.Value, bool) {
	props := v.Props()
	if props == nil {
		return codec.Value{}, false
	}
	val, ok := props[field]
	return val, ok
}

// OrderByAsc sorts the (materialized) stream ascending by the named
// property.
func (t *Traversal) OrderByAsc(field string) *Traversal {
	vals, err := t.collectAll()
	if err != nil {
		return t.derive(errStep(err))
	}
	sort.SliceStable(vals, func(i, j int) bool {
		vi, _ := propLess(vals[i], field)
		vj, _ := propLess(vals[j], field)
		return valueLess(vi, vj)
	})
	return t.derive(sliceStep(vals))
}

// OrderByDesc sorts the (materialized) stream descending by the named
// property.
func (t *Traversal) OrderByDesc(field string) *Traversal {
	vals, err := t.collectAll()
	if err != nil {
		return t.derive(errStep(err))
	}
	sort.SliceStable(vals, func(i, j int) bool {
		vi, _ := propLess(vals[i], field)
		vj, _ := propLess(vals[j], field)
		return valueLess(vj, vi)
	})
	return t.derive(sliceStep(vals))
}

// Map applies fn to every element, replacing it in the stream.
func (t *Traversal) Map(fn func(TraversalVal) (TraversalVal, error)) *Traversal {
	upstream := t.next
	return t.derive(func() (TraversalVal, bool, error) {
		v, ok, err := upstream()
		if err != nil || !ok {
			return v, ok, err
		}
		v2, err := fn(v)
		if err != nil {
			return TraversalVal{}, false, err
		}
		return v2, true, nil
	})
}

// Props reshapes every Node/Edge/Vector element, keeping only the named
// fields; a field may itself be renamed via the alias map, e.g.
// `{new_name: old_name}`.
func (t *Traversal) Props(fields map[string]string) *Traversal {
	return t.Map(func(v TraversalVal) (TraversalVal, error) {
		src := v.Props()
		out := make(codec.Properties, len(fields))
		for newName, oldName := range fields {
			if val, ok := src[oldName]; ok {
				out[newName] = val
			}
		}
		switch v.Kind {
		case KindNode:
			v.NodeProps = out
		case KindEdge:
			v.EdgeProps = out
		case KindVector:
			v.VectorProps = out
		}
		return v, nil
	})
}

// Exist pulls at most one element and reports whether the stream produced
// anything.
func (t *Traversal) Exist() (bool, error) {
	_, ok, err := t.next()
	return ok, err
}

// Count drains the stream and returns the number of elements seen.
func (t *Traversal) Count() (int, error) {
	n := 0
	for {
		_, ok, err := t.next()
		if err != nil {
			return 0, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

// CollectTo drains the stream into a slice, preserving order.
func (t *Traversal) CollectTo() ([]TraversalVal, error) {
	return t.collectAll()
}

// CollectToObj drains the stream into a plain-value map keyed by each
// element's id string, suitable for direct JSON serialization at the
// handler boundary.
func (t *Traversal) CollectToObj() (map[string]any, error) {
	vals, err := t.collectAll()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(vals))
	for _, v := range vals {
		out[v.ID().String()] = valToAny(v)
	}
	return out, nil
}

// CollectToVal drains a single-element KindValue stream and returns its
// scalar, erroring if the stream held anything else.
func (t *Traversal) CollectToVal() (codec.Value, error) {
	v, ok, err := t.next()
	if err != nil {
		return codec.Value{}, err
	}
	if !ok {
		return codec.Null(), nil
	}
	if v.Kind != KindValue {
		return codec.Value{}, herrors.New(herrors.KindType, "collect_to_val: element is not a scalar")
	}
	return v.Value, nil
}

func valToAny(v TraversalVal) any {
	props := make(map[string]any, len(v.Props()))
	for k, p := range v.Props() {
		props[k] = p.ToAny()
	}
	switch v.Kind {
	case KindNode:
		return map[string]any{"id": v.NodeID.String(), "label": v.NodeLabel, "properties": props}
	case KindEdge:
		return map[string]any{"id": v.EdgeID.String(), "label": v.EdgeLabel, "from_node": v.EdgeFrom.String(), "to_node": v.EdgeTo.String(), "properties": props}
	case KindVector:
		return map[string]any{"id": v.VectorID.String(), "label": v.VectorLabel, "properties": props, "distance": v.VectorDistance}
	case KindCount:
		return v.CountVal
	case KindValue:
		return v.Value.ToAny()
	default:
		return nil
	}
}

// Update merges patch into every upstream node's properties.
func (t *Traversal) Update(patch codec.Properties) *Traversal {
	wtx, err := t.requireWrite("update")
	if err != nil {
		return t.derive(errStep(err))
	}
	upstream := t.next
	return t.derive(func() (TraversalVal, bool, error) {
		v, ok, err := upstream()
		if err != nil || !ok {
			return v, ok, err
		}
		if v.Kind != KindNode {
			return v, true, nil
		}
		if err := t.store.UpdateNode(wtx, v.NodeID, patch); err != nil {
			return TraversalVal{}, false, err
		}
		n, err := t.store.GetNode(wtx, v.NodeID)
		if err != nil {
			return TraversalVal{}, false, err
		}
		return Node(v.NodeID, n.Label, n.Props), true, nil
	})
}

// Drop deletes every upstream node, edge, or vector, cascading per the
// underlying store's drop semantics, and yields nothing.
func (t *Traversal) Drop() *Traversal {
	wtx, err := t.requireWrite("drop")
	if err != nil {
		return t.derive(errStep(err))
	}
	upstream := t.next
	return t.derive(func() (TraversalVal, bool, error) {
		for {
			v, ok, err := upstream()
			if err != nil {
				return TraversalVal{}, false, err
			}
			if !ok {
				return TraversalVal{}, false, nil
			}
			switch v.Kind {
			case KindNode:
				if err := t.store.DropNode(wtx, v.NodeID); err != nil {
					return TraversalVal{}, false, err
				}
			case KindEdge:
				if err := t.store.DropEdge(wtx, v.EdgeID); err != nil {
					return TraversalVal{}, false, err
				}
			case KindVector:
				if t.vec == nil {
					return TraversalVal{}, false, herrors.New(herrors.KindVector, "vector index not configured")
				}
				if err := t.vec.Delete(wtx, v.VectorID); err != nil {
					return TraversalVal{}, false, err
				}
			}
		}
	})
}
