package handler

import (
	"github.com/helixdb/helixdb/internal/bm25"
	"github.com/helixdb/helixdb/internal/codec"
	"github.com/helixdb/helixdb/internal/compiler"
	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/id"
	"github.com/helixdb/helixdb/internal/metrics"
	"github.com/helixdb/helixdb/internal/traversal"
	"github.com/helixdb/helixdb/internal/vector"
)

// evalChain walks a lowered step chain, dispatching each step name to the
// matching internal/traversal.Traversal method. The first step is always a
// source step (building t from nothing); every later step either refines t
// or, if it is a terminal collector, ends the chain early with a concrete
// result.
func (it *interp) evalChain(steps []compiler.LoweredStep) (any, error) {
	return it.evalChainFrom(nil, steps)
}

// evalChainFrom is evalChain with an optional pre-seeded stream, used for
// sub-traversals that continue from one response item during remapping.
func (it *interp) evalChainFrom(seed []traversal.TraversalVal, steps []compiler.LoweredStep) (any, error) {
	if len(steps) == 0 {
		return []traversal.TraversalVal{}, nil
	}
	var t *traversal.Traversal
	if seed != nil {
		t = it.newTraversal().FromVals(seed)
	}
	for _, step := range steps {
		metricName(step.Name)
		switch step.Name {

		// ---- source steps ----
		case "__var":
			name := step.Args[0].(*compiler.Ident).Name
			binding, ok := it.vars[name]
			if !ok {
				return nil, herrors.New(herrors.KindInvalid, "undefined variable: "+name)
			}
			vals, err := bindingToVals(binding, name)
			if err != nil {
				return nil, err
			}
			t = it.newTraversal().FromVals(vals)
		case "n_from_id":
			v, err := it.evalScalar(step.Args[0])
			if err != nil {
				return nil, err
			}
			nid, err := idFromValue(v)
			if err != nil {
				return nil, err
			}
			t = it.newTraversal().NFromID(nid)
		case "n_from_ids":
			v, err := it.evalScalar(step.Args[0])
			if err != nil {
				return nil, err
			}
			ids, err := idsFromValue(v)
			if err != nil {
				return nil, err
			}
			t = it.newTraversal().NFromIDs(ids)
		case "n_from_type":
			t = it.newTraversal().NFromType(stringArg(step.Args, 0))
		case "n_from_index":
			field := stringArg(step.Args, 0)
			v, err := it.evalScalar(step.Args[1])
			if err != nil {
				return nil, err
			}
			t = it.newTraversal().NFromIndex(field, v)
		case "e_from_id":
			v, err := it.evalScalar(step.Args[0])
			if err != nil {
				return nil, err
			}
			eid, err := idFromValue(v)
			if err != nil {
				return nil, err
			}
			t = it.newTraversal().EFromID(eid)
		case "e_from_type":
			t = it.newTraversal().EFromType(stringArg(step.Args, 0))
		case "add_n":
			label := stringArg(step.Args, 0)
			props, err := it.objectArg(step.Args, 1)
			if err != nil {
				return nil, err
			}
			t = it.newTraversal().AddN(label, props)
		case "add_e":
			label := stringArg(step.Args, 0)
			fromV, err := it.evalScalar(step.Args[1])
			if err != nil {
				return nil, err
			}
			toV, err := it.evalScalar(step.Args[2])
			if err != nil {
				return nil, err
			}
			from, err := idFromValue(fromV)
			if err != nil {
				return nil, err
			}
			to, err := idFromValue(toV)
			if err != nil {
				return nil, err
			}
			props, err := it.objectArg(step.Args, 3)
			if err != nil {
				return nil, err
			}
			t = it.newTraversal().AddE(label, props, from, to, edgeKindArg(step.Args, 4))
		case "insert_v":
			dataV, err := it.evalScalar(step.Args[0])
			if err != nil {
				return nil, err
			}
			data, err := floatsFromValue(dataV)
			if err != nil {
				return nil, err
			}
			label := stringArg(step.Args, 1)
			props, err := it.objectArg(step.Args, 2)
			if err != nil {
				return nil, err
			}
			t = it.newTraversal().InsertV(data, label, props)
		case "search_v":
			queryV, err := it.evalScalar(step.Args[0])
			if err != nil {
				return nil, err
			}
			query, err := floatsFromValue(queryV)
			if err != nil {
				return nil, err
			}
			kV, err := it.evalScalar(step.Args[1])
			if err != nil {
				return nil, err
			}
			label := stringArg(step.Args, 2)
			var filters []vector.Predicate
			if len(step.Args) > 3 {
				pred := step.Args[3]
				filters = append(filters, func(props codec.Properties) bool {
					ok, _ := it.evalPredicate(pred, traversal.Vector(id.Nil, "", nil, props, 0))
					return ok
				})
			}
			t = it.newTraversal().SearchV(query, int(numericOf(kV)), label, filters)
		case "brute_force_search_v":
			queryV, err := it.evalScalar(step.Args[0])
			if err != nil {
				return nil, err
			}
			query, err := floatsFromValue(queryV)
			if err != nil {
				return nil, err
			}
			kV, err := it.evalScalar(step.Args[1])
			if err != nil {
				return nil, err
			}
			if t == nil {
				return nil, herrors.New(herrors.KindInvalid, "brute_force_search_v requires a preceding stream")
			}
			t = t.BruteForceSearchV(query, int(numericOf(kV)))
		case "search_bm25":
			label := stringArg(step.Args, 0)
			query := stringArg(step.Args, 1)
			kV, err := it.evalScalar(step.Args[2])
			if err != nil {
				return nil, err
			}
			metrics.BM25Queries.Inc()
			t = it.newTraversal().SearchBM25(label, query, int(numericOf(kV)))
		case "hybrid_search":
			query := stringArg(step.Args, 0)
			qvV, err := it.evalScalar(step.Args[1])
			if err != nil {
				return nil, err
			}
			qv, err := floatsFromValue(qvV)
			if err != nil {
				return nil, err
			}
			alphaV, err := it.evalScalar(step.Args[2])
			if err != nil {
				return nil, err
			}
			kV, err := it.evalScalar(step.Args[3])
			if err != nil {
				return nil, err
			}
			metrics.BM25Queries.Inc()
			fused, err := bm25.HybridSearch(it.ctx, it.engine.db.ReadTxn, it.engine.vec, query, qv, numericOf(alphaV), int(numericOf(kV)))
			if err != nil {
				return nil, err
			}
			vals := make([]traversal.TraversalVal, len(fused))
			for i, f := range fused {
				vals[i] = traversal.Value(codec.Object(map[string]codec.Value{
					"id":    codec.UUID(f.ID),
					"score": codec.F64(f.Score),
				}))
			}
			t = it.newTraversal().FromVals(vals)

		// ---- navigation ----
		case "out":
			t = requireT(t).Out(stringArg(step.Args, 0), edgeKindArg(step.Args, 1))
		case "in":
			t = requireT(t).In(stringArg(step.Args, 0), edgeKindArg(step.Args, 1))
		case "out_e":
			t = requireT(t).OutE(stringArg(step.Args, 0))
		case "in_e":
			t = requireT(t).InE(stringArg(step.Args, 0))
		case "from_n":
			t = requireT(t).FromN()
		case "to_n":
			t = requireT(t).ToN()
		case "from_v":
			t = requireT(t).FromV()
		case "to_v":
			t = requireT(t).ToV()

		// ---- filters / adapters ----
		case "filter_ref":
			pred := step.Args[0]
			t = requireT(t).FilterRef(func(v traversal.TraversalVal) bool {
				ok, _ := it.evalPredicate(pred, v)
				return ok
			})
		case "filter_mut":
			pred := step.Args[0]
			t = requireT(t).FilterMut(func(v traversal.TraversalVal) (bool, error) {
				return it.evalPredicate(pred, v)
			})
		case "dedup":
			t = requireT(t).Dedup()
		case "range":
			startV, err := it.evalScalar(step.Args[0])
			if err != nil {
				return nil, err
			}
			endV, err := it.evalScalar(step.Args[1])
			if err != nil {
				return nil, err
			}
			t = requireT(t).Range(int(numericOf(startV)), int(numericOf(endV)))
		case "order_by_asc":
			t = requireT(t).OrderByAsc(stringArg(step.Args, 0))
		case "order_by_desc":
			t = requireT(t).OrderByDesc(stringArg(step.Args, 0))
		case "map":
			fields, err := mapFields(step.Args)
			if err != nil {
				return nil, err
			}
			t = requireT(t).Props(fields)
		case "props":
			t = requireT(t).Map(func(v traversal.TraversalVal) (traversal.TraversalVal, error) {
				return traversal.Value(codec.Object(v.Props())), nil
			})
		case "soft_delete":
			t = requireT(t).SoftDelete()
		case "shortest_path":
			targetV, err := it.evalScalar(step.Args[0])
			if err != nil {
				return nil, err
			}
			target, err := idFromValue(targetV)
			if err != nil {
				return nil, err
			}
			t = requireT(t).ShortestPath(target, stringArg(step.Args, 1))
		case "update":
			props, err := it.objectArg(step.Args, 0)
			if err != nil {
				return nil, err
			}
			t = requireT(t).Update(props)
		case "drop":
			t = requireT(t).Drop()

		// ---- terminal collectors ----
		case "exist":
			return requireT(t).Exist()
		case "count":
			return requireT(t).Count()
		case "collect_to":
			return requireT(t).CollectTo()
		case "collect_to_obj":
			return requireT(t).CollectToObj()
		case "collect_to_val":
			return requireT(t).CollectToVal()

		default:
			return nil, herrors.New(herrors.KindInvalid, "unknown traversal step: "+step.Name)
		}
	}
	vals, err := t.CollectTo()
	if err != nil {
		return nil, err
	}
	if chainIsSingle(steps) && len(vals) == 1 {
		return vals[0], nil
	}
	return vals, nil
}

// singleSources produce at most one element; a chain rooted at one of them
// with no fan-out step serializes as a single item rather than a list.
var singleSources = map[string]bool{
	"n_from_id": true, "e_from_id": true,
	"add_n": true, "add_e": true, "insert_v": true,
}

var fanOutSteps = map[string]bool{
	"out": true, "in": true, "out_e": true, "in_e": true,
}

func chainIsSingle(steps []compiler.LoweredStep) bool {
	if !singleSources[steps[0].Name] {
		return false
	}
	for _, s := range steps[1:] {
		if fanOutSteps[s.Name] {
			return false
		}
	}
	return true
}

func edgeKindArg(args []compiler.Expr, idx int) traversal.EdgeType {
	if stringArg(args, idx) == "Vec" {
		return traversal.EdgeToVec
	}
	return traversal.EdgeToNode
}

func bindingToVals(binding any, name string) ([]traversal.TraversalVal, error) {
	switch b := binding.(type) {
	case []traversal.TraversalVal:
		return b, nil
	case traversal.TraversalVal:
		return []traversal.TraversalVal{b}, nil
	default:
		return nil, herrors.New(herrors.KindType, name+" is not a traversal value")
	}
}

// requireT documents the invariant rather than enforcing it: the analyzer
// rejects any chain where a non-source step follows an empty stream before
// code generation ever runs, so t is always non-nil here.
func requireT(t *traversal.Traversal) *traversal.Traversal { return t }

func (it *interp) objectArg(args []compiler.Expr, idx int) (codec.Properties, error) {
	if idx >= len(args) {
		return nil, nil
	}
	obj, ok := args[idx].(*compiler.ObjectLiteral)
	if !ok {
		return nil, herrors.New(herrors.KindType, "expected a property object literal")
	}
	return it.evalProps(obj)
}

// mapFields interprets a `map({new: old, ...})` argument as a property
// rename/reshape, the same shape PropAccess compiles to.
func mapFields(args []compiler.Expr) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	obj, ok := args[0].(*compiler.ObjectLiteral)
	if !ok {
		return nil, herrors.New(herrors.KindType, "map() expects an object literal of new:old field names")
	}
	out := make(map[string]string, len(obj.Fields))
	for newName, expr := range obj.Fields {
		ident, ok := expr.(*compiler.Ident)
		if !ok {
			return nil, herrors.New(herrors.KindType, "map() field values must reference a source field name")
		}
		out[newName] = ident.Name
	}
	return out, nil
}

func idsFromValue(v codec.Value) ([]id.ID, error) {
	if v.Kind != codec.KindArray {
		return nil, herrors.New(herrors.KindType, "expected an array of ids")
	}
	out := make([]id.ID, 0, len(v.Array))
	for _, e := range v.Array {
		i, err := idFromValue(e)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}
