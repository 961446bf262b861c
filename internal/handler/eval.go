package handler

import (
	"context"

	"github.com/helixdb/helixdb/internal/codec"
	"github.com/helixdb/helixdb/internal/compiler"
	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/id"
	"github.com/helixdb/helixdb/internal/kv"
	"github.com/helixdb/helixdb/internal/metrics"
	"github.com/helixdb/helixdb/internal/traversal"
)

// interp is one request's execution context: the transaction it runs over
// plus the current variable bindings. A binding is one of:
// []traversal.TraversalVal, traversal.TraversalVal (a single-element
// chain), codec.Value, int (a count), bool (an exist result), or
// map[string]any (a collect_to_obj result).
type interp struct {
	engine *Engine
	ctx    context.Context
	rtx    kv.ReadTxn
	wtx    kv.WriteTxn
	vars   map[string]any
}

func (it *interp) child() *interp {
	vars := make(map[string]any, len(it.vars))
	for k, v := range it.vars {
		vars[k] = v
	}
	return &interp{engine: it.engine, ctx: it.ctx, rtx: it.rtx, wtx: it.wtx, vars: vars}
}

func (it *interp) newTraversal() *traversal.Traversal {
	if it.wtx != nil {
		return traversal.NewWrite(it.wtx, it.engine.store, it.engine.vec)
	}
	return traversal.NewRead(it.rtx, it.engine.store, it.engine.vec)
}

func (it *interp) runStatements(stmts []compiler.LoweredStmt) error {
	for _, s := range stmts {
		switch {
		case s.Assign != nil:
			val, err := it.evalLoweredExpr(s.Assign.Expr)
			if err != nil {
				return err
			}
			it.vars[s.Assign.Name] = val
		case s.ForEach != nil:
			if err := it.runForEach(s.ForEach); err != nil {
				return err
			}
		case s.Drop != nil:
			if _, err := it.evalLoweredExpr(*s.Drop); err != nil {
				return err
			}
		case s.Expr != nil:
			if _, err := it.evalLoweredExpr(*s.Expr); err != nil {
				return err
			}
		}
	}
	return nil
}

func (it *interp) runForEach(f *compiler.LoweredForEach) error {
	coll, err := it.evalLoweredExpr(f.Source)
	if err != nil {
		return err
	}
	items, err := toIterable(coll)
	if err != nil {
		return err
	}
	for _, item := range items {
		child := it.child()
		if len(f.VarNames) == 1 {
			child.vars[f.VarNames[0]] = item
		} else {
			obj, ok := item.(codec.Value)
			if !ok || obj.Kind != codec.KindObject {
				return herrors.New(herrors.KindType, "FOR destructure requires an array of objects")
			}
			for _, name := range f.VarNames {
				child.vars[name] = obj.Object[name]
			}
		}
		if err := child.runStatements(f.Body); err != nil {
			return err
		}
	}
	return nil
}

func toIterable(coll any) ([]any, error) {
	switch v := coll.(type) {
	case []traversal.TraversalVal:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out, nil
	case traversal.TraversalVal:
		return []any{v}, nil
	case codec.Value:
		if v.Kind != codec.KindArray {
			return nil, herrors.New(herrors.KindType, "FOR source is not iterable")
		}
		out := make([]any, len(v.Array))
		for i, e := range v.Array {
			out[i] = e
		}
		return out, nil
	default:
		return nil, herrors.New(herrors.KindType, "FOR source is not iterable")
	}
}

// evalLoweredExpr evaluates a compiled step chain or a scalar/boolean
// expression, returning a binding of the kinds documented on interp.
func (it *interp) evalLoweredExpr(e compiler.LoweredExpr) (any, error) {
	if e.Steps != nil {
		return it.evalChain(e.Steps)
	}
	return it.evalValueExpr(e.Value)
}

func (it *interp) evalValueExpr(e compiler.Expr) (any, error) {
	switch ex := e.(type) {
	case *compiler.BoolOp:
		b, err := it.evalBoolTopLevel(ex)
		return b, err
	case *compiler.Ident:
		// A bare variable reference yields whatever the binding holds:
		// traversal values, a scalar, a count, or an exist result.
		if v, ok := it.vars[ex.Name]; ok {
			return v, nil
		}
		return nil, herrors.New(herrors.KindInvalid, "undefined variable: "+ex.Name)
	case *compiler.PropAccess:
		target, err := it.evalPropAccessTarget(ex.Target)
		if err != nil {
			return nil, err
		}
		return it.remap(target, ex.Fields, ex.Excludes)
	default:
		v, err := it.evalScalar(e)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

func (it *interp) evalPropAccessTarget(e compiler.Expr) (any, error) {
	if c, ok := e.(*compiler.Chain); ok {
		return it.evalChain(loweredSteps(c.Steps))
	}
	return it.evalValueExpr(e)
}

func loweredSteps(steps []*compiler.StepCall) []compiler.LoweredStep {
	out := make([]compiler.LoweredStep, len(steps))
	for i, s := range steps {
		out[i] = compiler.LoweredStep{Name: s.Name, Args: s.Args}
	}
	return out
}

func (it *interp) evalBoolTopLevel(b *compiler.BoolOp) (bool, error) {
	switch b.Op {
	case compiler.TokAnd:
		l, err := it.evalBoolOperand(b.Left)
		if err != nil || !l {
			return false, err
		}
		return it.evalBoolOperand(b.Right)
	case compiler.TokOr:
		l, err := it.evalBoolOperand(b.Left)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return it.evalBoolOperand(b.Right)
	case compiler.TokNot:
		v, err := it.evalBoolOperand(b.Left)
		return !v, err
	case compiler.TokExists:
		v, err := it.evalLoweredExpr(compiler.LoweredExpr{Value: b.Left})
		if err != nil {
			return false, err
		}
		return isTruthyCollection(v), nil
	default:
		left, err := it.evalScalar(b.Left)
		if err != nil {
			return false, err
		}
		right, err := it.evalScalar(b.Right)
		if err != nil {
			return false, err
		}
		return compareValues(left, right, b.Op), nil
	}
}

func (it *interp) evalBoolOperand(e compiler.Expr) (bool, error) {
	if b, ok := e.(*compiler.BoolOp); ok {
		return it.evalBoolTopLevel(b)
	}
	v, err := it.evalScalar(e)
	if err != nil {
		return false, err
	}
	return v.Kind == codec.KindBool && v.Bool, nil
}

func isTruthyCollection(v any) bool {
	switch x := v.(type) {
	case []traversal.TraversalVal:
		return len(x) > 0
	case traversal.TraversalVal:
		return x.Kind != traversal.KindEmpty
	case bool:
		return x
	case int:
		return x > 0
	default:
		return v != nil
	}
}

// evalScalar evaluates e as a single codec.Value: a literal, a variable
// reference, an array literal, or an object literal.
func (it *interp) evalScalar(e compiler.Expr) (codec.Value, error) {
	switch ex := e.(type) {
	case *compiler.Literal:
		return literalToValue(ex)
	case *compiler.Ident:
		v, ok := it.vars[ex.Name]
		if !ok {
			return codec.Value{}, herrors.New(herrors.KindInvalid, "undefined variable: "+ex.Name)
		}
		cv, ok := v.(codec.Value)
		if !ok {
			return codec.Value{}, herrors.New(herrors.KindType, ex.Name+" is not a scalar value")
		}
		return cv, nil
	case *compiler.ObjectLiteral:
		props, err := it.evalProps(ex)
		if err != nil {
			return codec.Value{}, err
		}
		obj := make(map[string]codec.Value, len(props))
		for k, v := range props {
			obj[k] = v
		}
		return codec.Object(obj), nil
	case *compiler.StepCall:
		if ex.Name == "__array" {
			vals := make([]codec.Value, 0, len(ex.Args))
			for _, a := range ex.Args {
				v, err := it.evalScalar(a)
				if err != nil {
					return codec.Value{}, err
				}
				vals = append(vals, v)
			}
			return codec.Array(vals), nil
		}
		return codec.Value{}, herrors.New(herrors.KindType, "step call is not valid in a scalar position: "+ex.Name)
	default:
		return codec.Value{}, herrors.New(herrors.KindType, "expression is not a scalar")
	}
}

func (it *interp) evalProps(obj *compiler.ObjectLiteral) (codec.Properties, error) {
	out := make(codec.Properties, len(obj.Fields))
	for k, v := range obj.Fields {
		val, err := it.evalScalar(v)
		if err != nil {
			return nil, err
		}
		out[k] = val
	}
	return out, nil
}

func literalToValue(lit *compiler.Literal) (codec.Value, error) {
	switch lit.Kind {
	case compiler.TokString:
		return codec.String(lit.Text), nil
	case compiler.TokBool:
		return codec.Bool(lit.Text == "true"), nil
	case compiler.TokInt:
		n, err := parseInt(lit.Text)
		if err != nil {
			return codec.Value{}, err
		}
		return codec.I64(n), nil
	case compiler.TokFloat:
		f, err := parseFloat(lit.Text)
		if err != nil {
			return codec.Value{}, err
		}
		return codec.F64(f), nil
	default:
		return codec.Value{}, herrors.New(herrors.KindType, "unsupported literal kind")
	}
}

// evalPredicate evaluates a filter_ref/filter_mut argument against the
// current stream element: a bare identifier on the left of a comparison
// names one of the element's own properties rather than an outer variable.
func (it *interp) evalPredicate(e compiler.Expr, item traversal.TraversalVal) (bool, error) {
	b, ok := e.(*compiler.BoolOp)
	if !ok {
		return true, nil
	}
	switch b.Op {
	case compiler.TokAnd:
		l, err := it.evalPredicate(b.Left, item)
		if err != nil || !l {
			return false, err
		}
		return it.evalPredicate(b.Right, item)
	case compiler.TokOr:
		l, err := it.evalPredicate(b.Left, item)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return it.evalPredicate(b.Right, item)
	case compiler.TokNot:
		v, err := it.evalPredicate(b.Left, item)
		return !v, err
	case compiler.TokExists:
		_, ok := it.fieldOrScalar(b.Left, item)
		return ok, nil
	default:
		left, leftOK := it.fieldOrScalar(b.Left, item)
		right, rightOK := it.fieldOrScalar(b.Right, item)
		if !leftOK || !rightOK {
			return false, nil
		}
		return compareValues(left, right, b.Op), nil
	}
}

// fieldOrScalar resolves e against item's own properties first (for a bare
// Ident), falling back to request-scoped variables and literals.
func (it *interp) fieldOrScalar(e compiler.Expr, item traversal.TraversalVal) (codec.Value, bool) {
	if ident, ok := e.(*compiler.Ident); ok {
		if props := item.Props(); props != nil {
			if v, ok := props[ident.Name]; ok {
				return v, true
			}
		}
		if v, ok := it.vars[ident.Name]; ok {
			if cv, ok := v.(codec.Value); ok {
				return cv, true
			}
		}
		return codec.Value{}, false
	}
	v, err := it.evalScalar(e)
	if err != nil {
		return codec.Value{}, false
	}
	return v, true
}

func compareValues(a, b codec.Value, op compiler.TokenKind) bool {
	cmp := compareKind(a, b)
	switch op {
	case compiler.TokEq:
		return cmp == 0
	case compiler.TokNeq:
		return cmp != 0
	case compiler.TokLt:
		return cmp < 0
	case compiler.TokLte:
		return cmp <= 0
	case compiler.TokGt:
		return cmp > 0
	case compiler.TokGte:
		return cmp >= 0
	default:
		return false
	}
}

// compareKind returns -1/0/1. Mismatched kinds compare by their string form
// as a last resort, since HQL's comparison operators are not statically
// typed across variable boundaries.
func compareKind(a, b codec.Value) int {
	if isNumeric(a) && isNumeric(b) {
		af, bf := numericOf(a), numericOf(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := stringOf(a), stringOf(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func isNumeric(v codec.Value) bool {
	switch v.Kind {
	case codec.KindI8, codec.KindI16, codec.KindI32, codec.KindI64,
		codec.KindU8, codec.KindU16, codec.KindU32, codec.KindU64,
		codec.KindF32, codec.KindF64:
		return true
	default:
		return false
	}
}

func numericOf(v codec.Value) float64 {
	switch v.Kind {
	case codec.KindI8, codec.KindI16, codec.KindI32, codec.KindI64:
		return float64(v.I64)
	case codec.KindU8, codec.KindU16, codec.KindU32, codec.KindU64:
		return float64(v.U64)
	case codec.KindF32, codec.KindF64:
		return v.F64
	default:
		return 0
	}
}

func stringOf(v codec.Value) string {
	if v.Kind == codec.KindString {
		return v.Str
	}
	if s, ok := v.ToAny().(string); ok {
		return s
	}
	return ""
}

func idFromValue(v codec.Value) (id.ID, error) {
	switch v.Kind {
	case codec.KindUUID:
		return v.UUID, nil
	case codec.KindString:
		return id.Parse(v.Str)
	default:
		return id.Nil, herrors.New(herrors.KindType, "value is not an id")
	}
}

func floatsFromValue(v codec.Value) ([]float64, error) {
	if v.Kind != codec.KindArray {
		return nil, herrors.New(herrors.KindType, "value is not a vector")
	}
	out := make([]float64, len(v.Array))
	for i, e := range v.Array {
		out[i] = numericOf(e)
	}
	return out, nil
}

func stringArg(args []compiler.Expr, idx int) string {
	if idx >= len(args) {
		return ""
	}
	lit, ok := args[idx].(*compiler.Literal)
	if !ok {
		return ""
	}
	return lit.Text
}

func metricName(name string) { metrics.TraversalSteps.WithLabelValues(name).Inc() }
