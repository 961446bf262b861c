package compiler

import "fmt"

// HandlerDef is the declarative, interpretable lowering of one QUERY
// declaration. Since there is no source-to-source Go codegen step in this
// engine, the compiler emits a data structure that internal/handler walks
// directly at request time, rather than Go source text to be compiled.
type HandlerDef struct {
	Name     string
	Params   []Param
	Mutating bool
	MCP      bool
	Body     []LoweredStmt
	Returns  []LoweredReturn
}

// LoweredStmt is one statement of a handler body. Exactly one of its fields
// is populated, mirroring the Statement union in the AST.
type LoweredStmt struct {
	Assign  *LoweredAssign
	ForEach *LoweredForEach
	Drop    *LoweredExpr
	Expr    *LoweredExpr
}

type LoweredAssign struct {
	Name string
	Expr LoweredExpr
}

type LoweredForEach struct {
	VarNames []string
	Source   LoweredExpr
	Body     []LoweredStmt
}

// LoweredExpr is a flattened traversal chain or a scalar expression.
// Steps is nil for non-chain expressions (literals, bare identifiers,
// boolean combinators), in which case Value carries the expression tree
// directly for the interpreter to evaluate.
type LoweredExpr struct {
	Steps []LoweredStep
	Value Expr
}

type LoweredStep struct {
	Name string
	Args []Expr
}

// LoweredReturn is one RETURN entry, optionally remapped via PropAccess.
// A Fields value is a bare identifier (field rename or parameter
// substitution), a literal, or a sub-traversal run per item at
// serialization time.
type LoweredReturn struct {
	Name     string
	Expr     LoweredExpr
	Fields   map[string]Expr
	Excludes []string
}

// Generate lowers sf into one HandlerDef per query. sf must have no
// error-severity diagnostics; Generate does not re-validate.
func Generate(sf *SemFile) ([]*HandlerDef, error) {
	if HasErrors(sf.Diagnostics) {
		return nil, fmt.Errorf("compiler: refusing to generate handlers with unresolved diagnostics")
	}
	defs := make([]*HandlerDef, 0, len(sf.AST.Queries))
	for _, q := range sf.AST.Queries {
		defs = append(defs, lowerQuery(q))
	}
	return defs, nil
}

func lowerQuery(q *QueryDecl) *HandlerDef {
	def := &HandlerDef{Name: q.Name, Params: q.Params, MCP: q.MCP}
	def.Body = lowerStatements(q.Body)
	def.Mutating = bodyIsMutating(def.Body)
	for _, r := range q.Returns {
		lr := LoweredReturn{Name: r.Name, Expr: lowerExpr(r.Expr)}
		if pa, ok := r.Expr.(*PropAccess); ok {
			lr.Expr = lowerExpr(pa.Target)
			lr.Fields = pa.Fields
			lr.Excludes = pa.Excludes
		}
		def.Returns = append(def.Returns, lr)
	}
	return def
}

func lowerStatements(stmts []Statement) []LoweredStmt {
	out := make([]LoweredStmt, 0, len(stmts))
	for _, s := range stmts {
		switch st := s.(type) {
		case *Assignment:
			e := lowerExpr(st.Expr)
			out = append(out, LoweredStmt{Assign: &LoweredAssign{Name: st.Name, Expr: e}})
		case *ForEach:
			e := lowerExpr(st.Source)
			out = append(out, LoweredStmt{ForEach: &LoweredForEach{
				VarNames: st.VarNames,
				Source:   e,
				Body:     lowerStatements(st.Body),
			}})
		case *DropStmt:
			e := lowerExpr(st.Expr)
			out = append(out, LoweredStmt{Drop: &e})
		case *ExprStatement:
			e := lowerExpr(st.Expr)
			out = append(out, LoweredStmt{Expr: &e})
		}
	}
	return out
}

// lowerExpr flattens a Chain into an ordered step list and a bare step
// call (other than an array literal) into a one-step list; every other
// expression kind is carried as-is for the interpreter to evaluate
// directly. Statements lower one-to-one, in source order, with no
// reordering or merging across statement boundaries.
func lowerExpr(e Expr) LoweredExpr {
	if sc, ok := e.(*StepCall); ok && sc.Name != "__array" {
		return LoweredExpr{Steps: []LoweredStep{{Name: sc.Name, Args: sc.Args}}}
	}
	chain, ok := e.(*Chain)
	if !ok {
		return LoweredExpr{Value: e}
	}
	steps := make([]LoweredStep, 0, len(chain.Steps))
	for _, sc := range chain.Steps {
		steps = append(steps, LoweredStep{Name: sc.Name, Args: sc.Args})
	}
	return LoweredExpr{Steps: steps}
}

// bodyIsMutating reports whether any step or DROP in body requires a write
// transaction; nothing else ever decides the transaction's mutability.
func bodyIsMutating(body []LoweredStmt) bool {
	for _, s := range body {
		switch {
		case s.Drop != nil:
			return true
		case s.Assign != nil:
			if exprIsMutating(s.Assign.Expr) {
				return true
			}
		case s.Expr != nil:
			if exprIsMutating(*s.Expr) {
				return true
			}
		case s.ForEach != nil:
			if exprIsMutating(s.ForEach.Source) || bodyIsMutating(s.ForEach.Body) {
				return true
			}
		}
	}
	return false
}

func exprIsMutating(e LoweredExpr) bool {
	for _, step := range e.Steps {
		if IsMutating(step.Name) {
			return true
		}
	}
	return false
}
