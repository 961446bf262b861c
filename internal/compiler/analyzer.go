package compiler

import "fmt"

// SchemaTable is the analyzer's resolved view of every N::/E::/V::
// declaration, keyed by name.
type SchemaTable struct {
	Nodes   map[string]*SchemaDecl
	Edges   map[string]*SchemaDecl
	Vectors map[string]*SchemaDecl
}

// SemFile is the analyzer's output: the parsed AST plus the resolved
// schema table and the collected diagnostics, ready for code generation. Any
// error-severity Diagnostic means code generation must not run.
type SemFile struct {
	AST         *File
	Schema      *SchemaTable
	Diagnostics []Diagnostic
}

type scope struct {
	parent *scope
	vars   map[string]ValueKind
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, vars: map[string]ValueKind{}}
}

func (s *scope) declare(name string, kind ValueKind) { s.vars[name] = kind }

func (s *scope) lookup(name string) (ValueKind, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if k, ok := cur.vars[name]; ok {
			return k, true
		}
	}
	return VKUnknown, false
}

// Analyze walks f, builds the schema table, and type-checks every query
// body, returning a SemFile whose Diagnostics record every problem found.
func Analyze(f *File) *SemFile {
	sf := &SemFile{AST: f, Schema: &SchemaTable{Nodes: map[string]*SchemaDecl{}, Edges: map[string]*SchemaDecl{}, Vectors: map[string]*SchemaDecl{}}}

	for _, s := range f.Schemas {
		sf.analyzeSchemaDecl(s)
	}
	sf.resolveEdgeEndpoints()
	for _, q := range f.Queries {
		sf.analyzeQuery(q)
	}
	return sf
}

func (sf *SemFile) report(pos Pos, format string, args ...any) {
	sf.Diagnostics = append(sf.Diagnostics, Diagnostic{Severity: SevError, Message: fmt.Sprintf(format, args...), Pos: pos})
}

func (sf *SemFile) analyzeSchemaDecl(s *SchemaDecl) {
	var table map[string]*SchemaDecl
	switch s.Kind {
	case SchemaNode:
		table = sf.Schema.Nodes
	case SchemaEdge:
		table = sf.Schema.Edges
	case SchemaVector:
		table = sf.Schema.Vectors
	}
	if _, exists := table[s.Name]; exists {
		sf.report(s.Pos, "duplicate schema declaration %q", s.Name)
		return
	}
	seen := map[string]bool{}
	for _, field := range s.Fields {
		if field.Name == "id" {
			sf.report(field.Pos, "%q is a reserved field name", "id")
			continue
		}
		if seen[field.Name] {
			sf.report(field.Pos, "duplicate field %q in schema %q", field.Name, s.Name)
			continue
		}
		seen[field.Name] = true
	}
	if s.Kind == SchemaEdge {
		if s.From == "" || s.To == "" {
			sf.report(s.Pos, "edge schema %q must declare From and To", s.Name)
		}
	}
	table[s.Name] = s
}

// resolveEdgeEndpoints is run after every schema is registered so forward
// references between node/vector declarations are allowed.
func (sf *SemFile) resolveEdgeEndpoints() {
	for _, e := range sf.Schema.Edges {
		sf.checkEndpoint(e, "From", e.From)
		sf.checkEndpoint(e, "To", e.To)
	}
}

func (sf *SemFile) checkEndpoint(e *SchemaDecl, which, name string) {
	if name == "" {
		return
	}
	if _, ok := sf.Schema.Nodes[name]; ok {
		return
	}
	if _, ok := sf.Schema.Vectors[name]; ok {
		return
	}
	sf.report(e.Pos, "edge %q: %s endpoint %q is not a declared node or vector schema", e.Name, which, name)
}

func (sf *SemFile) analyzeQuery(q *QueryDecl) {
	sc := newScope(nil)
	for _, param := range q.Params {
		sc.declare(param.Name, paramValueKind(param.Type))
	}
	sf.analyzeStatements(q.Body, sc)

	if len(q.Returns) == 0 {
		sf.report(q.Pos, "query %q has no RETURN clause", q.Name)
	}
	if q.MCP {
		if len(q.Returns) != 1 {
			sf.report(q.Pos, "MCP query %q must return exactly one value", q.Name)
		} else {
			kind, _ := sf.exprKind(q.Returns[0].Expr, sc)
			if kind != VKNode && kind != VKEdge && kind != VKVector {
				sf.report(q.Returns[0].Pos, "MCP query %q must return a node, edge, or vector", q.Name)
			}
		}
	}
	for _, r := range q.Returns {
		sf.exprKind(r.Expr, sc)
	}
}

func paramValueKind(typ string) ValueKind {
	switch typ {
	case "ID":
		return VKValue
	default:
		return VKValue
	}
}

func (sf *SemFile) analyzeStatements(stmts []Statement, sc *scope) {
	for _, s := range stmts {
		switch st := s.(type) {
		case *Assignment:
			kind, _ := sf.exprKind(st.Expr, sc)
			sc.declare(st.Name, kind)
		case *ForEach:
			srcKind, _ := sf.exprKind(st.Source, sc)
			inner := newScope(sc)
			if len(st.VarNames) == 1 {
				inner.declare(st.VarNames[0], elementKind(srcKind))
			} else {
				for _, n := range st.VarNames {
					inner.declare(n, VKValue)
				}
			}
			sf.analyzeStatements(st.Body, inner)
		case *DropStmt:
			kind, _ := sf.exprKind(st.Expr, sc)
			if kind != VKNode && kind != VKEdge && kind != VKVector && kind != VKUnknown {
				sf.report(st.Pos, "DROP requires a traversal-producing expression")
			}
		case *ExprStatement:
			sf.exprKind(st.Expr, sc)
		}
	}
}

func elementKind(collectionKind ValueKind) ValueKind {
	return collectionKind
}

// exprKind type-checks expr against scope, reporting diagnostics for
// undeclared identifiers and type-incompatible step chains, and returns its
// resulting ValueKind.
func (sf *SemFile) exprKind(expr Expr, sc *scope) (ValueKind, bool) {
	switch e := expr.(type) {
	case *Literal:
		return VKValue, true
	case *Ident:
		if kind, ok := sc.lookup(e.Name); ok {
			return kind, true
		}
		sf.report(e.Pos, "undeclared variable %q", e.Name)
		return VKUnknown, false
	case *StepCall:
		return sf.stepKind(e, VKUnknown, true, sc)
	case *Chain:
		cur := VKUnknown
		isSource := true
		for _, step := range e.Steps {
			k, ok := sf.stepKind(step, cur, isSource, sc)
			if !ok {
				return VKUnknown, false
			}
			cur = k
			isSource = false
		}
		return cur, true
	case *BoolOp:
		if e.Right != nil {
			sf.exprKind(e.Right, sc)
		}
		if e.Left != nil {
			sf.exprKind(e.Left, sc)
		}
		return VKBool, true
	case *PropAccess:
		return sf.exprKind(e.Target, sc)
	case *ObjectLiteral:
		for _, v := range e.Fields {
			sf.exprKind(v, sc)
		}
		return VKValue, true
	default:
		return VKUnknown, true
	}
}

// predicateSteps take a boolean expression referring to the current
// upstream element's own fields (e.g. `filter_ref(name == "Bob")`), not to
// outer variables, so their arguments are evaluated against the implicit
// per-element scope at run time and must not be scope-checked here.
var predicateSteps = map[string]bool{"filter_ref": true, "filter_mut": true, "map": true}

func (sf *SemFile) stepKind(call *StepCall, inputKind ValueKind, isSource bool, sc *scope) (ValueKind, bool) {
	if call.Name == "__var" {
		// Synthetic chain root: a bound variable re-entering the algebra.
		ident := call.Args[0].(*Ident)
		if !isSource {
			sf.report(call.Pos, "variable %q may only begin a traversal chain", ident.Name)
			return VKUnknown, false
		}
		kind, ok := sc.lookup(ident.Name)
		if !ok {
			sf.report(ident.Pos, "undeclared variable %q", ident.Name)
			return VKUnknown, false
		}
		return kind, true
	}
	if !predicateSteps[call.Name] {
		for i, arg := range call.Args {
			if call.Name == "search_v" && i == 3 {
				// The optional fourth argument is a per-candidate predicate
				// over the vector's own properties, not outer scope.
				continue
			}
			sf.exprKind(arg, sc)
		}
	}
	sig, known := stepTable[call.Name]
	if !known {
		// Unrecognized step names are treated as user-defined helpers
		// (e.g. a named sub-traversal) rather than rejected outright.
		return VKUnknown, true
	}
	if len(sig.validInputs) == 0 {
		if !isSource {
			sf.report(call.Pos, "step %q may only begin a traversal chain", call.Name)
			return VKUnknown, false
		}
		return sig.output, true
	}
	if isSource {
		sf.report(call.Pos, "step %q requires a preceding traversal", call.Name)
		return VKUnknown, false
	}
	if inputKind != VKUnknown && !containsKind(sig.validInputs, inputKind) {
		sf.report(call.Pos, "step %q cannot follow a %s-producing step", call.Name, inputKind)
		return VKUnknown, false
	}
	if sig.output == VKUnknown {
		return inputKind, true
	}
	return sig.output, true
}

func containsKind(ks []ValueKind, k ValueKind) bool {
	for _, x := range ks {
		if x == k {
			return true
		}
	}
	return false
}
