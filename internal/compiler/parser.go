package compiler

import (
	"fmt"

	"github.com/helixdb/helixdb/internal/herrors"
)

// Parser is a recursive-descent parser over a pre-lexed token stream.
type Parser struct {
	file string
	toks []Token
	pos  int
}

// NewParser builds a Parser over toks (as produced by Tokenize).
func NewParser(file string, toks []Token) *Parser {
	return &Parser{file: file, toks: toks}
}

// Parse parses toks into a File, or returns the first syntax error.
func Parse(file, src string) (*File, error) {
	toks, err := Tokenize(file, src)
	if err != nil {
		return nil, err
	}
	return NewParser(file, toks).ParseFile()
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) peekN(n int) Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *Parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) errf(format string, args ...any) error {
	return herrors.New(herrors.KindCompile, fmt.Sprintf("%s: %s", p.cur().Pos, fmt.Sprintf(format, args...)))
}

func (p *Parser) expect(k TokenKind, what string) (Token, error) {
	if p.cur().Kind != k {
		return Token{}, p.errf("expected %s, got %q", what, p.cur().Text)
	}
	return p.advance(), nil
}

// ParseFile parses the whole token stream as a sequence of schema and query
// declarations.
func (p *Parser) ParseFile() (*File, error) {
	f := &File{}
	for p.cur().Kind != TokEOF {
		switch {
		case p.cur().Kind == TokIdent && (p.cur().Text == "N" || p.cur().Text == "E" || p.cur().Text == "V") && p.peekN(1).Kind == TokColonColon:
			decl, err := p.parseSchema()
			if err != nil {
				return nil, err
			}
			f.Schemas = append(f.Schemas, decl)
		case p.cur().Kind == TokQuery:
			q, err := p.parseQuery()
			if err != nil {
				return nil, err
			}
			f.Queries = append(f.Queries, q)
		case p.cur().Kind == TokMCP:
			p.advance()
			q, err := p.parseQuery()
			if err != nil {
				return nil, err
			}
			q.MCP = true
			f.Queries = append(f.Queries, q)
		case p.cur().Kind == TokMigration:
			m, err := p.parseMigration()
			if err != nil {
				return nil, err
			}
			f.Migrations = append(f.Migrations, m)
		default:
			return nil, p.errf("expected schema or query declaration, got %q", p.cur().Text)
		}
	}
	return f, nil
}

func (p *Parser) parseSchema() (*SchemaDecl, error) {
	pos := p.cur().Pos
	kindTok := p.advance()
	var kind SchemaKind
	switch kindTok.Text {
	case "N":
		kind = SchemaNode
	case "E":
		kind = SchemaEdge
	case "V":
		kind = SchemaVector
	}
	if _, err := p.expect(TokColonColon, "'::'"); err != nil {
		return nil, err
	}
	name, err := p.expect(TokIdent, "schema name")
	if err != nil {
		return nil, err
	}
	decl := &SchemaDecl{Kind: kind, Name: name.Text, Pos: pos}

	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	for p.cur().Kind != TokRBrace {
		fieldName, err := p.expect(TokIdent, "field name")
		if err != nil {
			return nil, err
		}
		if kind == SchemaEdge && (fieldName.Text == "From" || fieldName.Text == "To") {
			if _, err := p.expect(TokColon, "':'"); err != nil {
				return nil, err
			}
			typ, err := p.expect(TokIdent, "type name")
			if err != nil {
				return nil, err
			}
			if fieldName.Text == "From" {
				decl.From = typ.Text
			} else {
				decl.To = typ.Text
			}
		} else {
			if _, err := p.expect(TokColon, "':'"); err != nil {
				return nil, err
			}
			typ, err := p.expect(TokIdent, "type name")
			if err != nil {
				return nil, err
			}
			decl.Fields = append(decl.Fields, FieldDecl{Name: fieldName.Text, Type: typ.Text, Pos: fieldName.Pos})
		}
		if p.cur().Kind == TokComma {
			p.advance()
		}
	}
	if _, err := p.expect(TokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return decl, nil
}

// parseMigration parses `MIGRATION From -> To { new: old [AS Type], ... }`.
func (p *Parser) parseMigration() (*MigrationDecl, error) {
	pos := p.cur().Pos
	p.advance() // MIGRATION
	from, err := p.expect(TokIdent, "source schema name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokArrow, "'->'"); err != nil {
		return nil, err
	}
	to, err := p.expect(TokIdent, "target schema name")
	if err != nil {
		return nil, err
	}
	m := &MigrationDecl{From: from.Text, To: to.Text, Pos: pos}
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	for p.cur().Kind != TokRBrace {
		newField, err := p.expect(TokIdent, "new field name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon, "':'"); err != nil {
			return nil, err
		}
		oldField, err := p.expect(TokIdent, "old field name")
		if err != nil {
			return nil, err
		}
		fm := MigrationFieldMap{NewField: newField.Text, OldField: oldField.Text, Pos: newField.Pos}
		if p.cur().Kind == TokAs {
			p.advance()
			typ, err := p.expect(TokIdent, "recast type")
			if err != nil {
				return nil, err
			}
			fm.Recast = typ.Text
		}
		m.Fields = append(m.Fields, fm)
		if p.cur().Kind == TokComma {
			p.advance()
		}
	}
	if _, err := p.expect(TokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *Parser) parseQuery() (*QueryDecl, error) {
	pos := p.cur().Pos
	if _, err := p.expect(TokQuery, "QUERY"); err != nil {
		return nil, err
	}
	name, err := p.expect(TokIdent, "query name")
	if err != nil {
		return nil, err
	}
	q := &QueryDecl{Name: name.Text, Pos: pos}

	if _, err := p.expect(TokLParen, "'('"); err != nil {
		return nil, err
	}
	for p.cur().Kind != TokRParen {
		pname, err := p.expect(TokIdent, "parameter name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon, "':'"); err != nil {
			return nil, err
		}
		ptype, err := p.expect(TokIdent, "parameter type")
		if err != nil {
			return nil, err
		}
		q.Params = append(q.Params, Param{Name: pname.Text, Type: ptype.Text, Pos: pname.Pos})
		if p.cur().Kind == TokComma {
			p.advance()
		}
	}
	if _, err := p.expect(TokRParen, "')'"); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokArrow, "'=>'"); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	body, returns, err := p.parseBlockBody()
	if err != nil {
		return nil, err
	}
	q.Body = body
	q.Returns = returns
	if _, err := p.expect(TokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return q, nil
}

// parseBlockBody parses statements until RETURN or the closing brace,
// consuming a trailing RETURN clause if present.
func (p *Parser) parseBlockBody() ([]Statement, []ReturnItem, error) {
	var stmts []Statement
	for p.cur().Kind != TokRBrace && p.cur().Kind != TokReturn {
		s, err := p.parseStatement()
		if err != nil {
			return nil, nil, err
		}
		stmts = append(stmts, s)
	}
	var returns []ReturnItem
	if p.cur().Kind == TokReturn {
		p.advance()
		for {
			r, err := p.parseReturnItem()
			if err != nil {
				return nil, nil, err
			}
			returns = append(returns, r)
			if p.cur().Kind == TokComma {
				p.advance()
				continue
			}
			break
		}
	}
	return stmts, returns, nil
}

func (p *Parser) parseReturnItem() (ReturnItem, error) {
	pos := p.cur().Pos
	if k := p.cur().Kind; k == TokInt || k == TokFloat || k == TokString || k == TokBool {
		// Literal return: the response key is the literal's own text.
		lit := p.advance()
		return ReturnItem{Name: lit.Text, Expr: &Literal{Kind: lit.Kind, Text: lit.Text, Pos: lit.Pos}, Pos: pos}, nil
	}
	name, err := p.expect(TokIdent, "return name")
	if err != nil {
		return ReturnItem{}, err
	}
	item := ReturnItem{Name: name.Text, Pos: pos}
	if p.cur().Kind == TokColon {
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return ReturnItem{}, err
		}
		item.Expr = expr
	} else {
		item.Expr = &Ident{Name: name.Text, Pos: pos}
		for p.cur().Kind == TokColonColon {
			p.advance()
			pa, err := p.parsePropAccess(item.Expr, pos)
			if err != nil {
				return ReturnItem{}, err
			}
			item.Expr = pa
		}
	}
	return item, nil
}

func (p *Parser) parseStatement() (Statement, error) {
	pos := p.cur().Pos
	switch p.cur().Kind {
	case TokFor:
		return p.parseForEach()
	case TokDrop:
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &DropStmt{Expr: expr, Pos: pos}, nil
	case TokIdent:
		if p.peekN(1).Kind == TokAssign {
			name := p.advance()
			p.advance() // <-
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return &Assignment{Name: name.Text, Expr: expr, Pos: pos}, nil
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ExprStatement{Expr: expr, Pos: pos}, nil
	default:
		return nil, p.errf("unexpected token %q in statement", p.cur().Text)
	}
}

func (p *Parser) parseForEach() (Statement, error) {
	pos := p.cur().Pos
	p.advance() // FOR
	var names []string
	if p.cur().Kind == TokLBrace {
		p.advance()
		for p.cur().Kind != TokRBrace {
			n, err := p.expect(TokIdent, "destructure field")
			if err != nil {
				return nil, err
			}
			names = append(names, n.Text)
			if p.cur().Kind == TokComma {
				p.advance()
			}
		}
		p.advance() // }
	} else {
		n, err := p.expect(TokIdent, "loop variable")
		if err != nil {
			return nil, err
		}
		names = []string{n.Text}
	}
	if _, err := p.expect(TokIn, "IN"); err != nil {
		return nil, err
	}
	src, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	body, _, err := p.parseBlockBody()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return &ForEach{VarNames: names, Source: src, Body: body, Pos: pos}, nil
}

// parseExpr parses a boolean-or expression, the loosest-binding level.
func (p *Parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == TokOr {
		pos := p.cur().Pos
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BoolOp{Op: TokOr, Left: left, Right: right, Pos: pos}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == TokAnd {
		pos := p.cur().Pos
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BoolOp{Op: TokAnd, Left: left, Right: right, Pos: pos}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	switch p.cur().Kind {
	case TokNot:
		pos := p.cur().Pos
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &BoolOp{Op: TokNot, Left: operand, Pos: pos}, nil
	case TokExists:
		pos := p.cur().Pos
		p.advance()
		if _, err := p.expect(TokLParen, "'('"); err != nil {
			return nil, err
		}
		operand, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, "')'"); err != nil {
			return nil, err
		}
		return &BoolOp{Op: TokExists, Left: operand, Pos: pos}, nil
	default:
		return p.parseComparison()
	}
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseChain()
	if err != nil {
		return nil, err
	}
	switch p.cur().Kind {
	case TokEq, TokNeq, TokLt, TokLte, TokGt, TokGte:
		op := p.cur().Kind
		pos := p.cur().Pos
		p.advance()
		right, err := p.parseChain()
		if err != nil {
			return nil, err
		}
		return &BoolOp{Op: op, Left: left, Right: right, Pos: pos}, nil
	}
	return left, nil
}

// parseChain parses a primary expression followed by zero or more
// `.step(args)`, `::{...}` suffixes.
func (p *Parser) parseChain() (Expr, error) {
	primary, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	var steps []*StepCall
	if sc, ok := primary.(*StepCall); ok {
		steps = append(steps, sc)
	}

	var result Expr = primary
	for {
		switch p.cur().Kind {
		case TokDot:
			p.advance()
			name, err := p.expect(TokIdent, "step name")
			if err != nil {
				return nil, err
			}
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			if len(steps) == 0 {
				if ident, ok := primary.(*Ident); ok {
					// A chain rooted at a bound variable re-enters the
					// algebra from that variable's materialized values.
					steps = append(steps, &StepCall{Name: "__var", Args: []Expr{ident}, Pos: ident.Pos})
				}
			}
			sc := &StepCall{Name: name.Text, Args: args, Pos: name.Pos}
			steps = append(steps, sc)
			result = &Chain{Steps: steps, Pos: steps[0].Pos}
		case TokColonColon:
			pos := p.cur().Pos
			p.advance()
			pa, err := p.parsePropAccess(result, pos)
			if err != nil {
				return nil, err
			}
			result = pa
		default:
			return result, nil
		}
	}
}

func (p *Parser) parsePropAccess(target Expr, pos Pos) (Expr, error) {
	pa := &PropAccess{Target: target, Fields: map[string]Expr{}, Pos: pos}
	excluded := false
	if p.cur().Kind == TokBang {
		excluded = true
		p.advance()
	}
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	for p.cur().Kind != TokRBrace {
		field, err := p.expect(TokIdent, "field name")
		if err != nil {
			return nil, err
		}
		if excluded {
			pa.Excludes = append(pa.Excludes, field.Text)
		} else if p.cur().Kind == TokColon {
			p.advance()
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			pa.Fields[field.Text] = val
		} else {
			pa.Fields[field.Text] = &Ident{Name: field.Text, Pos: field.Pos}
		}
		if p.cur().Kind == TokComma {
			p.advance()
		}
	}
	if _, err := p.expect(TokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return pa, nil
}

func (p *Parser) parseCallArgs() ([]Expr, error) {
	if _, err := p.expect(TokLParen, "'('"); err != nil {
		return nil, err
	}
	var args []Expr
	for p.cur().Kind != TokRParen {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.cur().Kind == TokComma {
			p.advance()
		}
	}
	if _, err := p.expect(TokRParen, "')'"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.cur()
	switch tok.Kind {
	case TokInt, TokFloat, TokString, TokBool:
		p.advance()
		return &Literal{Kind: tok.Kind, Text: tok.Text, Pos: tok.Pos}, nil
	case TokLBracket:
		return p.parseArrayLiteral()
	case TokLBrace:
		return p.parseObjectLiteral()
	case TokIdent:
		if p.peekN(1).Kind == TokLParen {
			p.advance()
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			return &StepCall{Name: tok.Text, Args: args, Pos: tok.Pos}, nil
		}
		p.advance()
		return &Ident{Name: tok.Text, Pos: tok.Pos}, nil
	case TokLParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return nil, p.errf("unexpected token %q in expression", tok.Text)
}

func (p *Parser) parseObjectLiteral() (Expr, error) {
	pos := p.cur().Pos
	p.advance() // {
	obj := &ObjectLiteral{Fields: map[string]Expr{}, Pos: pos}
	for p.cur().Kind != TokRBrace {
		name, err := p.expect(TokIdent, "field name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon, "':'"); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		obj.Fields[name.Text] = val
		if p.cur().Kind == TokComma {
			p.advance()
		}
	}
	if _, err := p.expect(TokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return obj, nil
}

func (p *Parser) parseArrayLiteral() (Expr, error) {
	pos := p.cur().Pos
	p.advance() // [
	var elems []Expr
	for p.cur().Kind != TokRBracket {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if p.cur().Kind == TokComma {
			p.advance()
		}
	}
	p.advance() // ]
	return &StepCall{Name: "__array", Args: elems, Pos: pos}, nil
}
