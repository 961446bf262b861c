package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchemaDecls(t *testing.T) {
	src := `
N::Person {
	name: String,
	age: I32
}
E::Knows {
	From: Person,
	To: Person,
	since: I32
}
`
	f, err := Parse("t.hx", src)
	require.NoError(t, err)
	require.Len(t, f.Schemas, 2)
	assert.Equal(t, "Person", f.Schemas[0].Name)
	assert.Equal(t, SchemaNode, f.Schemas[0].Kind)
	assert.Equal(t, "Knows", f.Schemas[1].Name)
	assert.Equal(t, "Person", f.Schemas[1].From)
	assert.Equal(t, "Person", f.Schemas[1].To)
}

func TestParseQueryWithChainAndReturn(t *testing.T) {
	src := `
QUERY getFriends(pid: ID) => {
	friends <- n_from_id(pid).out("Knows")
	RETURN friends
}
`
	f, err := Parse("t.hx", src)
	require.NoError(t, err)
	require.Len(t, f.Queries, 1)
	q := f.Queries[0]
	assert.Equal(t, "getFriends", q.Name)
	require.Len(t, q.Params, 1)
	assert.Equal(t, "pid", q.Params[0].Name)
	require.Len(t, q.Body, 1)
	assign, ok := q.Body[0].(*Assignment)
	require.True(t, ok)
	chain, ok := assign.Expr.(*Chain)
	require.True(t, ok)
	require.Len(t, chain.Steps, 2)
	assert.Equal(t, "n_from_id", chain.Steps[0].Name)
	assert.Equal(t, "out", chain.Steps[1].Name)
	require.Len(t, q.Returns, 1)
	assert.Equal(t, "friends", q.Returns[0].Name)
}

func TestParseMCPQuery(t *testing.T) {
	src := `
MCP QUERY searchDocs(q: String) => {
	docs <- search_bm25("Doc", q, 10)
	RETURN docs
}
`
	f, err := Parse("t.hx", src)
	require.NoError(t, err)
	require.Len(t, f.Queries, 1)
	assert.True(t, f.Queries[0].MCP)
}

func TestParseObjectLiteralArg(t *testing.T) {
	src := `
QUERY addPerson(name: String) => {
	p <- add_n("Person", {name: name})
	RETURN p
}
`
	f, err := Parse("t.hx", src)
	require.NoError(t, err)
	q := f.Queries[0]
	assign := q.Body[0].(*Assignment)
	sc, ok := assign.Expr.(*StepCall)
	require.True(t, ok)
	require.Len(t, sc.Args, 2)
	obj, ok := sc.Args[1].(*ObjectLiteral)
	require.True(t, ok)
	assert.Contains(t, obj.Fields, "name")
}

func TestParseMigration(t *testing.T) {
	src := `
MIGRATION PersonV1 -> PersonV2 {
	full_name: name,
	years: age AS I64
}
`
	f, err := Parse("t.hx", src)
	require.NoError(t, err)
	require.Len(t, f.Migrations, 1)
	m := f.Migrations[0]
	assert.Equal(t, "PersonV1", m.From)
	assert.Equal(t, "PersonV2", m.To)
	require.Len(t, m.Fields, 2)
	assert.Equal(t, "I64", m.Fields[1].Recast)
}

func TestParseSyntaxErrorOnBadToken(t *testing.T) {
	_, err := Parse("t.hx", "QUERY foo(")
	assert.Error(t, err)
}

func TestParseForEach(t *testing.T) {
	src := `
QUERY sumAges(ids: ID) => {
	FOR p IN n_from_ids(ids) {
		DROP p
	}
	RETURN ids
}
`
	f, err := Parse("t.hx", src)
	require.NoError(t, err)
	q := f.Queries[0]
	fe, ok := q.Body[0].(*ForEach)
	require.True(t, ok)
	assert.Equal(t, []string{"p"}, fe.VarNames)
	require.Len(t, fe.Body, 1)
	_, ok = fe.Body[0].(*DropStmt)
	assert.True(t, ok)
}

func TestParseVariableRootedChain(t *testing.T) {
	src := `
QUERY countPeople() => {
	everyone <- n_from_type("Person")
	total <- everyone.count()
	RETURN total
}
`
	f, err := Parse("t.hx", src)
	require.NoError(t, err)
	q := f.Queries[0]
	assign := q.Body[1].(*Assignment)
	chain, ok := assign.Expr.(*Chain)
	require.True(t, ok)
	require.Len(t, chain.Steps, 2)
	assert.Equal(t, "__var", chain.Steps[0].Name)
	assert.Equal(t, "count", chain.Steps[1].Name)
}

func TestParseReturnWithPropAccess(t *testing.T) {
	src := `
QUERY getPerson(pid: ID) => {
	p <- n_from_id(pid)
	RETURN p::{name}
}
`
	f, err := Parse("t.hx", src)
	require.NoError(t, err)
	q := f.Queries[0]
	require.Len(t, q.Returns, 1)
	pa, ok := q.Returns[0].Expr.(*PropAccess)
	require.True(t, ok)
	assert.Contains(t, pa.Fields, "name")
}

func TestParseLiteralReturn(t *testing.T) {
	f, err := Parse("t.hx", `QUERY ping() => { RETURN 1 }`)
	require.NoError(t, err)
	q := f.Queries[0]
	require.Len(t, q.Returns, 1)
	assert.Equal(t, "1", q.Returns[0].Name)
	_, ok := q.Returns[0].Expr.(*Literal)
	assert.True(t, ok)
}
