package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGenerate(t *testing.T, src string) []*HandlerDef {
	t.Helper()
	f, err := Parse("t.hx", src)
	require.NoError(t, err)
	sem := Analyze(f)
	require.False(t, HasErrors(sem.Diagnostics), "unexpected diagnostics: %+v", sem.Diagnostics)
	defs, err := Generate(sem)
	require.NoError(t, err)
	return defs
}

func TestGenerateLowersChainToSteps(t *testing.T) {
	defs := mustGenerate(t, `
N::Person { name: String }
E::Knows { From: Person, To: Person }
QUERY getFriends(pid: ID) => {
	friends <- n_from_id(pid).out("Knows")
	RETURN friends
}
`)
	require.Len(t, defs, 1)
	def := defs[0]
	assert.Equal(t, "getFriends", def.Name)
	assert.False(t, def.Mutating)
	require.Len(t, def.Body, 1)
	assign := def.Body[0].Assign
	require.NotNil(t, assign)
	require.Len(t, assign.Expr.Steps, 2)
	assert.Equal(t, "n_from_id", assign.Expr.Steps[0].Name)
	assert.Equal(t, "out", assign.Expr.Steps[1].Name)
	require.Len(t, def.Returns, 1)
	assert.Equal(t, "friends", def.Returns[0].Name)
}

func TestGenerateMarksMutatingQueries(t *testing.T) {
	defs := mustGenerate(t, `
N::Person { name: String }
QUERY addPerson(name: String) => {
	p <- add_n("Person", {name: name})
	RETURN p
}
`)
	require.Len(t, defs, 1)
	assert.True(t, defs[0].Mutating)
}

func TestGeneratePropagatesMCPFlag(t *testing.T) {
	defs := mustGenerate(t, `
N::Doc { text: String }
MCP QUERY searchDocs(q: String) => {
	docs <- search_bm25("Doc", q, 10)
	RETURN docs
}
`)
	require.Len(t, defs, 1)
	assert.True(t, defs[0].MCP)
}

func TestGenerateRefusesWithDiagnostics(t *testing.T) {
	f, err := Parse("t.hx", `QUERY bad() => { RETURN missing }`)
	require.NoError(t, err)
	sem := Analyze(f)
	require.True(t, HasErrors(sem.Diagnostics))
	_, err = Generate(sem)
	assert.Error(t, err)
}
