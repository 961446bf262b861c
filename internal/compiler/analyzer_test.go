package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeCleanQueryHasNoDiagnostics(t *testing.T) {
	src := `
N::Person {
	name: String
}
E::Knows {
	From: Person,
	To: Person
}
QUERY getFriends(pid: ID) => {
	friends <- n_from_id(pid).out("Knows")
	RETURN friends
}
`
	f, err := Parse("t.hx", src)
	require.NoError(t, err)
	sem := Analyze(f)
	assert.False(t, HasErrors(sem.Diagnostics), "unexpected diagnostics: %+v", sem.Diagnostics)
	assert.Contains(t, sem.Schema.Nodes, "Person")
	assert.Contains(t, sem.Schema.Edges, "Knows")
}

func TestAnalyzeUndeclaredVariableReportsError(t *testing.T) {
	src := `
QUERY bad() => {
	RETURN missing
}
`
	f, err := Parse("t.hx", src)
	require.NoError(t, err)
	sem := Analyze(f)
	assert.True(t, HasErrors(sem.Diagnostics))
}

func TestAnalyzeEdgeWithUnknownEndpointReportsError(t *testing.T) {
	src := `
E::Knows {
	From: Ghost,
	To: Ghost
}
`
	f, err := Parse("t.hx", src)
	require.NoError(t, err)
	sem := Analyze(f)
	assert.True(t, HasErrors(sem.Diagnostics))
}

func TestAnalyzeStepCannotFollowWrongKind(t *testing.T) {
	src := `
QUERY bad(pid: ID) => {
	x <- n_from_id(pid).from_n()
	RETURN x
}
`
	f, err := Parse("t.hx", src)
	require.NoError(t, err)
	sem := Analyze(f)
	assert.True(t, HasErrors(sem.Diagnostics))
}

func TestAnalyzeMCPQueryMustReturnStreamKind(t *testing.T) {
	src := `
QUERY mcpBad() => {
	RETURN 1
}
`
	f, err := Parse("t.hx", src)
	require.NoError(t, err)
	f.Queries[0].MCP = true
	sem := Analyze(f)
	assert.True(t, HasErrors(sem.Diagnostics))
}

func TestAnalyzeMissingReturnReportsError(t *testing.T) {
	src := `
QUERY noReturn() => {
	x <- add_n("Person", {})
}
`
	f, err := Parse("t.hx", src)
	require.NoError(t, err)
	sem := Analyze(f)
	assert.True(t, HasErrors(sem.Diagnostics))
}

func TestAnalyzeDuplicateSchemaReportsError(t *testing.T) {
	src := `
N::Person { name: String }
N::Person { name: String }
`
	f, err := Parse("t.hx", src)
	require.NoError(t, err)
	sem := Analyze(f)
	assert.True(t, HasErrors(sem.Diagnostics))
}
