package handler

import (
	"context"
	"testing"

	"github.com/helixdb/helixdb/internal/compiler"
	"github.com/helixdb/helixdb/internal/graph"
	"github.com/helixdb/helixdb/internal/kv"
	"github.com/helixdb/helixdb/internal/kv/boltkv"
	"github.com/helixdb/helixdb/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestEngine(t *testing.T, src string) *Engine {
	t.Helper()
	f, err := compiler.Parse("t.hx", src)
	require.NoError(t, err)
	sem := compiler.Analyze(f)
	require.False(t, compiler.HasErrors(sem.Diagnostics), "unexpected diagnostics: %+v", sem.Diagnostics)
	defs, err := compiler.Generate(sem)
	require.NoError(t, err)

	tables := graph.TableConfigs(nil)
	tables = append(tables, vector.TableConfigs()...)
	db, err := boltkv.Open(kv.Options{Path: t.TempDir(), Tables: tables})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := graph.NewStore(nil)
	vec := vector.New(vector.Config{})
	registry, err := NewRegistry(defs)
	require.NoError(t, err)
	return NewEngine(db, store, vec, registry, Options{})
}

const friendSrc = `
N::Person { name: String }
E::Knows { From: Person, To: Person }
QUERY addPerson(name: String) => {
	p <- add_n("Person", {name: name})
	RETURN p
}
QUERY addFriend(a: ID, b: ID) => {
	e <- add_e("Knows", a, b, {})
	RETURN e
}
MCP QUERY friendsOf(pid: ID) => {
	friends <- n_from_id(pid).out("Knows")
	RETURN friends
}
`

func TestEngineExecuteMutatingThenRead(t *testing.T) {
	engine := buildTestEngine(t, friendSrc)
	ctx := context.Background()

	respA, err := engine.Execute(ctx, "addPerson", map[string]any{"name": "Alice"})
	require.NoError(t, err)
	nodeA := respA["p"].(map[string]any)
	idA := nodeA["id"].(string)

	respB, err := engine.Execute(ctx, "addPerson", map[string]any{"name": "Bob"})
	require.NoError(t, err)
	idB := respB["p"].(map[string]any)["id"].(string)

	_, err = engine.Execute(ctx, "addFriend", map[string]any{"a": idA, "b": idB})
	require.NoError(t, err)

	rtx, items, err := engine.ExecuteForMCP(ctx, "friendsOf", map[string]any{"pid": idA})
	require.NoError(t, err)
	defer rtx.Abort()
	require.Len(t, items, 1)
	assert.Equal(t, idB, items[0].NodeID.String())
}

func TestEngineExecuteUnknownQueryErrors(t *testing.T) {
	engine := buildTestEngine(t, friendSrc)
	_, err := engine.Execute(context.Background(), "doesNotExist", nil)
	assert.Error(t, err)
}

func TestEngineExecuteMissingParamErrors(t *testing.T) {
	engine := buildTestEngine(t, friendSrc)
	_, err := engine.Execute(context.Background(), "addPerson", map[string]any{})
	assert.Error(t, err)
}

func TestExecuteForMCPRejectsNonMCPQuery(t *testing.T) {
	engine := buildTestEngine(t, friendSrc)
	_, _, err := engine.ExecuteForMCP(context.Background(), "addPerson", map[string]any{"name": "X"})
	assert.Error(t, err)
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	f, err := compiler.Parse("t.hx", `
QUERY dup() => { RETURN 1 }
`)
	require.NoError(t, err)
	sem := compiler.Analyze(f)
	require.False(t, compiler.HasErrors(sem.Diagnostics))
	defs, err := compiler.Generate(sem)
	require.NoError(t, err)
	defs = append(defs, defs[0])
	_, err = NewRegistry(defs)
	assert.Error(t, err)
}

const remapSrc = `
N::Person { name: String, age: I32 }
QUERY addPerson(name: String) => {
	p <- add_n("Person", {name: name})
	RETURN p
}
QUERY personName(pid: ID) => {
	p <- n_from_id(pid)
	RETURN p::{name}
}
QUERY personCount() => {
	everyone <- n_from_type("Person")
	total <- everyone.count()
	RETURN total
}
`

func TestEngineRemapAndVariableChain(t *testing.T) {
	engine := buildTestEngine(t, remapSrc)
	ctx := context.Background()

	resp, err := engine.Execute(ctx, "addPerson", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	pid := resp["p"].(map[string]any)["id"].(string)

	named, err := engine.Execute(ctx, "personName", map[string]any{"pid": pid})
	require.NoError(t, err)
	props := named["p"].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, "Ada", props["name"])

	counted, err := engine.Execute(ctx, "personCount", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 1, counted["total"])
}
