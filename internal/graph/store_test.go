package graph

import (
	"context"
	"testing"

	"github.com/helixdb/helixdb/internal/codec"
	"github.com/helixdb/helixdb/internal/id"
	"github.com/helixdb/helixdb/internal/kv"
	"github.com/helixdb/helixdb/internal/kv/boltkv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, secondaryIndices []string) (*Store, kv.DB) {
	t.Helper()
	db, err := boltkv.Open(kv.Options{Path: t.TempDir(), Tables: TableConfigs(secondaryIndices)})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(secondaryIndices), db
}

func TestAddAndGetNode(t *testing.T) {
	store, db := openTestStore(t, nil)
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	nid, err := store.AddNode(wtx, "Person", codec.Properties{"name": codec.String("Alice")})
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	n, err := store.GetNode(rtx, nid)
	require.NoError(t, err)
	assert.Equal(t, "Person", n.Label)
	assert.Equal(t, "Alice", n.Props["name"].Str)
}

func TestGetMissingNodeErrors(t *testing.T) {
	store, db := openTestStore(t, nil)
	rtx, err := db.ReadTxn(context.Background())
	require.NoError(t, err)
	defer rtx.Abort()
	_, err = store.GetNode(rtx, id.New())
	assert.Error(t, err)
}

func TestAddEdgeAndAdjacency(t *testing.T) {
	store, db := openTestStore(t, nil)
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	a, err := store.AddNode(wtx, "Person", nil)
	require.NoError(t, err)
	b, err := store.AddNode(wtx, "Person", nil)
	require.NoError(t, err)
	eid, err := store.AddEdge(wtx, "Knows", a, b, nil)
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()

	out, err := store.Out(rtx, a, "Knows")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, eid, out[0].EdgeID)
	assert.Equal(t, b, out[0].PeerID)

	in, err := store.In(rtx, b, "Knows")
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, a, in[0].PeerID)
}

func TestSecondaryIndexLookup(t *testing.T) {
	store, db := openTestStore(t, []string{"email"})
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	nid, err := store.AddNode(wtx, "Person", codec.Properties{"email": codec.String("a@example.com")})
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	ids, err := store.NodesFromIndex(rtx, "email", codec.String("a@example.com"))
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, nid, ids[0])
}

func TestDropNodeRemovesAdjacency(t *testing.T) {
	store, db := openTestStore(t, nil)
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	a, err := store.AddNode(wtx, "Person", nil)
	require.NoError(t, err)
	b, err := store.AddNode(wtx, "Person", nil)
	require.NoError(t, err)
	_, err = store.AddEdge(wtx, "Knows", a, b, nil)
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())

	wtx2, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	require.NoError(t, store.DropNode(wtx2, a))
	require.NoError(t, wtx2.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	_, err = store.GetNode(rtx, a)
	assert.Error(t, err)
	in, err := store.In(rtx, b, "Knows")
	require.NoError(t, err)
	assert.Empty(t, in)
}

func TestMigrateNodeRelabelsAndReindexes(t *testing.T) {
	store, db := openTestStore(t, []string{"email"})
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	nid, err := store.AddNode(wtx, "PersonV1", codec.Properties{"email": codec.String("a@example.com")})
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())

	wtx2, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	require.NoError(t, store.MigrateNode(wtx2, nid, "PersonV2", codec.Properties{"email": codec.String("b@example.com")}))
	require.NoError(t, wtx2.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	n, err := store.GetNode(rtx, nid)
	require.NoError(t, err)
	assert.Equal(t, "PersonV2", n.Label)
	assert.Equal(t, "b@example.com", n.Props["email"].Str)

	stale, err := store.NodesFromIndex(rtx, "email", codec.String("a@example.com"))
	require.NoError(t, err)
	assert.Empty(t, stale)
	fresh, err := store.NodesFromIndex(rtx, "email", codec.String("b@example.com"))
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, nid, fresh[0])
}
