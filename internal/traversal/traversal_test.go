package traversal

import (
	"context"
	"testing"

	"github.com/helixdb/helixdb/internal/codec"
	"github.com/helixdb/helixdb/internal/graph"
	"github.com/helixdb/helixdb/internal/kv"
	"github.com/helixdb/helixdb/internal/kv/boltkv"
	"github.com/helixdb/helixdb/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestTraversalDB(t *testing.T) (kv.DB, *graph.Store) {
	t.Helper()
	store := graph.NewStore(nil)
	db, err := boltkv.Open(kv.Options{Path: t.TempDir(), Tables: graph.TableConfigs(nil)})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, store
}

func TestAddNAndCollectTo(t *testing.T) {
	db, store := openTestTraversalDB(t)
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	vals, err := NewWrite(wtx, store, nil).AddN("Person", codec.Properties{"name": codec.String("Alice")}).CollectTo()
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())
	require.Len(t, vals, 1)
	assert.Equal(t, "Person", vals[0].NodeLabel)
}

func TestOutNavigatesEdges(t *testing.T) {
	db, store := openTestTraversalDB(t)
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	a, err := store.AddNode(wtx, "Person", nil)
	require.NoError(t, err)
	b, err := store.AddNode(wtx, "Person", codec.Properties{"name": codec.String("Bob")})
	require.NoError(t, err)
	_, err = store.AddEdge(wtx, "Knows", a, b, nil)
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	vals, err := NewRead(rtx, store, nil).NFromID(a).Out("Knows", EdgeToNode).CollectTo()
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.Equal(t, b, vals[0].NodeID)
}

func TestFilterRefKeepsMatching(t *testing.T) {
	db, store := openTestTraversalDB(t)
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	_, err = store.AddNode(wtx, "Person", codec.Properties{"age": codec.I32(30)})
	require.NoError(t, err)
	_, err = store.AddNode(wtx, "Person", codec.Properties{"age": codec.I32(10)})
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	vals, err := NewRead(rtx, store, nil).NFromType("Person").FilterRef(func(v TraversalVal) bool {
		age, ok := v.NodeProps["age"]
		return ok && age.I64 >= 18
	}).CollectTo()
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.Equal(t, int64(30), vals[0].NodeProps["age"].I64)
}

func TestRangePaginates(t *testing.T) {
	db, store := openTestTraversalDB(t)
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := store.AddNode(wtx, "Item", nil)
		require.NoError(t, err)
	}
	require.NoError(t, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	vals, err := NewRead(rtx, store, nil).NFromType("Item").Range(1, 3).CollectTo()
	require.NoError(t, err)
	assert.Len(t, vals, 2)
}

func TestCountAndExist(t *testing.T) {
	db, store := openTestTraversalDB(t)
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	_, err = store.AddNode(wtx, "Item", nil)
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	n, err := NewRead(rtx, store, nil).NFromType("Item").Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rtx2, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx2.Abort()
	ok, err := NewRead(rtx2, store, nil).NFromType("Missing").Exist()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVecEdgeNavigatesToVector(t *testing.T) {
	store := graph.NewStore(nil)
	tables := graph.TableConfigs(nil)
	tables = append(tables, vector.TableConfigs()...)
	db, err := boltkv.Open(kv.Options{Path: t.TempDir(), Tables: tables})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	vec := vector.New(vector.Config{})
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	n, err := store.AddNode(wtx, "Doc", nil)
	require.NoError(t, err)
	v, err := vec.Insert(wtx, []float64{1, 0, 0}, "Embedding", nil)
	require.NoError(t, err)
	_, err = NewWrite(wtx, store, vec).AddE("Embeds", nil, n, v, EdgeToVec).CollectTo()
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	vals, err := NewRead(rtx, store, vec).NFromID(n).Out("Embeds", EdgeToVec).CollectTo()
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.Equal(t, KindVector, vals[0].Kind)
	assert.Equal(t, v, vals[0].VectorID)

	rtx2, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx2.Abort()
	vals, err = NewRead(rtx2, store, vec).NFromID(n).OutE("Embeds").ToV().CollectTo()
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.Equal(t, v, vals[0].VectorID)
}

func TestDropDeletesNode(t *testing.T) {
	db, store := openTestTraversalDB(t)
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	nid, err := store.AddNode(wtx, "Item", nil)
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())

	wtx2, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	_, err = NewWrite(wtx2, store, nil).NFromID(nid).Drop().CollectTo()
	require.NoError(t, err)
	require.NoError(t, wtx2.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	ok, err := NewRead(rtx, store, nil).NFromID(nid).Exist()
	require.NoError(t, err)
	assert.False(t, ok)
}
