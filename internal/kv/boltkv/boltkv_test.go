package boltkv

import (
	"context"
	"testing"

	"github.com/helixdb/helixdb/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(kv.Options{
		Path: t.TempDir(),
		Tables: []kv.TableConfig{
			{Name: "things"},
			{Name: "dups", DupSorted: true, DupValueLen: 4},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	require.NoError(t, wtx.Put("things", []byte("k1"), []byte("v1")))
	require.NoError(t, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	v, err := rtx.Get("things", []byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)
}

func TestGetMissingKeyReturnsNil(t *testing.T) {
	db := openTestDB(t)
	rtx, err := db.ReadTxn(context.Background())
	require.NoError(t, err)
	defer rtx.Abort()
	v, err := rtx.Get("things", []byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDupSortedPutAndIterate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	require.NoError(t, wtx.PutDup("dups", []byte("group"), []byte("bbbb")))
	require.NoError(t, wtx.PutDup("dups", []byte("group"), []byte("aaaa")))
	require.NoError(t, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	vals, err := rtx.GetDuplicates("dups", []byte("group"))
	require.NoError(t, err)
	require.Len(t, vals, 2)
	// Stored in sorted order: "aaaa" < "bbbb".
	assert.Equal(t, []byte("aaaa"), vals[0])
	assert.Equal(t, []byte("bbbb"), vals[1])
}

func TestDeleteRemovesKey(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	require.NoError(t, wtx.Put("things", []byte("k"), []byte("v")))
	require.NoError(t, wtx.Commit())

	wtx2, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	require.NoError(t, wtx2.Delete("things", []byte("k")))
	require.NoError(t, wtx2.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	v, err := rtx.Get("things", []byte("k"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestAbortDiscardsWrites(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	require.NoError(t, wtx.Put("things", []byte("k"), []byte("v")))
	wtx.Abort()

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	v, err := rtx.Get("things", []byte("k"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestIterWalksAllKeys(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	require.NoError(t, wtx.Put("things", []byte("a"), []byte("1")))
	require.NoError(t, wtx.Put("things", []byte("b"), []byte("2")))
	require.NoError(t, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	it, err := rtx.Iter("things")
	require.NoError(t, err)
	defer it.Close()
	count := 0
	for it.Next() {
		count++
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 2, count)
}
