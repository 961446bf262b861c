package vector

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

func openTestVectorDB(t *testing.T) kv.DB {
	t.Helper()
	db, err := boltkv.Open(kv.Options{Path: t.TempDir(), Tables: TableConfigs()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNormalizeDefaultsAndClamps(t *testing.T) {
	cfg := Normalize(Config{})
	assert.Equal(t, DefaultM, cfg.M)
	assert.Equal(t, DefaultEfConstruction, cfg.EfConstruction)
	assert.Equal(t, DefaultEfSearch, cfg.EfSearch)

	cfg = Normalize(Config{M: 1000, EfConstruction: 1, EfSearch: 1})
	assert.Equal(t, maxM, cfg.M)
	assert.Equal(t, minEf, cfg.EfConstruction)
	assert.Equal(t, minEf, cfg.EfSearch)
}

func TestInsertAndSearchFindsNearest(t *testing.T) {
	db := openTestVectorDB(t)
	ix := New(Config{M: 8, EfConstruction: 32, EfSearch: 32})
	ctx := context.Background()

	vecs := [][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{0.9, 0.1, 0},
	}
	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	var ids []string
	for _, v := range vecs {
		vid, err := ix.Insert(wtx, v, "Doc", nil)
		require.NoError(t, err)
		ids = append(ids, vid.String())
	}
	require.NoError(t, wtx.Commit())
	require.Len(t, ids, 4)

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	results, err := ix.Search(rtx, []float64{1, 0, 0}, 2, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Less(t, results[0].Distance, results[1].Distance)
}

func TestSearchRespectsLabelFilter(t *testing.T) {
	db := openTestVectorDB(t)
	ix := New(Config{})
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	_, err = ix.Insert(wtx, []float64{1, 0}, "A", nil)
	require.NoError(t, err)
	_, err = ix.Insert(wtx, []float64{1, 0}, "B", nil)
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	results, err := ix.Search(rtx, []float64{1, 0}, 10, SearchOptions{Label: "A"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].Label)
}

func TestDeleteRemovesVector(t *testing.T) {
	db := openTestVectorDB(t)
	ix := New(Config{})
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	vid, err := ix.Insert(wtx, []float64{1, 0}, "A", nil)
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())

	wtx2, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	require.NoError(t, ix.Delete(wtx2, vid))
	require.NoError(t, wtx2.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	results, err := ix.Search(rtx, []float64{1, 0}, 10, SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteAlreadyDeletedErrors(t *testing.T) {
	db := openTestVectorDB(t)
	ix := New(Config{})
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	vid, err := ix.Insert(wtx, []float64{1, 0}, "A", nil)
	require.NoError(t, err)
	require.NoError(t, ix.Delete(wtx, vid))
	require.NoError(t, wtx.Commit())

	wtx2, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	defer wtx2.Abort()
	err = ix.Delete(wtx2, vid)
	assert.Error(t, err)
}

func TestSoftDeleteHidesVectorFromSearch(t *testing.T) {
	db := openTestVectorDB(t)
	ix := New(Config{})
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	vid, err := ix.Insert(wtx, []float64{1, 0}, "A", nil)
	require.NoError(t, err)
	keep, err := ix.Insert(wtx, []float64{0, 1}, "A", nil)
	require.NoError(t, err)
	require.NoError(t, ix.SoftDelete(wtx, vid))
	require.NoError(t, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	results, err := ix.Search(rtx, []float64{1, 0}, 10, SearchOptions{HonorSoftDelete: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, keep, results[0].ID)

	_, err = ix.Get(rtx, vid)
	assert.Error(t, err)

	wtx2, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	defer wtx2.Abort()
	assert.Error(t, ix.SoftDelete(wtx2, vid))
}

func TestBruteForceSearchOrdersByDistance(t *testing.T) {
	db := openTestVectorDB(t)
	ix := New(Config{})
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	far, err := ix.Insert(wtx, []float64{0, 1}, "A", codec.Properties{})
	require.NoError(t, err)
	near, err := ix.Insert(wtx, []float64{1, 0.01}, "A", codec.Properties{})
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	results, err := ix.BruteForceSearch(rtx, []id.ID{near, far}, []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, near, results[0].ID)
	assert.Equal(t, far, results[1].ID)
}

func BenchmarkInsert(b *testing.B) {
	db, err := boltkv.Open(kv.Options{Path: b.TempDir(), Tables: TableConfigs()})
	require.NoError(b, err)
	defer db.Close()
	ix := New(Config{M: 8, EfConstruction: 32, EfSearch: 32})
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(b, err)
	defer wtx.Abort()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v := []float64{float64(i % 17), float64(i % 13), float64(i % 7), float64(i % 5)}
		if _, err := ix.Insert(wtx, v, "Bench", nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSearch(b *testing.B) {
	db, err := boltkv.Open(kv.Options{Path: b.TempDir(), Tables: TableConfigs()})
	require.NoError(b, err)
	defer db.Close()
	ix := New(Config{M: 8, EfConstruction: 32, EfSearch: 64})
	ctx := context.Background()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(b, err)
	for i := 0; i < 1000; i++ {
		v := []float64{float64(i % 17), float64(i % 13), float64(i % 7), float64(i % 5)}
		if _, err := ix.Insert(wtx, v, "Bench", nil); err != nil {
			b.Fatal(err)
		}
	}
	require.NoError(b, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(b, err)
	defer rtx.Abort()
	query := []float64{1, 2, 3, 4}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ix.Search(rtx, query, 10, SearchOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}
