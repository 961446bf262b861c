package bm25

import (
	"context"
	"testing"

	"github.com/helixdb/helixdb/internal/id"
	"github.com/helixdb/helixdb/internal/kv"
	"github.com/helixdb/helixdb/internal/kv/boltkv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBM25DB(t *testing.T) kv.DB {
	t.Helper()
	db, err := boltkv.Open(kv.Options{Path: t.TempDir(), Tables: TableConfigs()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTokenizeLowercasesAndDropsShortTokens(t *testing.T) {
	toks := Tokenize("The Quick Brown fox! a an ok")
	assert.Equal(t, []string{"the", "quick", "brown", "fox"}, toks)
}

func TestInsertAndSearchRanksByRelevance(t *testing.T) {
	db := openTestBM25DB(t)
	ctx := context.Background()

	docA := id.New()
	docB := id.New()

	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	require.NoError(t, Insert(wtx, docA, "the quick brown fox jumps over the lazy dog"))
	require.NoError(t, Insert(wtx, docB, "completely unrelated text about space travel"))
	require.NoError(t, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	results, err := Search(rtx, "quick fox", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, docA, results[0].DocID)
}

func TestDeleteRemovesPostings(t *testing.T) {
	db := openTestBM25DB(t)
	ctx := context.Background()

	doc := id.New()
	wtx, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	require.NoError(t, Insert(wtx, doc, "unique searchable phrase"))
	require.NoError(t, wtx.Commit())

	wtx2, err := db.WriteTxn(ctx)
	require.NoError(t, err)
	require.NoError(t, Delete(wtx2, doc, "unique searchable phrase"))
	require.NoError(t, wtx2.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(t, err)
	defer rtx.Abort()
	results, err := Search(rtx, "unique searchable phrase", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteIsIdempotentForMissingDoc(t *testing.T) {
	db := openTestBM25DB(t)
	wtx, err := db.WriteTxn(context.Background())
	require.NoError(t, err)
	defer wtx.Abort()
	assert.NoError(t, Delete(wtx, id.New(), ""))
}

func BenchmarkInsert(b *testing.B) {
	db, err := boltkv.Open(kv.Options{Path: b.TempDir(), Tables: TableConfigs()})
	require.NoError(b, err)
	defer db.Close()
	wtx, err := db.WriteTxn(context.Background())
	require.NoError(b, err)
	defer wtx.Abort()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := Insert(wtx, id.New(), "the quick brown fox jumps over the lazy dog"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSearch(b *testing.B) {
	db, err := boltkv.Open(kv.Options{Path: b.TempDir(), Tables: TableConfigs()})
	require.NoError(b, err)
	defer db.Close()
	ctx := context.Background()
	wtx, err := db.WriteTxn(ctx)
	require.NoError(b, err)
	for i := 0; i < 1000; i++ {
		require.NoError(b, Insert(wtx, id.New(), "searchable corpus text with common and rare terms"))
	}
	require.NoError(b, wtx.Commit())

	rtx, err := db.ReadTxn(ctx)
	require.NoError(b, err)
	defer rtx.Abort()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Search(rtx, "searchable rare", 10); err != nil {
			b.Fatal(err)
		}
	}
}
