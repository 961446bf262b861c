package bm25

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/id"
	"github.com/helixdb/helixdb/internal/kv"
	"github.com/helixdb/helixdb/internal/vector"
)

// VectorSearcher is the subset of *vector.Index hybrid fusion depends on,
// kept as an interface so bm25 does not need to import a concrete store
// wiring.
type VectorSearcher interface {
	Search(rtx kv.ReadTxn, query []float64, k int, opts vector.SearchOptions) ([]vector.SearchResult, error)
}

// Fused is one hybrid_search result: the document/vector id and its
// combined score.
type Fused struct {
	ID    id.ID
	Score float64
}

// HybridSearch runs BM25 and HNSW search concurrently, each bounded to 2k
// results, and linearly combines their scores: score_final = alpha *
// score_bm25 + (1-alpha) * similarity_vec, where similarity_vec =
// 1/(1+distance). This is the one place in the engine with
// structured concurrency: two blocking read-only searches joined with an
// errgroup, each holding its own short-lived read transaction.
func HybridSearch(ctx context.Context, newReadTxn func(context.Context) (kv.ReadTxn, error), vecIndex VectorSearcher, query string, qv []float64, alpha float64, k int) ([]Fused, error) {
	limit := 2 * k

	var bm25Results []Scored
	var vecResults []vector.SearchResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rtx, err := newReadTxn(gctx)
		if err != nil {
			return err
		}
		defer rtx.Abort()
		r, err := Search(rtx, query, limit)
		if err != nil {
			return err
		}
		bm25Results = r
		return nil
	})
	g.Go(func() error {
		rtx, err := newReadTxn(gctx)
		if err != nil {
			return err
		}
		defer rtx.Abort()
		r, err := vecIndex.Search(rtx, qv, limit, vector.SearchOptions{HonorSoftDelete: true})
		if err != nil {
			return err
		}
		vecResults = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, herrors.Wrap(herrors.KindStorage, "hybrid search", err)
	}

	combined := make(map[id.ID]float64)
	for _, r := range bm25Results {
		combined[r.DocID] += alpha * r.Score
	}
	for _, r := range vecResults {
		sim := 1 / (1 + r.Distance)
		combined[r.ID] += (1 - alpha) * sim
	}

	out := make([]Fused, 0, len(combined))
	for id, score := range combined {
		out = append(out, Fused{ID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
