package vector

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"

	lru "github.com/hashicorp/golang-lru"

	"github.com/helixdb/helixdb/internal/codec"
	"github.com/helixdb/helixdb/internal/helixlog"
	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/id"
	"github.com/helixdb/helixdb/internal/kv"
)

// dataCacheSize bounds the decoded raw-vector LRU. The cache holds ONLY the
// f64 array of a vector: that data is write-once (ids are time-ordered and
// never reused, and no operation mutates a stored vector's data), so a hit
// can never leak state across transaction snapshots. Existence, label,
// level, and properties are mutable (soft-delete flips a property) and are
// always read from the caller's transaction, never cached.
const dataCacheSize = 4096

// Index is the HNSW index over one vector space. It holds no state of its
// own beyond configuration and the data-decode cache: the graph lives
// entirely in the kv store so every operation takes the caller's
// transaction.
type Index struct {
	cfg   Config
	cache *lru.Cache // id.ID -> []float64, immutable raw vector data
}

// New builds an Index with cfg clamped into its valid ranges.
func New(cfg Config) *Index {
	cache, err := lru.New(dataCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// dataCacheSize never is.
		panic(err)
	}
	return &Index{cfg: Normalize(cfg), cache: cache}
}

// candidate pairs a vector id with its distance to the active query, used
// by both the construction and search heaps.
type candidate struct {
	id   id.ID
	dist float64
}

type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

type maxHeap struct{ minHeap }

func (h maxHeap) Less(i, j int) bool { return h.minHeap[i].dist > h.minHeap[j].dist }

// sampleLevel draws ℓ = floor(-ln(U)/ln(M)), U uniform in (0,1].
func (ix *Index) sampleLevel() int {
	u := rand.Float64()
	if u <= 0 {
		u = math.SmallestNonzeroFloat64
	}
	l := math.Floor(-math.Log(u) / math.Log(float64(ix.cfg.M)))
	if l < 0 {
		l = 0
	}
	if int(l) >= MaxLevels {
		return MaxLevels - 1
	}
	return int(l)
}

// dist resolves vid's raw data (through the per-operation map first, then
// the shared decode path) and scores it against q.
func (ix *Index) dist(q []float64, vid id.ID, rtx kv.ReadTxn, cache map[id.ID][]float64) (float64, error) {
	data, ok := cache[vid]
	if !ok {
		rec, found, err := ix.getVector(rtx, vid)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, herrors.New(herrors.KindNotFound, "vector not found: "+vid.String())
		}
		data = rec.Data
		cache[vid] = data
	}
	return CosineDistance(q, data)
}

// searchLayer is the standard HNSW routine: maintain a min-heap
// of unexpanded candidates and a max-heap of the current best ef results,
// expanding the nearest candidate until it can no longer beat the worst
// kept result.
func (ix *Index) searchLayer(rtx kv.ReadTxn, query []float64, entryPoints []id.ID, ef, level int, cache map[id.ID][]float64) ([]candidate, error) {
	visited := make(map[id.ID]bool)
	var candidates minHeap
	var results maxHeap

	for _, ep := range entryPoints {
		d, err := ix.dist(query, ep, rtx, cache)
		if err != nil {
			return nil, err
		}
		visited[ep] = true
		heap.Push(&candidates, candidate{ep, d})
		heap.Push(&results, candidate{ep, d})
	}

	for candidates.Len() > 0 {
		c := heap.Pop(&candidates).(candidate)
		if results.Len() >= ef {
			worst := results.minHeap[0]
			if c.dist > worst.dist {
				break
			}
		}
		neighbors, err := getNeighbors(rtx, level, c.id)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if visited[n] {
				continue
			}
			visited[n] = true
			d, err := ix.dist(query, n, rtx, cache)
			if err != nil {
				return nil, err
			}
			if results.Len() < ef {
				heap.Push(&candidates, candidate{n, d})
				heap.Push(&results, candidate{n, d})
			} else if d < results.minHeap[0].dist {
				heap.Push(&candidates, candidate{n, d})
				heap.Push(&results, candidate{n, d})
				heap.Pop(&results)
			}
		}
	}

	out := make([]candidate, len(results.minHeap))
	copy(out, results.minHeap)
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	return out, nil
}

func maxNeighborsForLevel(level, m int) int {
	if level == 0 {
		return 2 * m
	}
	return m
}

// pruneNeighbors keeps the cap nearest candidates, preferring closer links.
func pruneNeighbors(cands []candidate, cap int) []id.ID {
	sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if len(cands) > cap {
		cands = cands[:cap]
	}
	out := make([]id.ID, len(cands))
	for i, c := range cands {
		out[i] = c.id
	}
	return out
}

// Insert adds a vector to the index, sampling its level and wiring
// bidirectional neighbor links at every layer it joins.
func (ix *Index) Insert(wtx kv.WriteTxn, data []float64, label string, props codec.Properties) (id.ID, error) {
	vid := id.New()
	level := ix.sampleLevel()

	if err := wtx.Put(TableVectors, vid.Bytes(), codec.EncodeVectorData(data)); err != nil {
		return id.Nil, herrors.Wrap(herrors.KindStorage, "insert_v: put data", err)
	}
	if err := wtx.Put(TableVecMeta, vid.Bytes(), codec.EncodeVectorMeta(label, uint8(level), props)); err != nil {
		return id.Nil, herrors.Wrap(herrors.KindStorage, "insert_v: put meta", err)
	}

	meta, err := getHNSWMeta(wtx)
	if err != nil {
		return id.Nil, err
	}
	cache := map[id.ID][]float64{vid: data}

	if !meta.hasEntry {
		for l := 0; l <= level; l++ {
			if err := putNeighbors(wtx, l, vid, nil); err != nil {
				return id.Nil, err
			}
		}
		if err := putHNSWMeta(wtx, hnswMeta{entryPoint: vid, topLevel: level, hasEntry: true}); err != nil {
			return id.Nil, err
		}
		return vid, nil
	}

	ep := meta.entryPoint
	for l := meta.topLevel; l > level; l-- {
		for {
			neighbors, err := getNeighbors(wtx, l, ep)
			if err != nil {
				return id.Nil, err
			}
			best := ep
			bestDist, err := ix.dist(data, ep, wtx, cache)
			if err != nil {
				return id.Nil, err
			}
			improved := false
			for _, n := range neighbors {
				d, err := ix.dist(data, n, wtx, cache)
				if err != nil {
					return id.Nil, err
				}
				if d < bestDist {
					bestDist, best, improved = d, n, true
				}
			}
			ep = best
			if !improved {
				break
			}
		}
	}

	entryPoints := []id.ID{ep}
	top := level
	if meta.topLevel < top {
		top = meta.topLevel
	}
	for l := top; l >= 0; l-- {
		cands, err := ix.searchLayer(wtx, data, entryPoints, ix.cfg.EfConstruction, l, cache)
		if err != nil {
			return id.Nil, err
		}
		cap := maxNeighborsForLevel(l, ix.cfg.M)
		selected := pruneNeighbors(cands, cap)
		if err := putNeighbors(wtx, l, vid, selected); err != nil {
			return id.Nil, err
		}
		for _, n := range selected {
			nNeighbors, err := getNeighbors(wtx, l, n)
			if err != nil {
				return id.Nil, err
			}
			nNeighbors = append(nNeighbors, vid)
			nCands := make([]candidate, 0, len(nNeighbors))
			for _, nb := range nNeighbors {
				d, err := ix.dist(data, nb, wtx, cache) // approx: prune by distance to new vector's neighbor set anchor
				if err != nil {
					return id.Nil, err
				}
				nCands = append(nCands, candidate{nb, d})
			}
			pruned := pruneNeighbors(nCands, maxNeighborsForLevel(l, ix.cfg.M))
			if err := putNeighbors(wtx, l, n, pruned); err != nil {
				return id.Nil, err
			}
		}
		entryPoints = selected
		if len(entryPoints) == 0 {
			entryPoints = []id.ID{ep}
		}
	}

	if level > meta.topLevel {
		if err := putHNSWMeta(wtx, hnswMeta{entryPoint: vid, topLevel: level, hasEntry: true}); err != nil {
			return id.Nil, err
		}
	}
	return vid, nil
}

// SearchResult is one ranked hit from Search or BruteForceSearch.
type SearchResult struct {
	ID       id.ID
	Distance float64
	Label    string
	Props    codec.Properties
}

// Predicate filters a candidate's properties during Search.
type Predicate func(props codec.Properties) bool

// SearchOptions configures Search.
type SearchOptions struct {
	Label           string // empty = any label
	Filters         []Predicate
	HonorSoftDelete bool
}

// Search greedy-descends from the entry point down to level 1, runs a
// bounded search_layer at level 0, then filters and trims to k.
func (ix *Index) Search(rtx kv.ReadTxn, query []float64, k int, opts SearchOptions) ([]SearchResult, error) {
	meta, err := getHNSWMeta(rtx)
	if err != nil {
		return nil, err
	}
	if !meta.hasEntry {
		return nil, nil
	}
	cache := make(map[id.ID][]float64)

	ep := meta.entryPoint
	for l := meta.topLevel; l >= 1; l-- {
		for {
			neighbors, err := getNeighbors(rtx, l, ep)
			if err != nil {
				return nil, err
			}
			best := ep
			bestDist, err := ix.dist(query, ep, rtx, cache)
			if err != nil {
				return nil, err
			}
			improved := false
			for _, n := range neighbors {
				d, err := ix.dist(query, n, rtx, cache)
				if err != nil {
					return nil, err
				}
				if d < bestDist {
					bestDist, best, improved = d, n, true
				}
			}
			ep = best
			if !improved {
				break
			}
		}
	}

	ef := ix.cfg.EfSearch
	if k > ef {
		ef = k
	}
	cands, err := ix.searchLayer(rtx, query, []id.ID{ep}, ef, 0, cache)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, k)
	for _, c := range cands {
		rec, found, err := ix.getVector(rtx, c.id)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		if opts.Label != "" && rec.Label != opts.Label {
			continue
		}
		if opts.HonorSoftDelete {
			if v, ok := rec.Props["is_deleted"]; ok && v.Kind == codec.KindBool && v.Bool {
				continue
			}
		}
		skip := false
		for _, f := range opts.Filters {
			if !f(rec.Props) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		out = append(out, SearchResult{ID: c.id, Distance: c.dist, Label: rec.Label, Props: rec.Props})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// BruteForceSearch scores every id in candidates against query directly,
// bypassing the HNSW graph: the correctness baseline and the
// recommended path for small neighborhoods such as a single node's
// out-vectors.
func (ix *Index) BruteForceSearch(rtx kv.ReadTxn, candidates []id.ID, query []float64, k int) ([]SearchResult, error) {
	scored := make([]SearchResult, 0, len(candidates))
	for _, vid := range candidates {
		rec, found, err := ix.getVector(rtx, vid)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		d, err := CosineDistance(query, rec.Data)
		if err != nil {
			return nil, err
		}
		scored = append(scored, SearchResult{ID: vid, Distance: d, Label: rec.Label, Props: rec.Props})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Distance < scored[j].Distance })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Delete removes a vector from every level it participates in, repairs
// each former neighbor's link set, and advances the entry point if
// necessary.
func (ix *Index) Delete(wtx kv.WriteTxn, vid id.ID) error {
	rec, found, err := ix.getVector(wtx, vid)
	if err != nil {
		return err
	}
	if !found {
		return herrors.ErrVectorAlreadyDeleted
	}
	ix.cache.Remove(vid)
	meta, err := getHNSWMeta(wtx)
	if err != nil {
		return err
	}
	cache := map[id.ID][]float64{vid: rec.Data}

	for l := 0; l <= int(rec.Level); l++ {
		neighbors, err := getNeighbors(wtx, l, vid)
		if err != nil {
			return err
		}
		for _, n := range neighbors {
			nNeighbors, err := getNeighbors(wtx, l, n)
			if err != nil {
				return err
			}
			filtered := make([]id.ID, 0, len(nNeighbors))
			for _, nb := range nNeighbors {
				if nb != vid {
					filtered = append(filtered, nb)
				}
			}
			// Repair by pulling in candidates from the removed vector's
			// remaining neighbors at this level, keeping the nearer ones.
			cands := make([]candidate, 0, len(filtered)+len(neighbors))
			seen := map[id.ID]bool{n: true}
			for _, nb := range filtered {
				d, err := ix.dist(rec.Data, nb, wtx, cache)
				if err != nil {
					return err
				}
				cands = append(cands, candidate{nb, d})
				seen[nb] = true
			}
			for _, repl := range neighbors {
				if repl == n || repl == vid || seen[repl] {
					continue
				}
				d, err := ix.dist(rec.Data, repl, wtx, cache)
				if err != nil {
					return err
				}
				cands = append(cands, candidate{repl, d})
				seen[repl] = true
			}
			pruned := pruneNeighbors(cands, maxNeighborsForLevel(l, ix.cfg.M))
			if err := putNeighbors(wtx, l, n, pruned); err != nil {
				return err
			}
		}
		if err := wtx.Delete(levelTable(l), vid.Bytes()); err != nil {
			return herrors.Wrap(herrors.KindStorage, "delete vector: level table", err)
		}
	}

	if err := wtx.Delete(TableVectors, vid.Bytes()); err != nil {
		return herrors.Wrap(herrors.KindStorage, "delete vector: data", err)
	}
	if err := wtx.Delete(TableVecMeta, vid.Bytes()); err != nil {
		return herrors.Wrap(herrors.KindStorage, "delete vector: meta", err)
	}

	if meta.hasEntry && meta.entryPoint == vid {
		newEP, newTop, found, err := ix.findReplacementEntryPoint(wtx, meta.topLevel)
		if err != nil {
			return err
		}
		if !found {
			if err := wtx.Delete(TableHNSWMeta, hnswMetaKey); err != nil {
				return herrors.Wrap(herrors.KindStorage, "clear hnsw meta", err)
			}
		} else {
			if err := putHNSWMeta(wtx, hnswMeta{entryPoint: newEP, topLevel: newTop, hasEntry: true}); err != nil {
				return err
			}
		}
	}

	log := helixlog.WithComponent("hnsw")
	log.Debug().Str("vector", vid.String()).Msg("vector deleted")
	return nil
}

// findReplacementEntryPoint scans top level down for any surviving vector,
// demoting top_level until a non-empty level is found.
func (ix *Index) findReplacementEntryPoint(rtx kv.ReadTxn, fromLevel int) (id.ID, int, bool, error) {
	for l := fromLevel; l >= 0; l-- {
		it, err := rtx.Iter(levelTable(l))
		if err != nil {
			return id.Nil, 0, false, err
		}
		var best id.ID
		found := false
		for it.Next() {
			vid, ok := id.FromBytes(it.Key())
			if !ok {
				continue
			}
			if !found || best.Less(vid) {
				best = vid
				found = true
			}
		}
		it.Close()
		if found {
			return best, l, true, nil
		}
	}
	return id.Nil, 0, false, nil
}
