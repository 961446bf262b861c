package traversal

import (
	"github.com/helixdb/helixdb/internal/bm25"
	"github.com/helixdb/helixdb/internal/codec"
	"github.com/helixdb/helixdb/internal/graph"
	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/id"
	"github.com/helixdb/helixdb/internal/kv"
	"github.com/helixdb/helixdb/internal/vector"
)

// Step is a pull-based producer of TraversalVal: each call returns the next
// element, whether one was available, and any error encountered producing
// it. Most adapters pull one element at a time as a terminal collector
// drains them. The exceptions: order_by and brute_force_search_v drain
// their upstream when the step is built, id-lookup source steps read their
// elements up front, navigation steps buffer one neighbor group, and dedup
// keeps the set of ids it has seen.
type Step func() (TraversalVal, bool, error)

// Traversal is one lazy pipeline stage. It owns no transaction itself; it
// borrows the one it was constructed with and must not outlive it, enforced
// by the caller's discipline rather than the compiler since Go has no
// borrow checker.
type Traversal struct {
	rtx   kv.ReadTxn
	wtx   kv.WriteTxn // non-nil only for a write traversal
	store *graph.Store
	vec   *vector.Index
	next  Step
}

// NewRead starts an empty read traversal over rtx.
func NewRead(rtx kv.ReadTxn, store *graph.Store, vec *vector.Index) *Traversal {
	return &Traversal{rtx: rtx, store: store, vec: vec, next: emptyStep}
}

// NewWrite starts an empty write traversal over wtx. Mutating steps
// (AddN, AddE, InsertV, Update, Drop) are only available on a Traversal
// built this way.
func NewWrite(wtx kv.WriteTxn, store *graph.Store, vec *vector.Index) *Traversal {
	return &Traversal{rtx: wtx, wtx: wtx, store: store, vec: vec, next: emptyStep}
}

func emptyStep() (TraversalVal, bool, error) { return TraversalVal{}, false, nil }

func (t *Traversal) derive(next Step) *Traversal {
	return &Traversal{rtx: t.rtx, wtx: t.wtx, store: t.store, vec: t.vec, next: next}
}

func (t *Traversal) requireWrite(op string) (kv.WriteTxn, error) {
	if t.wtx == nil {
		return nil, herrors.New(herrors.KindInvalid, op+" requires a write traversal")
	}
	return t.wtx, nil
}

// FromVals re-enters the algebra from an already-materialized set of
// traversal values, e.g. a variable bound earlier in a compiled query body.
func (t *Traversal) FromVals(vals []TraversalVal) *Traversal {
	return t.derive(sliceStep(vals))
}

// sliceStep turns a pre-materialized slice into a Step; used by source
// steps whose underlying kv operation (e.g. GetDuplicates) already returns
// a bounded, fully-read slice rather than a cursor.
func sliceStep(vals []TraversalVal) Step {
	i := 0
	return func() (TraversalVal, bool, error) {
		if i >= len(vals) {
			return TraversalVal{}, false, nil
		}
		v := vals[i]
		i++
		return v, true, nil
	}
}

// ---- Source steps ----

// NFromID yields the single node with the given id, or nothing if absent.
func (t *Traversal) NFromID(nid id.ID) *Traversal {
	n, err := t.store.GetNode(t.rtx, nid)
	if err != nil {
		if herrors.KindOf(err) == herrors.KindNotFound {
			return t.derive(emptyStep)
		}
		return t.derive(errStep(err))
	}
	return t.derive(sliceStep([]TraversalVal{Node(nid, n.Label, n.Props)}))
}

// NFromIDs yields the nodes matching the given ids, skipping absent ones.
func (t *Traversal) NFromIDs(ids []id.ID) *Traversal {
	var vals []TraversalVal
	for _, nid := range ids {
		n, err := t.store.GetNode(t.rtx, nid)
		if err != nil {
			if herrors.KindOf(err) == herrors.KindNotFound {
				continue
			}
			return t.derive(errStep(err))
		}
		vals = append(vals, Node(nid, n.Label, n.Props))
	}
	return t.derive(sliceStep(vals))
}

func errStep(err error) Step {
	done := false
	return func() (TraversalVal, bool, error) {
		if done {
			return TraversalVal{}, false, nil
		}
		done = true
		return TraversalVal{}, false, err
	}
}

// NFromType yields every node with the given label. The node table has no
// label index, so this is a full scan with a label filter applied lazily
// as the iterator is drained.
func (t *Traversal) NFromType(label string) *Traversal {
	it, err := t.store.IterNodes(t.rtx)
	if err != nil {
		return t.derive(errStep(err))
	}
	return t.derive(func() (TraversalVal, bool, error) {
		for it.Next() {
			nid, ok := id.FromBytes(it.Key())
			if !ok {
				continue
			}
			n, err := codec.DecodeNode(it.Value())
			if err != nil {
				return TraversalVal{}, false, err
			}
			if n.Label != label {
				continue
			}
			return Node(nid, n.Label, n.Props), true, nil
		}
		it.Close()
		return TraversalVal{}, false, nil
	})
}

// NFromIndex yields every node whose indexed field equals value.
func (t *Traversal) NFromIndex(field string, value codec.Value) *Traversal {
	ids, err := t.store.NodesFromIndex(t.rtx, field, value)
	if err != nil {
		return t.derive(errStep(err))
	}
	return t.NFromIDs(ids)
}

// EFromID yields the single edge with the given id.
func (t *Traversal) EFromID(eid id.ID) *Traversal {
	e, err := t.store.GetEdge(t.rtx, eid)
	if err != nil {
		if herrors.KindOf(err) == herrors.KindNotFound {
			return t.derive(emptyStep)
		}
		return t.derive(errStep(err))
	}
	return t.derive(sliceStep([]TraversalVal{Edge(eid, e.Label, e.FromNode, e.ToNode, e.Props)}))
}

// EFromType yields every edge with the given label via a full scan.
func (t *Traversal) EFromType(label string) *Traversal {
	it, err := t.rtx.Iter(graph.TableEdges)
	if err != nil {
		return t.derive(errStep(err))
	}
	return t.derive(func() (TraversalVal, bool, error) {
		for it.Next() {
			eid, ok := id.FromBytes(it.Key())
			if !ok {
				continue
			}
			e, err := codec.DecodeEdge(it.Value())
			if err != nil {
				return TraversalVal{}, false, err
			}
			if e.Label != label {
				continue
			}
			return Edge(eid, e.Label, e.FromNode, e.ToNode, e.Props), true, nil
		}
		it.Close()
		return TraversalVal{}, false, nil
	})
}

// AddN inserts a new node and yields it as the sole element.
func (t *Traversal) AddN(label string, props codec.Properties) *Traversal {
	wtx, err := t.requireWrite("add_n")
	if err != nil {
		return t.derive(errStep(err))
	}
	nid, err := t.store.AddNode(wtx, label, props)
	if err != nil {
		return t.derive(errStep(err))
	}
	return t.derive(sliceStep([]TraversalVal{Node(nid, label, props)}))
}

// AddE inserts a new edge between from and to and yields it. kind records
// whether to names a graph node or a vector; the adjacency layout is
// identical either way, the discriminant only matters when navigating.
func (t *Traversal) AddE(label string, props codec.Properties, from, to id.ID, kind EdgeType) *Traversal {
	wtx, err := t.requireWrite("add_e")
	if err != nil {
		return t.derive(errStep(err))
	}
	if kind == EdgeToVec && t.vec == nil {
		return t.derive(errStep(herrors.New(herrors.KindVector, "vector index not configured")))
	}
	eid, err := t.store.AddEdge(wtx, label, from, to, props)
	if err != nil {
		return t.derive(errStep(err))
	}
	return t.derive(sliceStep([]TraversalVal{Edge(eid, label, from, to, props)}))
}

// InsertV inserts a new vector and yields it.
func (t *Traversal) InsertV(data []float64, label string, props codec.Properties) *Traversal {
	wtx, err := t.requireWrite("insert_v")
	if err != nil {
		return t.derive(errStep(err))
	}
	if t.vec == nil {
		return t.derive(errStep(herrors.New(herrors.KindVector, "vector index not configured")))
	}
	vid, err := t.vec.Insert(wtx, data, label, props)
	if err != nil {
		return t.derive(errStep(err))
	}
	return t.derive(sliceStep([]TraversalVal{Vector(vid, label, data, props, 0)}))
}

// SearchV runs an HNSW search and yields the results in ascending-distance
// order.
func (t *Traversal) SearchV(query []float64, k int, label string, filters []vector.Predicate) *Traversal {
	if t.vec == nil {
		return t.derive(errStep(herrors.New(herrors.KindVector, "vector index not configured")))
	}
	results, err := t.vec.Search(t.rtx, query, k, vector.SearchOptions{Label: label, Filters: filters, HonorSoftDelete: true})
	if err != nil {
		return t.derive(errStep(err))
	}
	vals := make([]TraversalVal, len(results))
	for i, r := range results {
		vals[i] = Vector(r.ID, r.Label, nil, r.Props, r.Distance)
	}
	return t.derive(sliceStep(vals))
}

// BruteForceSearchV scores the vectors already flowing through the current
// stream (each upstream element must be KindVector) against query.
func (t *Traversal) BruteForceSearchV(query []float64, k int) *Traversal {
	if t.vec == nil {
		return t.derive(errStep(herrors.New(herrors.KindVector, "vector index not configured")))
	}
	upstream := t.next
	var ids []id.ID
	for {
		v, ok, err := upstream()
		if err != nil {
			return t.derive(errStep(err))
		}
		if !ok {
			break
		}
		if v.Kind == KindVector {
			ids = append(ids, v.VectorID)
		}
	}
	results, err := t.vec.BruteForceSearch(t.rtx, ids, query, k)
	if err != nil {
		return t.derive(errStep(err))
	}
	vals := make([]TraversalVal, len(results))
	for i, r := range results {
		vals[i] = Vector(r.ID, r.Label, nil, r.Props, r.Distance)
	}
	return t.derive(sliceStep(vals))
}

// SearchBM25 runs a BM25 lexical search and yields matching documents as
// Node values. BM25 postings are label-agnostic, so when label is non-empty
// each hit's node label is checked here and other hits are dropped; the
// top-k cut is made before that check.
func (t *Traversal) SearchBM25(label, query string, k int) *Traversal {
	scored, err := bm25.Search(t.rtx, query, k)
	if err != nil {
		return t.derive(errStep(err))
	}
	var vals []TraversalVal
	for _, s := range scored {
		n, err := t.store.GetNode(t.rtx, s.DocID)
		if err != nil {
			if herrors.KindOf(err) == herrors.KindNotFound {
				continue
			}
			return t.derive(errStep(err))
		}
		if label != "" && n.Label != label {
			continue
		}
		vals = append(vals, Node(s.DocID, n.Label, n.Props))
	}
	return t.derive(sliceStep(vals))
}
