package traversal

import (
	"github.com/helixdb/helixdb/internal/graph"
	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/id"
)

// chainFlatMap expands each upstream element through expand, buffering one
// neighbor group at a time. Navigation steps fan out (a node can have many
// out-edges), so the pipeline holds at most one expanded group in memory
// rather than spawning a goroutine per stage.
func chainFlatMap(upstream Step, expand func(TraversalVal) ([]TraversalVal, error)) Step {
	var buffered []TraversalVal
	done := false
	return func() (TraversalVal, bool, error) {
		for {
			if len(buffered) > 0 {
				v := buffered[0]
				buffered = buffered[1:]
				return v, true, nil
			}
			if done {
				return TraversalVal{}, false, nil
			}
			v, ok, err := upstream()
			if err != nil {
				done = true
				return TraversalVal{}, false, err
			}
			if !ok {
				done = true
				continue
			}
			expanded, err := expand(v)
			if err != nil {
				done = true
				return TraversalVal{}, false, err
			}
			buffered = expanded
		}
	}
}

// Out steps from each upstream node to its out-neighbors along label. kind
// selects which table the peer is resolved from: EdgeToNode reads the node
// table, EdgeToVec the vector-index tables.
func (t *Traversal) Out(label string, kind EdgeType) *Traversal {
	upstream := t.next
	return t.derive(chainFlatMap(upstream, func(v TraversalVal) ([]TraversalVal, error) {
		if v.Kind != KindNode {
			return nil, nil
		}
		entries, err := t.store.Out(t.rtx, v.NodeID, label)
		if err != nil {
			return nil, err
		}
		return t.resolvePeers(entries, kind)
	}))
}

// In steps from each upstream node to its in-neighbors along label.
func (t *Traversal) In(label string, kind EdgeType) *Traversal {
	upstream := t.next
	return t.derive(chainFlatMap(upstream, func(v TraversalVal) ([]TraversalVal, error) {
		if v.Kind != KindNode {
			return nil, nil
		}
		entries, err := t.store.In(t.rtx, v.NodeID, label)
		if err != nil {
			return nil, err
		}
		return t.resolvePeers(entries, kind)
	}))
}

// resolvePeers materializes a neighbor group's peers as Node or Vector
// values per kind, skipping broken adjacency entries whose peer no longer
// exists.
func (t *Traversal) resolvePeers(entries []graph.AdjEntry, kind EdgeType) ([]TraversalVal, error) {
	var out []TraversalVal
	for _, e := range entries {
		if kind == EdgeToVec {
			if t.vec == nil {
				return nil, herrors.New(herrors.KindVector, "vector index not configured")
			}
			rec, err := t.vec.Get(t.rtx, e.PeerID)
			if err != nil {
				if herrors.KindOf(err) == herrors.KindNotFound {
					continue
				}
				return nil, err
			}
			out = append(out, Vector(e.PeerID, rec.Label, rec.Data, rec.Props, 0))
			continue
		}
		n, err := t.store.GetNode(t.rtx, e.PeerID)
		if err != nil {
			if herrors.KindOf(err) == herrors.KindNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, Node(e.PeerID, n.Label, n.Props))
	}
	return out, nil
}

// OutE steps from each upstream node to its outgoing edges along label.
func (t *Traversal) OutE(label string) *Traversal {
	upstream := t.next
	return t.derive(chainFlatMap(upstream, func(v TraversalVal) ([]TraversalVal, error) {
		if v.Kind != KindNode {
			return nil, nil
		}
		entries, err := t.store.Out(t.rtx, v.NodeID, label)
		if err != nil {
			return nil, err
		}
		var out []TraversalVal
		for _, e := range entries {
			edge, err := t.store.GetEdge(t.rtx, e.EdgeID)
			if err != nil {
				if herrors.KindOf(err) == herrors.KindNotFound {
					continue
				}
				return nil, err
			}
			out = append(out, Edge(e.EdgeID, edge.Label, edge.FromNode, edge.ToNode, edge.Props))
		}
		return out, nil
	}))
}

// InE steps from each upstream node to its incoming edges along label.
func (t *Traversal) InE(label string) *Traversal {
	upstream := t.next
	return t.derive(chainFlatMap(upstream, func(v TraversalVal) ([]TraversalVal, error) {
		if v.Kind != KindNode {
			return nil, nil
		}
		entries, err := t.store.In(t.rtx, v.NodeID, label)
		if err != nil {
			return nil, err
		}
		var out []TraversalVal
		for _, e := range entries {
			edge, err := t.store.GetEdge(t.rtx, e.EdgeID)
			if err != nil {
				if herrors.KindOf(err) == herrors.KindNotFound {
					continue
				}
				return nil, err
			}
			out = append(out, Edge(e.EdgeID, edge.Label, edge.FromNode, edge.ToNode, edge.Props))
		}
		return out, nil
	}))
}

// FromN steps from each upstream edge to its source node.
func (t *Traversal) FromN() *Traversal {
	upstream := t.next
	return t.derive(chainFlatMap(upstream, func(v TraversalVal) ([]TraversalVal, error) {
		if v.Kind != KindEdge {
			return nil, nil
		}
		n, err := t.store.GetNode(t.rtx, v.EdgeFrom)
		if err != nil {
			if herrors.KindOf(err) == herrors.KindNotFound {
				return nil, nil
			}
			return nil, err
		}
		return []TraversalVal{Node(v.EdgeFrom, n.Label, n.Props)}, nil
	}))
}

// ToN steps from each upstream edge to its destination node.
func (t *Traversal) ToN() *Traversal {
	upstream := t.next
	return t.derive(chainFlatMap(upstream, func(v TraversalVal) ([]TraversalVal, error) {
		if v.Kind != KindEdge {
			return nil, nil
		}
		n, err := t.store.GetNode(t.rtx, v.EdgeTo)
		if err != nil {
			if herrors.KindOf(err) == herrors.KindNotFound {
				return nil, nil
			}
			return nil, err
		}
		return []TraversalVal{Node(v.EdgeTo, n.Label, n.Props)}, nil
	}))
}

// FromV steps from each upstream Vec-kind edge to the vector at its source
// endpoint.
func (t *Traversal) FromV() *Traversal {
	return t.edgeEndpointVector(func(v TraversalVal) id.ID { return v.EdgeFrom })
}

// ToV steps from each upstream Vec-kind edge to the vector at its
// destination endpoint.
func (t *Traversal) ToV() *Traversal {
	return t.edgeEndpointVector(func(v TraversalVal) id.ID { return v.EdgeTo })
}

func (t *Traversal) edgeEndpointVector(endpoint func(TraversalVal) id.ID) *Traversal {
	upstream := t.next
	return t.derive(chainFlatMap(upstream, func(v TraversalVal) ([]TraversalVal, error) {
		if v.Kind != KindEdge {
			return nil, nil
		}
		if t.vec == nil {
			return nil, herrors.New(herrors.KindVector, "vector index not configured")
		}
		vid := endpoint(v)
		rec, err := t.vec.Get(t.rtx, vid)
		if err != nil {
			if herrors.KindOf(err) == herrors.KindNotFound {
				return nil, nil
			}
			return nil, err
		}
		return []TraversalVal{Vector(vid, rec.Label, rec.Data, rec.Props, 0)}, nil
	}))
}

// SoftDelete tombstones every upstream vector by setting its reserved
// is_deleted property; filtered search and vector lookups skip tombstoned
// vectors while the HNSW graph keeps routing through them. Hard Drop remains
// the repair path.
func (t *Traversal) SoftDelete() *Traversal {
	wtx, err := t.requireWrite("soft_delete")
	if err != nil {
		return t.derive(errStep(err))
	}
	upstream := t.next
	return t.derive(chainFlatMap(upstream, func(v TraversalVal) ([]TraversalVal, error) {
		if v.Kind != KindVector {
			return nil, nil
		}
		if t.vec == nil {
			return nil, herrors.New(herrors.KindVector, "vector index not configured")
		}
		if err := t.vec.SoftDelete(wtx, v.VectorID); err != nil {
			return nil, err
		}
		return []TraversalVal{v}, nil
	}))
}
