package traversal

import (
	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/id"
)

// ShortestPath runs an unweighted breadth-first search from each upstream
// node to target along label, yielding the first (shortest, by edge count)
// path found for each as a KindPath element. Nodes with no path to target
// contribute nothing to the output stream.
func (t *Traversal) ShortestPath(target id.ID, label string) *Traversal {
	upstream := t.next
	return t.derive(chainFlatMap(upstream, func(v TraversalVal) ([]TraversalVal, error) {
		if v.Kind != KindNode {
			return nil, nil
		}
		nodes, edges, found, err := t.bfsShortestPath(v.NodeID, target, label)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		return []TraversalVal{Path(nodes, edges)}, nil
	}))
}

type bfsStep struct {
	node     id.ID
	viaEdge  id.ID
	fromNode id.ID
}

// bfsShortestPath walks the out-adjacency graph breadth-first. It is a
// plain map-based frontier rather than a priority queue since every edge
// has unit weight: shortest_path ranks by hop count, not a weighted cost
// function.
func (t *Traversal) bfsShortestPath(from, to id.ID, label string) ([]TraversalVal, []TraversalVal, bool, error) {
	if from == to {
		n, err := t.store.GetNode(t.rtx, from)
		if err != nil {
			return nil, nil, false, err
		}
		return []TraversalVal{Node(from, n.Label, n.Props)}, nil, true, nil
	}

	visited := map[id.ID]bool{from: true}
	parent := map[id.ID]bfsStep{}
	queue := []id.ID{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		entries, err := t.store.Out(t.rtx, cur, label)
		if err != nil {
			return nil, nil, false, err
		}
		for _, e := range entries {
			if visited[e.PeerID] {
				continue
			}
			visited[e.PeerID] = true
			parent[e.PeerID] = bfsStep{node: e.PeerID, viaEdge: e.EdgeID, fromNode: cur}
			if e.PeerID == to {
				return t.reconstructPath(from, to, parent)
			}
			queue = append(queue, e.PeerID)
		}
	}
	return nil, nil, false, nil
}

func (t *Traversal) reconstructPath(from, to id.ID, parent map[id.ID]bfsStep) ([]TraversalVal, []TraversalVal, bool, error) {
	var nodeIDs []id.ID
	var edgeIDs []id.ID
	cur := to
	for cur != from {
		step, ok := parent[cur]
		if !ok {
			return nil, nil, false, herrors.New(herrors.KindStorage, "shortest_path: broken parent chain")
		}
		nodeIDs = append(nodeIDs, cur)
		edgeIDs = append(edgeIDs, step.viaEdge)
		cur = step.fromNode
	}
	nodeIDs = append(nodeIDs, from)

	nodes := make([]TraversalVal, len(nodeIDs))
	for i, nid := range nodeIDs {
		n, err := t.store.GetNode(t.rtx, nid)
		if err != nil {
			return nil, nil, false, err
		}
		nodes[len(nodeIDs)-1-i] = Node(nid, n.Label, n.Props)
	}
	edges := make([]TraversalVal, len(edgeIDs))
	for i, eid := range edgeIDs {
		e, err := t.store.GetEdge(t.rtx, eid)
		if err != nil {
			return nil, nil, false, err
		}
		edges[len(edgeIDs)-1-i] = Edge(eid, e.Label, e.FromNode, e.ToNode, e.Props)
	}
	return nodes, edges, true, nil
}
