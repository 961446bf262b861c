// Package graphvis exports the graph store's nodes and edges as a JSON
// node/edge list a front-end can render. The front-end itself is out of
// scope; this package only produces the data.
package graphvis

import (
	"fmt"

	"github.com/helixdb/helixdb/internal/codec"
	"github.com/helixdb/helixdb/internal/graph"
	"github.com/helixdb/helixdb/internal/id"
	"github.com/helixdb/helixdb/internal/kv"
)

// VisNode is one exported node: its id, label, a display label resolved
// from the configured graphvis_node_label property (falling back to the
// schema label when the property is absent), and its full property set.
type VisNode struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	DisplayTag string         `json:"display_tag"`
	Properties map[string]any `json:"properties"`
}

// VisEdge is one exported edge.
type VisEdge struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// Graph is the full exported node/edge list.
type Graph struct {
	Nodes []VisNode `json:"nodes"`
	Edges []VisEdge `json:"edges"`
}

// Export walks every node and edge in store and renders them into Graph,
// using nodeLabelField (config.hx.json's graphvis_node_label) to pick each
// node's display tag when present.
func Export(rtx kv.ReadTxn, store *graph.Store, nodeLabelField string) (Graph, error) {
	var g Graph

	nit, err := store.IterNodes(rtx)
	if err != nil {
		return Graph{}, err
	}
	defer nit.Close()
	for nit.Next() {
		nid, ok := id.FromBytes(nit.Key())
		if !ok {
			continue
		}
		n, err := codec.DecodeNode(nit.Value())
		if err != nil {
			return Graph{}, err
		}
		g.Nodes = append(g.Nodes, toVisNode(nid, n, nodeLabelField))
	}
	if err := nit.Err(); err != nil {
		return Graph{}, err
	}

	eit, err := store.IterEdges(rtx)
	if err != nil {
		return Graph{}, err
	}
	defer eit.Close()
	for eit.Next() {
		eid, ok := id.FromBytes(eit.Key())
		if !ok {
			continue
		}
		e, err := codec.DecodeEdge(eit.Value())
		if err != nil {
			return Graph{}, err
		}
		g.Edges = append(g.Edges, VisEdge{
			ID:    eid.String(),
			Label: e.Label,
			From:  e.FromNode.String(),
			To:    e.ToNode.String(),
		})
	}
	if err := eit.Err(); err != nil {
		return Graph{}, err
	}
	return g, nil
}

func toVisNode(nid id.ID, n codec.Node, nodeLabelField string) VisNode {
	props := make(map[string]any, len(n.Props))
	for k, v := range n.Props {
		props[k] = v.ToAny()
	}
	tag := n.Label
	if nodeLabelField != "" {
		if v, ok := n.Props[nodeLabelField]; ok {
			tag = fmt.Sprint(v.ToAny())
		}
	}
	return VisNode{ID: nid.String(), Label: n.Label, DisplayTag: tag, Properties: props}
}
