// Package traversal implements the lazy iterator algebra traversals are
// built from: a pull-based pipeline of TraversalVal producers,
// source steps, step adapters, and terminal collectors, all running over a
// caller-owned read or write transaction.
package traversal

import (
	"github.com/helixdb/helixdb/internal/codec"
	"github.com/helixdb/helixdb/internal/id"
)

// Kind discriminates the closed set of variants a TraversalVal can be.
type Kind int

const (
	KindEmpty Kind = iota
	KindNode
	KindEdge
	KindVector
	KindPath
	KindCount
	KindValue
)

// EdgeType discriminates whether a neighbor lives in the node table or the
// vector-index tables: the sole mechanism connecting graph
// nodes to vectors.
type EdgeType int

const (
	EdgeToNode EdgeType = iota
	EdgeToVec
)

// TraversalVal is the tagged-union element flowing through every step: a
// closed tagged sum with a known set of variants. Adapters switch on Kind
// and typically skip elements of a variant they do not handle.
type TraversalVal struct {
	Kind Kind

	NodeID    id.ID
	NodeLabel string
	NodeProps codec.Properties

	EdgeID    id.ID
	EdgeLabel string
	EdgeFrom  id.ID
	EdgeTo    id.ID
	EdgeProps codec.Properties

	VectorID       id.ID
	VectorLabel    string
	VectorData     []float64
	VectorProps    codec.Properties
	VectorDistance float64 // transient: only meaningful immediately after a search step

	PathNodes []TraversalVal
	PathEdges []TraversalVal

	CountVal int
	Value    codec.Value
}

func Empty() TraversalVal { return TraversalVal{Kind: KindEmpty} }

func Node(nid id.ID, label string, props codec.Properties) TraversalVal {
	return TraversalVal{Kind: KindNode, NodeID: nid, NodeLabel: label, NodeProps: props}
}

func Edge(eid id.ID, label string, from, to id.ID, props codec.Properties) TraversalVal {
	return TraversalVal{Kind: KindEdge, EdgeID: eid, EdgeLabel: label, EdgeFrom: from, EdgeTo: to, EdgeProps: props}
}

func Vector(vid id.ID, label string, data []float64, props codec.Properties, dist float64) TraversalVal {
	return TraversalVal{Kind: KindVector, VectorID: vid, VectorLabel: label, VectorData: data, VectorProps: props, VectorDistance: dist}
}

func Path(nodes, edges []TraversalVal) TraversalVal {
	return TraversalVal{Kind: KindPath, PathNodes: nodes, PathEdges: edges}
}

func Count(n int) TraversalVal { return TraversalVal{Kind: KindCount, CountVal: n} }

func Value(v codec.Value) TraversalVal { return TraversalVal{Kind: KindValue, Value: v} }

// ID returns the identifier carried by a Node, Edge, or Vector value.
func (v TraversalVal) ID() id.ID {
	switch v.Kind {
	case KindNode:
		return v.NodeID
	case KindEdge:
		return v.EdgeID
	case KindVector:
		return v.VectorID
	default:
		return id.Nil
	}
}

// Props returns the property map carried by a Node, Edge, or Vector value.
func (v TraversalVal) Props() codec.Properties {
	switch v.Kind {
	case KindNode:
		return v.NodeProps
	case KindEdge:
		return v.EdgeProps
	case KindVector:
		return v.VectorProps
	default:
		return nil
	}
}

// Label returns the schema label carried by a Node, Edge, or Vector value.
func (v TraversalVal) Label() string {
	switch v.Kind {
	case KindNode:
		return v.NodeLabel
	case KindEdge:
		return v.EdgeLabel
	case KindVector:
		return v.VectorLabel
	default:
		return ""
	}
}
