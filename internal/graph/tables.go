// Package graph implements the labeled property graph store: the four
// primary tables and their secondary indices, including the
// invariant-preserving cascades for node/edge drop and update.
package graph

import (
	"github.com/helixdb/helixdb/internal/kv"
)

const (
	TableNodes    kv.Table = "nodes"
	TableEdges    kv.Table = "edges"
	TableOutEdges kv.Table = "out_edges"
	TableInEdges  kv.Table = "in_edges"
)

// SecondaryIndexTable returns the table name backing a declared secondary
// index on a node property field.
func SecondaryIndexTable(field string) kv.Table {
	return kv.Table("idx_" + field)
}

// TableConfigs returns the kv.TableConfig set the graph store needs,
// including one dup-sorted table per declared secondary index field.
func TableConfigs(secondaryIndexFields []string) []kv.TableConfig {
	cfgs := []kv.TableConfig{
		{Name: TableNodes, DupSorted: false},
		{Name: TableEdges, DupSorted: false},
		// out_edges / in_edges key = 16-byte peer id ∥ 4-byte label hash;
		// value = 16-byte edge id ∥ 16-byte other-peer id.
		{Name: TableOutEdges, DupSorted: true, DupValueLen: 32},
		{Name: TableInEdges, DupSorted: true, DupValueLen: 32},
	}
	for _, f := range secondaryIndexFields {
		// key = encoded property value (variable length), value = 16-byte
		// node id.
		cfgs = append(cfgs, kv.TableConfig{Name: SecondaryIndexTable(f), DupSorted: true, DupValueLen: 16})
	}
	return cfgs
}
