// Package vector implements the HNSW (hierarchical navigable small world)
// approximate nearest-neighbor index: layered neighbor-list tables,
// level-sampled insertion, ef-bounded greedy search, and delete with graph
// repair.
package vector

import (
	"fmt"

	"github.com/helixdb/helixdb/internal/kv"
)

const (
	TableVectors  kv.Table = "vectors"
	TableVecMeta  kv.Table = "vec_meta"
	TableHNSWMeta kv.Table = "vec_hnsw_meta"

	// MaxLevels bounds the number of pre-declared level tables. For any M
	// >= 4 and a corpus well beyond planetary scale, the sampled top level
	// ln(N)/ln(M) never approaches this; it exists only because bbolt
	// buckets are declared up front rather than created on first use of a
	// level.
	MaxLevels = 48
)

func levelTable(level int) kv.Table {
	return kv.Table(fmt.Sprintf("vec_level_%d", level))
}

// TableConfigs returns the kv.TableConfig set the vector index needs.
func TableConfigs() []kv.TableConfig {
	cfgs := []kv.TableConfig{
		{Name: TableVectors, DupSorted: false},
		{Name: TableVecMeta, DupSorted: false},
		{Name: TableHNSWMeta, DupSorted: false},
	}
	for l := 0; l < MaxLevels; l++ {
		cfgs = append(cfgs, kv.TableConfig{Name: levelTable(l), DupSorted: false})
	}
	return cfgs
}
