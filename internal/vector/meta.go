package vector

import (
	"github.com/helixdb/helixdb/internal/codec"
	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/id"
	"github.com/helixdb/helixdb/internal/kv"
)

var hnswMetaKey = []byte("meta")

type hnswMeta struct {
	entryPoint id.ID
	topLevel   int
	hasEntry   bool
}

func getHNSWMeta(rtx kv.ReadTxn) (hnswMeta, error) {
	v, err := rtx.Get(TableHNSWMeta, hnswMetaKey)
	if err != nil {
		return hnswMeta{}, herrors.Wrap(herrors.KindStorage, "read hnsw meta", err)
	}
	if v == nil {
		return hnswMeta{}, nil
	}
	var m hnswMeta
	copy(m.entryPoint[:], v[:16])
	m.topLevel = int(v[16])
	m.hasEntry = true
	return m, nil
}

func putHNSWMeta(wtx kv.WriteTxn, m hnswMeta) error {
	buf := make([]byte, 17)
	copy(buf[:16], m.entryPoint[:])
	buf[16] = byte(m.topLevel)
	return wtx.Put(TableHNSWMeta, hnswMetaKey, buf)
}

// record is a fully materialized vector: its raw data plus the side-table
// metadata (label, level, properties) kept separate from neighbor lists so
// reading a level's adjacency never pays for decoding properties.
type record struct {
	ID    id.ID
	Data  []float64
	Label string
	Level uint8
	Props codec.Properties
}

// Record is the public view of a stored vector's data and metadata.
type Record struct {
	ID    id.ID
	Data  []float64
	Label string
	Props codec.Properties
}

// Get fetches a vector by id, honoring soft-delete the same way Search
// does: a tombstoned vector reads back as not found. Existence and
// properties are always read from rtx so the result never strays outside
// the caller's snapshot.
func (ix *Index) Get(rtx kv.ReadTxn, vid id.ID) (Record, error) {
	rec, ok, err := ix.getVector(rtx, vid)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, herrors.New(herrors.KindNotFound, "vector not found: "+vid.String())
	}
	if v, ok := rec.Props["is_deleted"]; ok && v.Kind == codec.KindBool && v.Bool {
		return Record{}, herrors.New(herrors.KindNotFound, "vector not found: "+vid.String())
	}
	return Record{ID: rec.ID, Data: rec.Data, Label: rec.Label, Props: rec.Props}, nil
}

// getVector materializes a vector from rtx. The side-table record (the
// mutable part: existence, label, level, properties) is read from the
// transaction on every call; only the immutable raw data may be served from
// the decode cache, and only after this transaction's own meta read proved
// the vector exists in its snapshot.
func (ix *Index) getVector(rtx kv.ReadTxn, vid id.ID) (record, bool, error) {
	metaBytes, err := rtx.Get(TableVecMeta, vid.Bytes())
	if err != nil {
		return record{}, false, herrors.Wrap(herrors.KindStorage, "get vector meta", err)
	}
	if metaBytes == nil {
		return record{}, false, nil
	}
	label, level, props, err := codec.DecodeVectorMeta(metaBytes)
	if err != nil {
		return record{}, false, err
	}
	if cached, ok := ix.cache.Get(vid); ok {
		return record{ID: vid, Data: cached.([]float64), Label: label, Level: level, Props: props}, true, nil
	}
	dataBytes, err := rtx.Get(TableVectors, vid.Bytes())
	if err != nil {
		return record{}, false, herrors.Wrap(herrors.KindStorage, "get vector data", err)
	}
	if dataBytes == nil {
		return record{}, false, herrors.New(herrors.KindStorage, "vector meta present without data: "+vid.String())
	}
	data, err := codec.DecodeVectorData(dataBytes)
	if err != nil {
		return record{}, false, err
	}
	ix.cache.Add(vid, data)
	return record{ID: vid, Data: data, Label: label, Level: level, Props: props}, true, nil
}

// SoftDelete marks a vector deleted without touching the HNSW graph: it sets
// the reserved is_deleted property in the side table, which filtered search
// and Get honor. The vector's neighbor links stay intact so it keeps serving
// as a routing waypoint; hard Delete is the path that repairs the graph.
func (ix *Index) SoftDelete(wtx kv.WriteTxn, vid id.ID) error {
	rec, found, err := ix.getVector(wtx, vid)
	if err != nil {
		return err
	}
	if !found {
		return herrors.ErrVectorAlreadyDeleted
	}
	if v, ok := rec.Props["is_deleted"]; ok && v.Kind == codec.KindBool && v.Bool {
		return herrors.ErrVectorAlreadyDeleted
	}
	props := rec.Props
	if props == nil {
		props = codec.Properties{}
	}
	props["is_deleted"] = codec.Bool(true)
	// The tombstone lives in the side table, which is never cached; the raw
	// data is untouched so the data cache needs no invalidation.
	return wtx.Put(TableVecMeta, vid.Bytes(), codec.EncodeVectorMeta(rec.Label, rec.Level, props))
}

// UpdateMeta rewrites a vector's label and properties in place, keeping its
// level and raw data untouched. Schema migration uses this to relabel
// stored vectors.
func (ix *Index) UpdateMeta(wtx kv.WriteTxn, vid id.ID, label string, props codec.Properties) error {
	rec, found, err := ix.getVector(wtx, vid)
	if err != nil {
		return err
	}
	if !found {
		return herrors.New(herrors.KindNotFound, "vector not found: "+vid.String())
	}
	return wtx.Put(TableVecMeta, vid.Bytes(), codec.EncodeVectorMeta(label, rec.Level, props))
}

func getNeighbors(rtx kv.ReadTxn, level int, vid id.ID) ([]id.ID, error) {
	v, err := rtx.Get(levelTable(level), vid.Bytes())
	if err != nil {
		return nil, herrors.Wrap(herrors.KindStorage, "get neighbors", err)
	}
	return decodeNeighbors(v)
}

func putNeighbors(wtx kv.WriteTxn, level int, vid id.ID, ids []id.ID) error {
	return wtx.Put(levelTable(level), vid.Bytes(), encodeNeighbors(ids))
}
