package graph

import (
	"bytes"
	"sort"
	"strings"

	"github.com/helixdb/helixdb/internal/bm25"
	"github.com/helixdb/helixdb/internal/codec"
	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/id"
	"github.com/helixdb/helixdb/internal/kv"
)

// AdjEntry is one neighbor-group entry: the connecting edge and the peer
// node/vector reached through it.
type AdjEntry struct {
	EdgeID id.ID
	PeerID id.ID
}

// Store is the labeled property graph: nodes, edges, both adjacency
// directions, and the configured secondary indices, all layered over a
// kv.DB.
type Store struct {
	secondaryIndices map[string]bool // field name -> has a table
	bm25             bool
}

// NewStore builds a Store that knows which property fields have a backing
// secondary index table (created at kv.DB.Open time via TableConfigs).
func NewStore(secondaryIndexFields []string) *Store {
	m := make(map[string]bool, len(secondaryIndexFields))
	for _, f := range secondaryIndexFields {
		m[f] = true
	}
	return &Store{secondaryIndices: m}
}

// EnableBM25 turns on lexical indexing of node property maps: every string
// property of an added node is tokenized into the BM25 index, kept in sync
// through updates and drops. The BM25 tables must have been declared at
// kv.DB.Open time (bm25.TableConfigs).
func (s *Store) EnableBM25() *Store {
	s.bm25 = true
	return s
}

// docText flattens a node's string-valued properties into the document text
// indexed by BM25, in stable key order so delete can rebuild the same term
// set insert saw.
func docText(props codec.Properties) string {
	keys := make([]string, 0, len(props))
	for k, v := range props {
		if v.Kind == codec.KindString {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = props[k].Str
	}
	return strings.Join(parts, " ")
}

func adjKey(peer id.ID, labelHash [4]byte) []byte {
	b := make([]byte, 0, 20)
	b = append(b, peer[:]...)
	b = append(b, labelHash[:]...)
	return b
}

func adjValue(edge, other id.ID) []byte {
	b := make([]byte, 0, 32)
	b = append(b, edge[:]...)
	b = append(b, other[:]...)
	return b
}

func parseAdjValue(v []byte) AdjEntry {
	var e AdjEntry
	copy(e.EdgeID[:], v[:16])
	copy(e.PeerID[:], v[16:32])
	return e
}

// AddNode inserts a new node and mirrors any declared secondary-index
// fields present in props. Returns the generated id.
func (s *Store) AddNode(wtx kv.WriteTxn, label string, props codec.Properties) (id.ID, error) {
	nid := id.New()
	if err := wtx.Put(TableNodes, nid.Bytes(), codec.EncodeNode(codec.Node{Label: label, Props: props})); err != nil {
		return id.Nil, herrors.Wrap(herrors.KindStorage, "add_n: put node", err)
	}
	if err := s.indexProps(wtx, nid, nil, props); err != nil {
		return id.Nil, err
	}
	if s.bm25 {
		if text := docText(props); text != "" {
			if err := bm25.Insert(wtx, nid, text); err != nil {
				return id.Nil, err
			}
		}
	}
	return nid, nil
}

// GetNode fetches and decodes a node by id.
func (s *Store) GetNode(rtx kv.ReadTxn, nid id.ID) (codec.Node, error) {
	v, err := rtx.Get(TableNodes, nid.Bytes())
	if err != nil {
		return codec.Node{}, herrors.Wrap(herrors.KindStorage, "get node", err)
	}
	if v == nil {
		return codec.Node{}, herrors.New(herrors.KindNotFound, "node not found: "+nid.String())
	}
	n, err := codec.DecodeNode(v)
	if err != nil {
		return codec.Node{}, err
	}
	return n, nil
}

// IterNodes returns a lazily-decoding iterator over every node. Filtering
// by label happens at the traversal layer so the store stays a dumb
// full-scan primitive (no label index is maintained by default).
func (s *Store) IterNodes(rtx kv.ReadTxn) (kv.Iterator, error) {
	return rtx.Iter(TableNodes)
}

// IterEdges returns a lazily-decoding iterator over every edge, the same
// full-scan primitive as IterNodes.
func (s *Store) IterEdges(rtx kv.ReadTxn) (kv.Iterator, error) {
	return rtx.Iter(TableEdges)
}

// AddEdge inserts an edge record and both adjacency entries.
func (s *Store) AddEdge(wtx kv.WriteTxn, label string, from, to id.ID, props codec.Properties) (id.ID, error) {
	eid := id.New()
	if err := wtx.Put(TableEdges, eid.Bytes(), codec.EncodeEdge(codec.Edge{Label: label, FromNode: from, ToNode: to, Props: props})); err != nil {
		return id.Nil, herrors.Wrap(herrors.KindStorage, "add_e: put edge", err)
	}
	lh := id.LabelHash(label)
	if err := wtx.PutDup(TableOutEdges, adjKey(from, lh), adjValue(eid, to)); err != nil {
		return id.Nil, herrors.Wrap(herrors.KindStorage, "add_e: put out adjacency", err)
	}
	if err := wtx.PutDup(TableInEdges, adjKey(to, lh), adjValue(eid, from)); err != nil {
		return id.Nil, herrors.Wrap(herrors.KindStorage, "add_e: put in adjacency", err)
	}
	return eid, nil
}

// GetEdge fetches and decodes an edge by id.
func (s *Store) GetEdge(rtx kv.ReadTxn, eid id.ID) (codec.Edge, error) {
	v, err := rtx.Get(TableEdges, eid.Bytes())
	if err != nil {
		return codec.Edge{}, herrors.Wrap(herrors.KindStorage, "get edge", err)
	}
	if v == nil {
		return codec.Edge{}, herrors.New(herrors.KindNotFound, "edge not found: "+eid.String())
	}
	return codec.DecodeEdge(v)
}

// Out returns the out-adjacency group for (node, label): every edge leaving
// node with that label, in duplicate-sorted (edge id, peer id) order.
func (s *Store) Out(rtx kv.ReadTxn, node id.ID, label string) ([]AdjEntry, error) {
	return s.adjacency(rtx, TableOutEdges, node, label)
}

// In returns the in-adjacency group for (node, label).
func (s *Store) In(rtx kv.ReadTxn, node id.ID, label string) ([]AdjEntry, error) {
	return s.adjacency(rtx, TableInEdges, node, label)
}

func (s *Store) adjacency(rtx kv.ReadTxn, table kv.Table, node id.ID, label string) ([]AdjEntry, error) {
	lh := id.LabelHash(label)
	vals, err := rtx.GetDuplicates(table, adjKey(node, lh))
	if err != nil {
		return nil, herrors.Wrap(herrors.KindStorage, "adjacency lookup", err)
	}
	out := make([]AdjEntry, len(vals))
	for i, v := range vals {
		out[i] = parseAdjValue(v)
	}
	return out, nil
}

// OutAll iterates every out-adjacency entry for node across all labels,
// grouped by label hash in key order.
func (s *Store) OutAll(rtx kv.ReadTxn, node id.ID) (kv.Iterator, error) {
	return rtx.PrefixIter(TableOutEdges, node[:])
}

// InAll iterates every in-adjacency entry for node across all labels.
func (s *Store) InAll(rtx kv.ReadTxn, node id.ID) (kv.Iterator, error) {
	return rtx.PrefixIter(TableInEdges, node[:])
}

// UpdateNode merges props into the node's existing properties and mirrors
// any changed, index-declared fields. An empty merged map is stored as "no
// properties" rather than an empty map.
func (s *Store) UpdateNode(wtx kv.WriteTxn, nid id.ID, patch codec.Properties) error {
	n, err := s.GetNode(wtx, nid)
	if err != nil {
		return err
	}
	old := n.Props
	merged := mergeProps(n.Props, patch)
	n.Props = merged
	if err := wtx.Put(TableNodes, nid.Bytes(), codec.EncodeNode(n)); err != nil {
		return herrors.Wrap(herrors.KindStorage, "update: put node", err)
	}
	if err := s.indexProps(wtx, nid, old, patch); err != nil {
		return err
	}
	if s.bm25 {
		oldText, newText := docText(old), docText(merged)
		if oldText != newText {
			if err := bm25.Delete(wtx, nid, oldText); err != nil {
				return err
			}
			if newText != "" {
				if err := bm25.Insert(wtx, nid, newText); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func mergeProps(base, patch codec.Properties) codec.Properties {
	if len(base) == 0 && len(patch) == 0 {
		return nil
	}
	out := make(codec.Properties, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// indexProps mirrors every touched, index-declared field in patch: it
// removes the old (value, id) pair (if old had the field and a table
// exists) and inserts the new one, within the caller's transaction. A patch
// field with a declared index but no backing table fails the write: a
// missing index table is a storage error, not a silent skip.
func (s *Store) indexProps(wtx kv.WriteTxn, nid id.ID, old, patch codec.Properties) error {
	for field, newVal := range patch {
		if !s.secondaryIndices[field] {
			continue
		}
		table := SecondaryIndexTable(field)
		if oldVal, ok := old[field]; ok {
			oldKey := codec.Encode(nil, oldVal)
			if err := wtx.DeleteOneDup(table, oldKey, nid.Bytes()); err != nil {
				return herrors.Wrapf(herrors.KindStorage, err, "remove stale index entry for field %q", field)
			}
		}
		newKey := codec.Encode(nil, newVal)
		if err := wtx.PutDup(table, newKey, nid.Bytes()); err != nil {
			return herrors.Wrapf(herrors.KindStorage, err, "index field %q has no backing table", field)
		}
	}
	return nil
}

// NodesFromIndex returns every node id whose field's current value equals
// key.
func (s *Store) NodesFromIndex(rtx kv.ReadTxn, field string, value codec.Value) ([]id.ID, error) {
	if !s.secondaryIndices[field] {
		return nil, herrors.New(herrors.KindInvalid, "no secondary index declared on field "+field)
	}
	table := SecondaryIndexTable(field)
	key := codec.Encode(nil, value)
	vals, err := rtx.GetDuplicates(table, key)
	if err != nil {
		return nil, herrors.Wrap(herrors.KindStorage, "index lookup", err)
	}
	out := make([]id.ID, len(vals))
	for i, v := range vals {
		nid, _ := id.FromBytes(v)
		out[i] = nid
	}
	return out, nil
}

// MigrateNode replaces a node's label and property map wholesale, keeping
// its id and incident edges. Secondary-index entries for the old properties
// are removed and entries for the new properties inserted, and the BM25
// document is rebuilt when lexical indexing is enabled, all in the caller's
// transaction. Schema migration is the caller.
func (s *Store) MigrateNode(wtx kv.WriteTxn, nid id.ID, label string, props codec.Properties) error {
	n, err := s.GetNode(wtx, nid)
	if err != nil {
		return err
	}
	for field, val := range n.Props {
		if !s.secondaryIndices[field] {
			continue
		}
		if err := wtx.DeleteOneDup(SecondaryIndexTable(field), codec.Encode(nil, val), nid.Bytes()); err != nil {
			return herrors.Wrapf(herrors.KindStorage, err, "migrate node: stale index entry for field %q", field)
		}
	}
	if err := wtx.Put(TableNodes, nid.Bytes(), codec.EncodeNode(codec.Node{Label: label, Props: props})); err != nil {
		return herrors.Wrap(herrors.KindStorage, "migrate node: put record", err)
	}
	if err := s.indexProps(wtx, nid, nil, props); err != nil {
		return err
	}
	if s.bm25 {
		if err := bm25.Delete(wtx, nid, docText(n.Props)); err != nil {
			return err
		}
		if text := docText(props); text != "" {
			if err := bm25.Insert(wtx, nid, text); err != nil {
				return err
			}
		}
	}
	return nil
}

// DropEdge deletes the edge record and both adjacency entries. Dropping an
// already-absent edge is a no-op.
func (s *Store) DropEdge(wtx kv.WriteTxn, eid id.ID) error {
	e, err := s.GetEdge(wtx, eid)
	if err != nil {
		if herrors.KindOf(err) == herrors.KindNotFound {
			return nil
		}
		return err
	}
	lh := id.LabelHash(e.Label)
	if err := wtx.DeleteOneDup(TableOutEdges, adjKey(e.FromNode, lh), adjValue(eid, e.ToNode)); err != nil {
		return herrors.Wrap(herrors.KindStorage, "drop edge: out adjacency", err)
	}
	if err := wtx.DeleteOneDup(TableInEdges, adjKey(e.ToNode, lh), adjValue(eid, e.FromNode)); err != nil {
		return herrors.Wrap(herrors.KindStorage, "drop edge: in adjacency", err)
	}
	if err := wtx.Delete(TableEdges, eid.Bytes()); err != nil {
		return herrors.Wrap(herrors.KindStorage, "drop edge: record", err)
	}
	return nil
}

// DropNode enumerates and deletes every incident edge (both directions),
// the node record, and any secondary-index entries mirroring the node's
// properties.
func (s *Store) DropNode(wtx kv.WriteTxn, nid id.ID) error {
	n, err := s.GetNode(wtx, nid)
	if err != nil {
		if herrors.KindOf(err) == herrors.KindNotFound {
			return nil
		}
		return err
	}

	outIt, err := wtx.PrefixIter(TableOutEdges, nid[:])
	if err != nil {
		return err
	}
	var outEdges []id.ID
	for outIt.Next() {
		entry := parseAdjValue(outIt.Value())
		outEdges = append(outEdges, entry.EdgeID)
	}
	outIt.Close()

	inIt, err := wtx.PrefixIter(TableInEdges, nid[:])
	if err != nil {
		return err
	}
	var inEdges []id.ID
	for inIt.Next() {
		entry := parseAdjValue(inIt.Value())
		inEdges = append(inEdges, entry.EdgeID)
	}
	inIt.Close()

	for _, eid := range outEdges {
		if err := s.DropEdge(wtx, eid); err != nil {
			return err
		}
	}
	for _, eid := range inEdges {
		if err := s.DropEdge(wtx, eid); err != nil {
			return err
		}
	}

	for field, val := range n.Props {
		if !s.secondaryIndices[field] {
			continue
		}
		key := codec.Encode(nil, val)
		if err := wtx.DeleteOneDup(SecondaryIndexTable(field), key, nid.Bytes()); err != nil {
			return herrors.Wrapf(herrors.KindStorage, err, "drop node: index field %q", field)
		}
	}

	if s.bm25 {
		if err := bm25.Delete(wtx, nid, docText(n.Props)); err != nil {
			return err
		}
	}

	if err := wtx.Delete(TableNodes, nid.Bytes()); err != nil {
		return herrors.Wrap(herrors.KindStorage, "drop node: record", err)
	}
	return nil
}

// HasPrefix is a small re-export used by callers composing custom adjacency
// scans outside this package (e.g. graph visualization export).
func HasPrefix(key, prefix []byte) bool { return bytes.HasPrefix(key, prefix) }
