package codec

import (
	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/id"
)

// Properties is a node/edge/vector's property map. A nil map means "no
// properties" and is distinct from an empty, non-nil map only at the Go
// level: both encode identically (see EncodeProps), so an update whose
// merged map comes out empty stores "no properties" rather than an empty
// map.
type Properties map[string]Value

// Node is the in-memory shape of a graph node, id excluded (the id is
// always the table key).
type Node struct {
	Label string
	Props Properties
}

// Edge is the in-memory shape of a graph edge, id excluded.
type Edge struct {
	Label    string
	FromNode id.ID
	ToNode   id.ID
	Props    Properties
}

// Vector is the in-memory form of a stored vector record: its label,
// level, raw data, and properties.
type Vector struct {
	Label string
	Level uint8
	Data  []float64
	Props Properties
}

// EncodeProps serializes a property map as: varint count, then per-entry
// (varint-length key, Value). A nil/empty map encodes as count 0, so empty
// and nil are indistinguishable on the wire by design.
func EncodeProps(dst []byte, p Properties) []byte {
	dst = appendVarint(dst, uint64(len(p)))
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sortStrings(keys)
	for _, k := range keys {
		dst = appendVarintBytes(dst, []byte(k))
		dst = Encode(dst, p[k])
	}
	return dst
}

func DecodeProps(b []byte) (Properties, []byte, error) {
	n, rest, err := readVarint(b)
	if err != nil {
		return nil, nil, err
	}
	if n == 0 {
		return nil, rest, nil
	}
	out := make(Properties, n)
	for i := uint64(0); i < n; i++ {
		var key []byte
		key, rest, err = readVarintBytes(rest)
		if err != nil {
			return nil, nil, err
		}
		var v Value
		v, rest, err = Decode(rest)
		if err != nil {
			return nil, nil, err
		}
		out[string(key)] = v
	}
	return out, rest, nil
}

func sortStrings(s []string) {
	// Insertion sort, since property maps are small.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// EncodeNode serializes a Node's label and properties. The node's id is
// never included; callers pass it in separately when they need a keyed
// record.
func EncodeNode(n Node) []byte {
	dst := appendVarintBytes(nil, []byte(n.Label))
	dst = EncodeProps(dst, n.Props)
	return dst
}

func DecodeNode(b []byte) (Node, error) {
	label, rest, err := readVarintBytes(b)
	if err != nil {
		return Node{}, herrors.Wrap(herrors.KindStorage, "decode node", err)
	}
	props, _, err := DecodeProps(rest)
	if err != nil {
		return Node{}, herrors.Wrap(herrors.KindStorage, "decode node props", err)
	}
	return Node{Label: string(label), Props: props}, nil
}

// EncodeEdge serializes an Edge's label, endpoints, and properties.
func EncodeEdge(e Edge) []byte {
	dst := appendVarintBytes(nil, []byte(e.Label))
	dst = append(dst, e.FromNode[:]...)
	dst = append(dst, e.ToNode[:]...)
	dst = EncodeProps(dst, e.Props)
	return dst
}

func DecodeEdge(b []byte) (Edge, error) {
	label, rest, err := readVarintBytes(b)
	if err != nil {
		return Edge{}, herrors.Wrap(herrors.KindStorage, "decode edge", err)
	}
	if len(rest) < 32 {
		return Edge{}, herrors.New(herrors.KindStorage, "decode edge: truncated endpoints")
	}
	from, _ := id.FromBytes(rest[:16])
	to, _ := id.FromBytes(rest[16:32])
	rest = rest[32:]
	props, _, err := DecodeProps(rest)
	if err != nil {
		return Edge{}, herrors.Wrap(herrors.KindStorage, "decode edge props", err)
	}
	return Edge{Label: string(label), FromNode: from, ToNode: to, Props: props}, nil
}

// EncodeVectorData serializes the raw f64 vector (the "vectors" table
// value); label/level/properties are kept in the side table so
// neighbor-list reads never have to decode them.
func EncodeVectorData(data []float64) []byte {
	dst := appendVarint(nil, uint64(len(data)))
	for _, f := range data {
		dst = Encode(dst, F64(f))
	}
	return dst
}

func DecodeVectorData(b []byte) ([]float64, error) {
	n, rest, err := readVarint(b)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, n)
	for i := uint64(0); i < n; i++ {
		var v Value
		v, rest, err = Decode(rest)
		if err != nil {
			return nil, err
		}
		out = append(out, v.F64)
	}
	return out, nil
}

// EncodeVectorMeta serializes a vector's label, level, and properties into
// the side table that keeps neighbor-list reads cheap.
func EncodeVectorMeta(label string, level uint8, props Properties) []byte {
	dst := appendVarintBytes(nil, []byte(label))
	dst = append(dst, level)
	dst = EncodeProps(dst, props)
	return dst
}

func DecodeVectorMeta(b []byte) (label string, level uint8, props Properties, err error) {
	lb, rest, err := readVarintBytes(b)
	if err != nil {
		return "", 0, nil, err
	}
	if len(rest) < 1 {
		return "", 0, nil, herrors.New(herrors.KindStorage, "decode vector meta: truncated level")
	}
	level = rest[0]
	rest = rest[1:]
	props, _, err = DecodeProps(rest)
	if err != nil {
		return "", 0, nil, err
	}
	return string(lb), level, props, nil
}
