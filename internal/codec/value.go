// Package codec implements the Value sum type and the byte-level
// encoding of node, edge, and vector records. Encoding never includes the
// item's own id: callers always reconstruct it from the key they looked the
// record up by.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/id"
)

// Kind tags a Value's underlying representation.
type Kind byte

const (
	KindNull Kind = iota
	KindString
	KindBool
	KindI8
	KindI16
	KindI32
	KindI64
	KindU8
	KindU16
	KindU32
	KindU64
	KindF32
	KindF64
	KindUUID
	KindDate
	KindArray
	KindObject
)

// Value is a tagged union over the scalar and composite property types a
// node or edge may carry. The zero Value is KindNull.
type Value struct {
	Kind   Kind
	Str    string
	Bool   bool
	I64    int64
	U64    uint64
	F64    float64
	UUID   id.ID
	Date   time.Time
	Array  []Value
	Object map[string]Value
}

func Null() Value                 { return Value{Kind: KindNull} }
func String(s string) Value       { return Value{Kind: KindString, Str: s} }
func Bool(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func I8(v int8) Value             { return Value{Kind: KindI8, I64: int64(v)} }
func I16(v int16) Value           { return Value{Kind: KindI16, I64: int64(v)} }
func I32(v int32) Value           { return Value{Kind: KindI32, I64: int64(v)} }
func I64(v int64) Value           { return Value{Kind: KindI64, I64: v} }
func U8(v uint8) Value            { return Value{Kind: KindU8, U64: uint64(v)} }
func U16(v uint16) Value          { return Value{Kind: KindU16, U64: uint64(v)} }
func U32(v uint32) Value          { return Value{Kind: KindU32, U64: uint64(v)} }
func U64(v uint64) Value          { return Value{Kind: KindU64, U64: v} }
func F32(v float32) Value         { return Value{Kind: KindF32, F64: float64(v)} }
func F64(v float64) Value         { return Value{Kind: KindF64, F64: v} }
func UUID(v id.ID) Value          { return Value{Kind: KindUUID, UUID: v} }
func Date(t time.Time) Value      { return Value{Kind: KindDate, Date: t.UTC()} }
func Array(vs []Value) Value      { return Value{Kind: KindArray, Array: vs} }
func Object(m map[string]Value) Value {
	return Value{Kind: KindObject, Object: m}
}

// FromAny converts a decoded-JSON-shaped Go value (string, bool, float64,
// []any, map[string]any, nil) into a Value tree. Numbers from JSON always
// decode as float64; FromAny keeps them as F64 unless the caller narrows
// them via a schema-driven cast (handled by the analyzer/codegen layer).
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return F64(t), nil
	case int:
		return I64(int64(t)), nil
	case int64:
		return I64(t), nil
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			cv, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			out[i] = cv
		}
		return Array(out), nil
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			cv, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			out[k] = cv
		}
		return Object(out), nil
	default:
		return Value{}, herrors.New(herrors.KindType, fmt.Sprintf("unsupported value type %T", v))
	}
}

// ToAny converts a Value back into a plain Go value suitable for
// encoding/json marshaling at the handler response boundary.
func (v Value) ToAny() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindString:
		return v.Str
	case KindBool:
		return v.Bool
	case KindI8, KindI16, KindI32, KindI64:
		return v.I64
	case KindU8, KindU16, KindU32, KindU64:
		return v.U64
	case KindF32, KindF64:
		return v.F64
	case KindUUID:
		return v.UUID.String()
	case KindDate:
		return v.Date.Format(time.RFC3339)
	case KindArray:
		out := make([]any, len(v.Array))
		for i, e := range v.Array {
			out[i] = e.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.Object))
		for k, e := range v.Object {
			out[k] = e.ToAny()
		}
		return out
	default:
		return nil
	}
}

// Coerce converts v to the given Kind where a reasonable numeric or string
// conversion exists, for use by migration field recasts. It returns an error
// if v's Kind has no sensible conversion to target.
func Coerce(v Value, target Kind) (Value, error) {
	if v.Kind == target {
		return v, nil
	}
	switch target {
	case KindString:
		switch v.Kind {
		case KindI8, KindI16, KindI32, KindI64:
			return String(fmt.Sprintf("%d", v.I64)), nil
		case KindU8, KindU16, KindU32, KindU64:
			return String(fmt.Sprintf("%d", v.U64)), nil
		case KindF32, KindF64:
			return String(fmt.Sprintf("%g", v.F64)), nil
		case KindBool:
			return String(fmt.Sprintf("%t", v.Bool)), nil
		}
	case KindI8, KindI16, KindI32, KindI64:
		n, ok := asInt64(v)
		if !ok {
			return Value{}, herrors.New(herrors.KindType, fmt.Sprintf("cannot recast %v to an integer", v.Kind))
		}
		return Value{Kind: target, I64: n}, nil
	case KindU8, KindU16, KindU32, KindU64:
		n, ok := asInt64(v)
		if !ok {
			return Value{}, herrors.New(herrors.KindType, fmt.Sprintf("cannot recast %v to an unsigned integer", v.Kind))
		}
		return Value{Kind: target, U64: uint64(n)}, nil
	case KindF32, KindF64:
		switch v.Kind {
		case KindI8, KindI16, KindI32, KindI64:
			return Value{Kind: target, F64: float64(v.I64)}, nil
		case KindU8, KindU16, KindU32, KindU64:
			return Value{Kind: target, F64: float64(v.U64)}, nil
		case KindF32, KindF64:
			return Value{Kind: target, F64: v.F64}, nil
		case KindString:
			f, err := strconv.ParseFloat(v.Str, 64)
			if err != nil {
				return Value{}, herrors.New(herrors.KindType, fmt.Sprintf("cannot recast %q to a float", v.Str))
			}
			return Value{Kind: target, F64: f}, nil
		}
	case KindBool:
		if v.Kind == KindString {
			return Bool(v.Str == "true"), nil
		}
	}
	return Value{}, herrors.New(herrors.KindType, fmt.Sprintf("cannot recast %v to %v", v.Kind, target))
}

func asInt64(v Value) (int64, bool) {
	switch v.Kind {
	case KindI8, KindI16, KindI32, KindI64:
		return v.I64, true
	case KindU8, KindU16, KindU32, KindU64:
		return int64(v.U64), true
	case KindF32, KindF64:
		return int64(v.F64), true
	case KindString:
		n, err := strconv.ParseInt(v.Str, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Encode appends the binary encoding of v to dst and returns the extended
// slice. The format is a tag byte followed by a kind-specific payload;
// strings, arrays, and objects are length-prefixed with a varint.
func Encode(dst []byte, v Value) []byte {
	dst = append(dst, byte(v.Kind))
	switch v.Kind {
	case KindNull:
	case KindString:
		dst = appendVarintBytes(dst, []byte(v.Str))
	case KindBool:
		if v.Bool {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case KindI8:
		dst = append(dst, byte(int8(v.I64)))
	case KindI16:
		dst = appendUint16(dst, uint16(int16(v.I64)))
	case KindI32:
		dst = appendUint32(dst, uint32(int32(v.I64)))
	case KindI64:
		dst = appendUint64(dst, uint64(v.I64))
	case KindU8:
		dst = append(dst, byte(v.U64))
	case KindU16:
		dst = appendUint16(dst, uint16(v.U64))
	case KindU32:
		dst = appendUint32(dst, uint32(v.U64))
	case KindU64:
		dst = appendUint64(dst, v.U64)
	case KindF32:
		dst = appendUint32(dst, math.Float32bits(float32(v.F64)))
	case KindF64:
		dst = appendUint64(dst, math.Float64bits(v.F64))
	case KindUUID:
		dst = append(dst, v.UUID[:]...)
	case KindDate:
		dst = appendUint64(dst, uint64(v.Date.UnixNano()))
	case KindArray:
		dst = appendVarint(dst, uint64(len(v.Array)))
		for _, e := range v.Array {
			dst = Encode(dst, e)
		}
	case KindObject:
		keys := make([]string, 0, len(v.Object))
		for k := range v.Object {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dst = appendVarint(dst, uint64(len(keys)))
		for _, k := range keys {
			dst = appendVarintBytes(dst, []byte(k))
			dst = Encode(dst, v.Object[k])
		}
	}
	return dst
}

// Decode reads one Value from the front of b and returns it along with the
// remaining unconsumed bytes.
func Decode(b []byte) (Value, []byte, error) {
	if len(b) == 0 {
		return Value{}, nil, herrors.New(herrors.KindStorage, "decode: empty buffer")
	}
	k := Kind(b[0])
	b = b[1:]
	switch k {
	case KindNull:
		return Null(), b, nil
	case KindString:
		s, rest, err := readVarintBytes(b)
		if err != nil {
			return Value{}, nil, err
		}
		return String(string(s)), rest, nil
	case KindBool:
		if len(b) < 1 {
			return Value{}, nil, herrors.New(herrors.KindStorage, "decode: truncated bool")
		}
		return Bool(b[0] != 0), b[1:], nil
	case KindI8:
		if len(b) < 1 {
			return Value{}, nil, herrors.New(herrors.KindStorage, "decode: truncated i8")
		}
		return I8(int8(b[0])), b[1:], nil
	case KindI16:
		v, rest, err := readUint16(b)
		return I16(int16(v)), rest, err
	case KindI32:
		v, rest, err := readUint32(b)
		return I32(int32(v)), rest, err
	case KindI64:
		v, rest, err := readUint64(b)
		return I64(int64(v)), rest, err
	case KindU8:
		if len(b) < 1 {
			return Value{}, nil, herrors.New(herrors.KindStorage, "decode: truncated u8")
		}
		return U8(b[0]), b[1:], nil
	case KindU16:
		v, rest, err := readUint16(b)
		return U16(v), rest, err
	case KindU32:
		v, rest, err := readUint32(b)
		return U32(v), rest, err
	case KindU64:
		v, rest, err := readUint64(b)
		return U64(v), rest, err
	case KindF32:
		v, rest, err := readUint32(b)
		return F32(math.Float32frombits(v)), rest, err
	case KindF64:
		v, rest, err := readUint64(b)
		return F64(math.Float64frombits(v)), rest, err
	case KindUUID:
		if len(b) < 16 {
			return Value{}, nil, herrors.New(herrors.KindStorage, "decode: truncated uuid")
		}
		u, _ := id.FromBytes(b[:16])
		return UUID(u), b[16:], nil
	case KindDate:
		v, rest, err := readUint64(b)
		if err != nil {
			return Value{}, nil, err
		}
		return Date(time.Unix(0, int64(v)).UTC()), rest, nil
	case KindArray:
		n, rest, err := readVarint(b)
		if err != nil {
			return Value{}, nil, err
		}
		out := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			var e Value
			e, rest, err = Decode(rest)
			if err != nil {
				return Value{}, nil, err
			}
			out = append(out, e)
		}
		return Array(out), rest, nil
	case KindObject:
		n, rest, err := readVarint(b)
		if err != nil {
			return Value{}, nil, err
		}
		out := make(map[string]Value, n)
		for i := uint64(0); i < n; i++ {
			var key []byte
			key, rest, err = readVarintBytes(rest)
			if err != nil {
				return Value{}, nil, err
			}
			var e Value
			e, rest, err = Decode(rest)
			if err != nil {
				return Value{}, nil, err
			}
			out[string(key)] = e
		}
		return Object(out), rest, nil
	default:
		return Value{}, nil, herrors.Wrapf(herrors.KindStorage, nil, "decode: unknown value kind %d", k)
	}
}

func appendUint16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

func appendUint32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendUint64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func readUint16(b []byte) (uint16, []byte, error) {
	if len(b) < 2 {
		return 0, nil, herrors.New(herrors.KindStorage, "decode: truncated u16")
	}
	return binary.BigEndian.Uint16(b), b[2:], nil
}

func readUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, herrors.New(herrors.KindStorage, "decode: truncated u32")
	}
	return binary.BigEndian.Uint32(b), b[4:], nil
}

func readUint64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, herrors.New(herrors.KindStorage, "decode: truncated u64")
	}
	return binary.BigEndian.Uint64(b), b[8:], nil
}

func appendVarint(dst []byte, v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return append(dst, buf[:n]...)
}

func readVarint(b []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, nil, herrors.New(herrors.KindStorage, "decode: bad varint")
	}
	return v, b[n:], nil
}

func appendVarintBytes(dst []byte, b []byte) []byte {
	dst = appendVarint(dst, uint64(len(b)))
	return append(dst, b...)
}

func readVarintBytes(b []byte) ([]byte, []byte, error) {
	n, rest, err := readVarint(b)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, herrors.New(herrors.KindStorage, "decode: truncated bytes")
	}
	return rest[:n], rest[n:], nil
}
