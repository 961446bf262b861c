package vector

import (
	"encoding/binary"

	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/id"
)

// encodeNeighbors serializes a level's neighbor list as a varint count
// followed by that many 16-byte ids.
func encodeNeighbors(ids []id.ID) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64+len(ids)*16)
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(ids)))
	buf = append(buf, tmp[:n]...)
	for _, i := range ids {
		buf = append(buf, i[:]...)
	}
	return buf
}

func decodeNeighbors(b []byte) ([]id.ID, error) {
	if len(b) == 0 {
		return nil, nil
	}
	count, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, herrors.New(herrors.KindStorage, "decode neighbors: bad varint")
	}
	b = b[n:]
	if uint64(len(b)) < count*16 {
		return nil, herrors.New(herrors.KindStorage, "decode neighbors: truncated")
	}
	out := make([]id.ID, count)
	for i := uint64(0); i < count; i++ {
		copy(out[i][:], b[i*16:i*16+16])
	}
	return out, nil
}
