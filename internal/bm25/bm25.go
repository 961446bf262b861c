// Package bm25 implements the Okapi BM25 lexical index: an inverted index
// with document-frequency bookkeeping, incremental corpus statistics, and
// hybrid fusion with vector search.
package bm25

import (
	"encoding/binary"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/id"
	"github.com/helixdb/helixdb/internal/kv"
)

const (
	TableInvertedIndex   kv.Table = "bm25_inverted_index"
	TableDocLengths      kv.Table = "bm25_doc_lengths"
	TableTermFrequencies kv.Table = "bm25_term_frequencies"
	TableMetadata        kv.Table = "bm25_metadata"

	// minTermLen drops tokens of length <= 2, applied unconditionally so
	// indexing and search never disagree on tokenization.
	minTermLen = 3

	defaultK1 = 1.2
	defaultB  = 0.75
)

// TableConfigs returns the kv.TableConfig set the BM25 index needs.
func TableConfigs() []kv.TableConfig {
	return []kv.TableConfig{
		// posting value = 16-byte doc id ∥ 4-byte term frequency.
		{Name: TableInvertedIndex, DupSorted: true, DupValueLen: 20},
		{Name: TableDocLengths, DupSorted: false},
		{Name: TableTermFrequencies, DupSorted: false},
		{Name: TableMetadata, DupSorted: false},
	}
}

// Tokenize lowercases s, splits on non-alphanumeric runes, drops empty
// tokens, and (always, to keep indexing and search consistent) drops
// tokens of length <= 2.
func Tokenize(s string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() >= minTermLen {
			out = append(out, cur.String())
		}
		cur.Reset()
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return out
}

// Metadata is the single-key corpus summary record.
type Metadata struct {
	TotalDocs uint64
	AvgDL     float64
	K1        float64
	B         float64
}

var metaKey = []byte("meta")

func getMetadata(rtx kv.ReadTxn) (Metadata, error) {
	v, err := rtx.Get(TableMetadata, metaKey)
	if err != nil {
		return Metadata{}, herrors.Wrap(herrors.KindBM25, "read metadata", err)
	}
	if v == nil {
		return Metadata{K1: defaultK1, B: defaultB}, nil
	}
	if len(v) < 24 {
		return Metadata{}, herrors.New(herrors.KindBM25, "corrupt metadata record")
	}
	return Metadata{
		TotalDocs: binary.BigEndian.Uint64(v[0:8]),
		AvgDL:     math.Float64frombits(binary.BigEndian.Uint64(v[8:16])),
		K1:        math.Float64frombits(binary.BigEndian.Uint64(v[16:24])),
		B:         metaBOrDefault(v),
	}, nil
}

func metaBOrDefault(v []byte) float64 {
	if len(v) < 32 {
		return defaultB
	}
	return math.Float64frombits(binary.BigEndian.Uint64(v[24:32]))
}

func putMetadata(wtx kv.WriteTxn, m Metadata) error {
	if m.K1 == 0 {
		m.K1 = defaultK1
	}
	if m.B == 0 {
		m.B = defaultB
	}
	buf := make([]byte, 32)
	binary.BigEndian.PutUint64(buf[0:8], m.TotalDocs)
	binary.BigEndian.PutUint64(buf[8:16], math.Float64bits(m.AvgDL))
	binary.BigEndian.PutUint64(buf[16:24], math.Float64bits(m.K1))
	binary.BigEndian.PutUint64(buf[24:32], math.Float64bits(m.B))
	return wtx.Put(TableMetadata, metaKey, buf)
}

func getDocLength(rtx kv.ReadTxn, docID id.ID) (uint32, bool, error) {
	v, err := rtx.Get(TableDocLengths, docID.Bytes())
	if err != nil {
		return 0, false, herrors.Wrap(herrors.KindBM25, "read doc length", err)
	}
	if v == nil {
		return 0, false, nil
	}
	return binary.BigEndian.Uint32(v), true, nil
}

func putDocLength(wtx kv.WriteTxn, docID id.ID, length uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], length)
	return wtx.Put(TableDocLengths, docID.Bytes(), buf[:])
}

func getDF(rtx kv.ReadTxn, term string) (uint32, error) {
	v, err := rtx.Get(TableTermFrequencies, []byte(term))
	if err != nil {
		return 0, herrors.Wrap(herrors.KindBM25, "read term df", err)
	}
	if v == nil {
		return 0, nil
	}
	return binary.BigEndian.Uint32(v), nil
}

func putDF(wtx kv.WriteTxn, term string, df uint32) error {
	if df == 0 {
		return wtx.Delete(TableTermFrequencies, []byte(term))
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], df)
	return wtx.Put(TableTermFrequencies, []byte(term), buf[:])
}

func postingValue(docID id.ID, tf uint32) []byte {
	buf := make([]byte, 20)
	copy(buf[:16], docID.Bytes())
	binary.BigEndian.PutUint32(buf[16:], tf)
	return buf
}

func parsePosting(v []byte) (id.ID, uint32) {
	docID, _ := id.FromBytes(v[:16])
	return docID, binary.BigEndian.Uint32(v[16:20])
}

// Insert tokenizes text, writes one posting per distinct term, and updates
// the corpus's running average document length.
func Insert(wtx kv.WriteTxn, docID id.ID, text string) error {
	tokens := Tokenize(text)
	tf := make(map[string]uint32, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}

	for term, count := range tf {
		if err := wtx.PutDup(TableInvertedIndex, []byte(term), postingValue(docID, count)); err != nil {
			return herrors.Wrap(herrors.KindBM25, "insert posting", err)
		}
		df, err := getDF(wtx, term)
		if err != nil {
			return err
		}
		if err := putDF(wtx, term, df+1); err != nil {
			return err
		}
	}

	if err := putDocLength(wtx, docID, uint32(len(tokens))); err != nil {
		return herrors.Wrap(herrors.KindBM25, "put doc length", err)
	}

	meta, err := getMetadata(wtx)
	if err != nil {
		return err
	}
	total := float64(meta.TotalDocs)
	meta.AvgDL = (meta.AvgDL*total + float64(len(tokens))) / (total + 1)
	meta.TotalDocs++
	return putMetadata(wtx, meta)
}

// Delete removes every posting for docID. When text is non-empty it scopes
// the scan to the terms text contains (the common case); an empty text
// forces a full inverted-index scan, the fallback for when the document's
// text is unavailable at delete time.
func Delete(wtx kv.WriteTxn, docID id.ID, text string) error {
	length, found, err := getDocLength(wtx, docID)
	if err != nil {
		return err
	}
	if !found {
		return nil // idempotent: already absent
	}

	var terms []string
	if text != "" {
		seen := make(map[string]bool)
		for _, t := range Tokenize(text) {
			if !seen[t] {
				seen[t] = true
				terms = append(terms, t)
			}
		}
	} else {
		terms, err = allTerms(wtx)
		if err != nil {
			return err
		}
	}

	for _, term := range terms {
		postings, err := wtx.GetDuplicates(TableInvertedIndex, []byte(term))
		if err != nil {
			return herrors.Wrap(herrors.KindBM25, "scan postings", err)
		}
		removed := false
		for _, p := range postings {
			pid, tf := parsePosting(p)
			if pid == docID {
				if err := wtx.DeleteOneDup(TableInvertedIndex, []byte(term), postingValue(pid, tf)); err != nil {
					return herrors.Wrap(herrors.KindBM25, "delete posting", err)
				}
				removed = true
			}
		}
		if removed {
			df, err := getDF(wtx, term)
			if err != nil {
				return err
			}
			if df > 0 {
				if err := putDF(wtx, term, df-1); err != nil {
					return err
				}
			}
		}
	}

	if err := wtx.Delete(TableDocLengths, docID.Bytes()); err != nil {
		return herrors.Wrap(herrors.KindBM25, "delete doc length", err)
	}

	meta, err := getMetadata(wtx)
	if err != nil {
		return err
	}
	if meta.TotalDocs > 0 {
		total := float64(meta.TotalDocs)
		meta.AvgDL = (meta.AvgDL*total - float64(length)) / (total - 1)
		meta.TotalDocs--
		if meta.TotalDocs == 0 {
			meta.AvgDL = 0
		}
	}
	return putMetadata(wtx, meta)
}

func allTerms(rtx kv.ReadTxn) ([]string, error) {
	it, err := rtx.Iter(TableTermFrequencies)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var terms []string
	for it.Next() {
		terms = append(terms, string(it.Key()))
	}
	return terms, nil
}

// Scored is one ranked document.
type Scored struct {
	DocID id.ID
	Score float64
}

// Search scores every document containing at least one query term and
// returns the top-k by descending BM25 score.
func Search(rtx kv.ReadTxn, query string, k int) ([]Scored, error) {
	meta, err := getMetadata(rtx)
	if err != nil {
		return nil, err
	}
	n := float64(meta.TotalDocs)
	if n == 0 {
		n = 1
	}
	avgdl := meta.AvgDL
	if avgdl == 0 {
		avgdl = 1
	}
	k1, b := meta.K1, meta.B
	if k1 == 0 {
		k1 = defaultK1
	}
	if b == 0 {
		b = defaultB
	}

	scores := make(map[id.ID]float64)
	lengths := make(map[id.ID]uint32)
	for _, term := range uniqueTerms(Tokenize(query)) {
		df, err := getDF(rtx, term)
		if err != nil {
			return nil, err
		}
		effDF := float64(df)
		if effDF == 0 {
			effDF = 1
		}
		idf := math.Log((n-effDF+0.5)/(effDF+0.5) + 1)

		postings, err := rtx.GetDuplicates(TableInvertedIndex, []byte(term))
		if err != nil {
			return nil, err
		}
		for _, p := range postings {
			docID, tf := parsePosting(p)
			length, ok := lengths[docID]
			if !ok {
				l, found, err := getDocLength(rtx, docID)
				if err != nil {
					return nil, err
				}
				if !found || l == 0 {
					l = uint32(avgdl)
				}
				lengths[docID] = l
				length = l
			}
			tfPart := float64(tf) * (k1 + 1) / (float64(tf) + k1*(1-b+b*float64(length)/avgdl))
			scores[docID] += idf * tfPart
		}
	}

	out := make([]Scored, 0, len(scores))
	for docID, score := range scores {
		out = append(out, Scored{DocID: docID, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID.Less(out[j].DocID)
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	var out []string
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
