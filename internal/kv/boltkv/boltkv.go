// Package boltkv implements the internal/kv contract on top of
// go.etcd.io/bbolt: a single file, one bucket per table, bbolt transactions
// as the transaction primitive. bbolt has no native duplicate-sort mode, so
// dup-sorted tables are emulated: each logical (key, value) pair is stored
// as one physical key = key ∥ value with an empty payload, which bbolt
// keeps in lexicographic order for free and which prefix iteration over key
// reconstructs as the duplicate set.
package boltkv

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/helixdb/helixdb/internal/helixlog"
	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/kv"
)

type tableInfo struct {
	dupSorted   bool
	dupValueLen int
}

// DB is the bbolt-backed kv.DB.
type DB struct {
	bdb    *bolt.DB
	tables map[kv.Table]tableInfo
}

// Open opens (creating if absent) a bbolt store at opts.Path with one
// bucket per declared table.
func Open(opts kv.Options) (*DB, error) {
	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, herrors.Wrap(herrors.KindStorage, "create data dir", err)
	}
	maxSize := opts.MaxSizeBytes
	if maxSize <= 0 {
		maxSize = kv.DefaultMaxSize
	}
	if maxSize > kv.HardCapMaxSize {
		return nil, herrors.New(herrors.KindStorage, "db_max_size exceeds hard cap")
	}

	bdb, err := bolt.Open(filepath.Join(opts.Path, "helix.db"), 0o600, nil)
	if err != nil {
		return nil, herrors.Wrap(herrors.KindStorage, "open store", err)
	}

	tables := make(map[kv.Table]tableInfo, len(opts.Tables))
	err = bdb.Update(func(tx *bolt.Tx) error {
		for _, t := range opts.Tables {
			if _, err := tx.CreateBucketIfNotExists([]byte(t.Name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", t.Name, err)
			}
			tables[t.Name] = tableInfo{dupSorted: t.DupSorted, dupValueLen: t.DupValueLen}
		}
		return nil
	})
	if err != nil {
		_ = bdb.Close()
		return nil, herrors.Wrap(herrors.KindStorage, "init tables", err)
	}

	log := helixlog.WithComponent("kv")
	log.Info().Str("path", opts.Path).Int("tables", len(tables)).Msg("store opened")
	return &DB{bdb: bdb, tables: tables}, nil
}

func (d *DB) Close() error { return d.bdb.Close() }

func (d *DB) ReadTxn(_ context.Context) (kv.ReadTxn, error) {
	tx, err := d.bdb.Begin(false)
	if err != nil {
		return nil, herrors.Wrap(herrors.KindStorage, "begin read txn", err)
	}
	return &txn{tx: tx, writable: false, tables: d.tables}, nil
}

func (d *DB) WriteTxn(_ context.Context) (kv.WriteTxn, error) {
	tx, err := d.bdb.Begin(true)
	if err != nil {
		return nil, herrors.Wrap(herrors.KindStorage, "begin write txn", err)
	}
	return &txn{tx: tx, writable: true, tables: d.tables}, nil
}

type txn struct {
	tx       *bolt.Tx
	writable bool
	tables   map[kv.Table]tableInfo
	done     bool
}

func (t *txn) bucket(table kv.Table) (*bolt.Bucket, tableInfo, error) {
	if t.done {
		return nil, tableInfo{}, herrors.Wrap(herrors.KindStorage, "transaction access", kv.ErrTxnClosed)
	}
	info, ok := t.tables[table]
	if !ok {
		return nil, tableInfo{}, herrors.New(herrors.KindStorage, fmt.Sprintf("unknown table %q", table))
	}
	b := t.tx.Bucket([]byte(table))
	if b == nil {
		return nil, info, herrors.New(herrors.KindStorage, fmt.Sprintf("missing bucket %q", table))
	}
	return b, info, nil
}

func (t *txn) Get(table kv.Table, key []byte) ([]byte, error) {
	b, info, err := t.bucket(table)
	if err != nil {
		return nil, err
	}
	if info.dupSorted {
		return nil, herrors.New(herrors.KindStorage, "Get not valid on dup-sorted table; use GetDuplicates")
	}
	v := b.Get(key)
	if v == nil {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (t *txn) GetDuplicates(table kv.Table, key []byte) ([][]byte, error) {
	b, info, err := t.bucket(table)
	if err != nil {
		return nil, err
	}
	if !info.dupSorted {
		return nil, herrors.New(herrors.KindStorage, "GetDuplicates requires a dup-sorted table")
	}
	c := b.Cursor()
	var out [][]byte
	for k, _ := c.Seek(key); k != nil && bytes.HasPrefix(k, key) && len(k) == len(key)+info.dupValueLen; k, _ = c.Next() {
		val := make([]byte, info.dupValueLen)
		copy(val, k[len(key):])
		out = append(out, val)
	}
	return out, nil
}

func (t *txn) Iter(table kv.Table) (kv.Iterator, error) {
	return t.PrefixIter(table, nil)
}

func (t *txn) PrefixIter(table kv.Table, prefix []byte) (kv.Iterator, error) {
	b, info, err := t.bucket(table)
	if err != nil {
		return nil, err
	}
	return &cursorIter{c: b.Cursor(), prefix: prefix, info: info, started: false}, nil
}

type cursorIter struct {
	c       *bolt.Cursor
	prefix  []byte
	info    tableInfo
	started bool
	k, v    []byte
	done    bool
}

func (it *cursorIter) Next() bool {
	if it.done {
		return false
	}
	var k, v []byte
	if !it.started {
		it.started = true
		if len(it.prefix) > 0 {
			k, v = it.c.Seek(it.prefix)
		} else {
			k, v = it.c.First()
		}
	} else {
		k, v = it.c.Next()
	}
	if k == nil || (len(it.prefix) > 0 && !bytes.HasPrefix(k, it.prefix)) {
		it.done = true
		return false
	}
	if it.info.dupSorted {
		if len(k) < it.info.dupValueLen {
			it.done = true
			return false
		}
		split := len(k) - it.info.dupValueLen
		it.k = append([]byte(nil), k[:split]...)
		it.v = append([]byte(nil), k[split:]...)
	} else {
		it.k = append([]byte(nil), k...)
		it.v = append([]byte(nil), v...)
	}
	return true
}

func (it *cursorIter) Key() []byte   { return it.k }
func (it *cursorIter) Value() []byte { return it.v }
func (it *cursorIter) Err() error    { return nil }
func (it *cursorIter) Close()        {}

func (t *txn) Put(table kv.Table, key, value []byte) error {
	b, info, err := t.bucket(table)
	if err != nil {
		return err
	}
	if info.dupSorted {
		return herrors.New(herrors.KindStorage, "Put not valid on dup-sorted table; use PutDup")
	}
	return b.Put(key, value)
}

func (t *txn) PutAppend(table kv.Table, key, value []byte) error {
	return t.Put(table, key, value)
}

func (t *txn) PutDup(table kv.Table, key, value []byte) error {
	b, info, err := t.bucket(table)
	if err != nil {
		return err
	}
	if !info.dupSorted {
		return herrors.New(herrors.KindStorage, "PutDup requires a dup-sorted table")
	}
	if len(value) != info.dupValueLen {
		return herrors.New(herrors.KindStorage, "dup value length mismatch")
	}
	physical := append(append([]byte(nil), key...), value...)
	return b.Put(physical, nil)
}

func (t *txn) PutAppendDup(table kv.Table, key, value []byte) error {
	return t.PutDup(table, key, value)
}

func (t *txn) Delete(table kv.Table, key []byte) error {
	b, info, err := t.bucket(table)
	if err != nil {
		return err
	}
	if info.dupSorted {
		return herrors.New(herrors.KindStorage, "Delete not valid on dup-sorted table; use DeleteOneDup")
	}
	return b.Delete(key)
}

func (t *txn) DeleteOneDup(table kv.Table, key, value []byte) error {
	b, info, err := t.bucket(table)
	if err != nil {
		return err
	}
	if !info.dupSorted {
		return herrors.New(herrors.KindStorage, "DeleteOneDup requires a dup-sorted table")
	}
	physical := append(append([]byte(nil), key...), value...)
	return b.Delete(physical)
}

func (t *txn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return herrors.Wrap(herrors.KindStorage, "commit", err)
	}
	return nil
}

func (t *txn) Abort() {
	if t.done {
		return
	}
	t.done = true
	_ = t.tx.Rollback()
}
