// Package kv defines the transactional key-value contract every higher
// layer (graph store, HNSW, BM25) is built on. It is
// intentionally narrow: named tables, snapshot-isolated read transactions,
// a single exclusive write transaction, and prefix/duplicate iteration with
// lazy value decoding left to the caller.
package kv

import (
	"context"
	"errors"
)

// ErrTxnClosed is returned by any operation on a transaction after Commit or
// Abort. Go has no lifetime system to reject this statically, so the
// implementations detect it at run time instead of corrupting memory.
var ErrTxnClosed = errors.New("kv: use of closed transaction")

// Table names a logical table. Duplicate-sort behavior is fixed per table
// at DB-open time via TableConfig, not per call.
type Table string

// TableConfig declares one table's name and storage shape.
type TableConfig struct {
	Name Table
	// DupSorted tables may hold several values under one logical key;
	// values are added with PutDup (Put is rejected on a dup-sorted
	// table), and GetDuplicates/PrefixIter return every value for the key
	// in sorted order.
	DupSorted bool
	// DupValueLen is the fixed byte length of values stored in a
	// dup-sorted table. The bbolt-backed implementation encodes each
	// (key, value) pair as one physical key = key ∥ value, which relies on
	// knowing where key ends and value begins; every dup-sorted table in
	// this engine (adjacency lists, secondary indices) uses fixed-size
	// values so this is always known up front.
	DupValueLen int
}

// Options configures DB.Open.
type Options struct {
	// Path is the directory the store's journal and data files live in.
	Path string
	// MaxSizeBytes is the map-size ceiling; 0 selects the
	// default of 10 GiB. The bbolt-backed implementation rejects a value
	// above HardCapMaxSize at open time; it does not limit the store's
	// size on writes.
	MaxSizeBytes int64
	Tables       []TableConfig
}

const (
	DefaultMaxSize = 10 << 30   // 10 GiB
	HardCapMaxSize = 9998 << 30 // 9998 GiB
)

// DB is an open transactional store.
type DB interface {
	// ReadTxn opens a snapshot-isolated read transaction. Concurrent
	// readers are unbounded.
	ReadTxn(ctx context.Context) (ReadTxn, error)
	// WriteTxn opens the single exclusive write transaction. It blocks
	// until any prior write transaction commits or aborts.
	WriteTxn(ctx context.Context) (WriteTxn, error)
	Close() error
}

// Iterator walks a table or a dup-sorted key's value set. It borrows its
// parent transaction; using it after the transaction ends is a programming
// error, and the bbolt-backed iterator does not detect it.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close()
}

// ReadTxn is the read-only subset of transaction operations, implemented by
// both read and write transactions.
type ReadTxn interface {
	Get(table Table, key []byte) ([]byte, error)
	Iter(table Table) (Iterator, error)
	PrefixIter(table Table, prefix []byte) (Iterator, error)
	GetDuplicates(table Table, key []byte) ([][]byte, error)
	Abort()
}

// WriteTxn adds mutation and commit to ReadTxn. At most one WriteTxn is
// live across the process at a time.
type WriteTxn interface {
	ReadTxn
	Put(table Table, key, value []byte) error
	// PutAppend is Put under the contract that keys arrive in ascending
	// order across a burst of calls; bbolt does not require this for
	// correctness, but bulk node/edge insertion issues keys in id order
	// regardless, and the distinction lets an append-optimized backend
	// exploit it.
	PutAppend(table Table, key, value []byte) error
	// PutDup adds value to the duplicate set for key on a dup-sorted
	// table, preserving sorted order.
	PutDup(table Table, key, value []byte) error
	PutAppendDup(table Table, key, value []byte) error
	Delete(table Table, key []byte) error
	// DeleteOneDup removes exactly one (key, value) pair from a dup-sorted
	// table's duplicate set.
	DeleteOneDup(table Table, key, value []byte) error
	Commit() error
	Abort()
}
