package mcp

import (
	"fmt"
	"testing"
	"time"

	"github.com/helixdb/helixdb/internal/id"
	"github.com/helixdb/helixdb/internal/kv"
	"github.com/helixdb/helixdb/internal/traversal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTxn satisfies kv.ReadTxn so the table's borrow-and-abort discipline
// can be observed without opening a real store.
type stubTxn struct{ aborted bool }

func (s *stubTxn) Get(kv.Table, []byte) ([]byte, error)             { return nil, nil }
func (s *stubTxn) Iter(kv.Table) (kv.Iterator, error)               { return nil, nil }
func (s *stubTxn) PrefixIter(kv.Table, []byte) (kv.Iterator, error) { return nil, nil }
func (s *stubTxn) GetDuplicates(kv.Table, []byte) ([][]byte, error) { return nil, nil }
func (s *stubTxn) Abort()                                           { s.aborted = true }

func newTestTable(timeout time.Duration) *Table {
	n := 0
	return NewTable(timeout, func() string {
		n++
		return fmt.Sprintf("conn-%d", n)
	})
}

func items(n int) []traversal.TraversalVal {
	out := make([]traversal.TraversalVal, n)
	for i := range out {
		out[i] = traversal.Node(id.New(), "Item", nil)
	}
	return out
}

func TestNextPagesAndReportsMore(t *testing.T) {
	table := newTestTable(time.Minute)
	conn := table.Register(&stubTxn{}, items(5))

	page, more, err := table.Next(conn, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.True(t, more)

	page, more, err = table.Next(conn, 10)
	require.NoError(t, err)
	assert.Len(t, page, 3)
	assert.False(t, more)
}

func TestNextUnknownConnectionErrors(t *testing.T) {
	table := newTestTable(time.Minute)
	_, _, err := table.Next("nope", 1)
	assert.Error(t, err)
}

func TestCollectDrainsAndAbortsTxn(t *testing.T) {
	table := newTestTable(time.Minute)
	txn := &stubTxn{}
	conn := table.Register(txn, items(3))

	_, _, err := table.Next(conn, 1)
	require.NoError(t, err)
	rest, err := table.Collect(conn)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	assert.True(t, txn.aborted)

	_, err = table.Collect(conn)
	assert.Error(t, err)
}

func TestSweepReapsIdleConnections(t *testing.T) {
	table := newTestTable(time.Millisecond)
	stale := &stubTxn{}
	table.Register(stale, items(1))
	fresh := table.Register(&stubTxn{}, items(1))

	time.Sleep(5 * time.Millisecond)
	// Touch one connection so only the other is stale.
	_, _, err := table.Next(fresh, 1)
	require.NoError(t, err)

	reaped := table.sweep()
	assert.Equal(t, 1, reaped)
	assert.True(t, stale.aborted)
	_, _, err = table.Next(fresh, 1)
	assert.NoError(t, err)
}
