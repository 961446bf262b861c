// Package mcp implements the MCP connection table: a process-wide map from
// connection id to a live result cursor, mutated
// under a lock for register/next/collect, and reaped by an idle-timeout
// sweep so a client that never closes its connection doesn't pin a read
// transaction open forever.
package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/helixdb/helixdb/internal/compiler"
	"github.com/helixdb/helixdb/internal/helixlog"
	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/kv"
	"github.com/helixdb/helixdb/internal/traversal"
)

// DefaultIdleTimeout is the connection expiry used when a project's config
// does not override it (Open Question (c)).
const DefaultIdleTimeout = 5 * time.Minute

// connection is one registered MCP result cursor: a materialized result
// set plus the read transaction it was produced under, since the interp
// evaluates a handler body's traversal eagerly (internal/handler has no
// lazy streaming iterator) but a held-open read txn still matters for any
// later re-reads a future lazy implementation might add.
type connection struct {
	rtx        kv.ReadTxn
	items      []traversal.TraversalVal
	cursor     int
	lastAccess time.Time
}

// Table is the process-wide connection registry.
type Table struct {
	mu          sync.Mutex
	conns       map[string]*connection
	idleTimeout time.Duration
	newID       func() string
}

// NewTable builds a Table. newID generates connection ids (helix dev
// passes a generator of "mcp-<unix nanoseconds>" strings; tests can inject
// a deterministic generator).
func NewTable(idleTimeout time.Duration, newID func() string) *Table {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Table{conns: map[string]*connection{}, idleTimeout: idleTimeout, newID: newID}
}

// Register opens a new connection over an already-materialized result set,
// borrowing rtx for the connection's lifetime. The caller must not abort
// rtx itself; Close or a sweep reap does that.
func (t *Table) Register(rtx kv.ReadTxn, items []traversal.TraversalVal) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.newID()
	t.conns[id] = &connection{rtx: rtx, items: items, lastAccess: time.Now()}
	return id
}

// Next returns up to n items starting at the connection's cursor, advancing
// it, and reports whether any more items remain after this page.
func (t *Table) Next(connID string, n int) ([]traversal.TraversalVal, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[connID]
	if !ok {
		return nil, false, herrors.New(herrors.KindNotFound, "unknown mcp connection: "+connID)
	}
	c.lastAccess = time.Now()
	end := c.cursor + n
	if end > len(c.items) {
		end = len(c.items)
	}
	page := c.items[c.cursor:end]
	c.cursor = end
	return page, c.cursor < len(c.items), nil
}

// Collect drains every remaining item and closes the connection.
func (t *Table) Collect(connID string) ([]traversal.TraversalVal, error) {
	t.mu.Lock()
	c, ok := t.conns[connID]
	if !ok {
		t.mu.Unlock()
		return nil, herrors.New(herrors.KindNotFound, "unknown mcp connection: "+connID)
	}
	rest := c.items[c.cursor:]
	c.cursor = len(c.items)
	delete(t.conns, connID)
	t.mu.Unlock()
	c.rtx.Abort()
	return rest, nil
}

// Close aborts and discards a connection without returning its remaining
// items.
func (t *Table) Close(connID string) {
	t.mu.Lock()
	c, ok := t.conns[connID]
	if ok {
		delete(t.conns, connID)
	}
	t.mu.Unlock()
	if ok {
		c.rtx.Abort()
	}
}

// sweep reaps every connection idle longer than the table's timeout,
// returning the count reaped.
func (t *Table) sweep() int {
	t.mu.Lock()
	cutoff := time.Now().Add(-t.idleTimeout)
	var stale []*connection
	for id, c := range t.conns {
		if c.lastAccess.Before(cutoff) {
			stale = append(stale, c)
			delete(t.conns, id)
		}
	}
	t.mu.Unlock()
	for _, c := range stale {
		c.rtx.Abort()
	}
	return len(stale)
}

// StartSweeper runs sweep on interval until ctx is canceled. It is meant to
// be started once alongside the handler runtime.
func (t *Table) StartSweeper(ctx context.Context, interval time.Duration) {
	log := helixlog.WithComponent("mcp")
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := t.sweep(); n > 0 {
					log.Debug().Int("reaped", n).Msg("swept idle mcp connections")
				}
			}
		}
	}()
}

// ToolDescriptor is the MCP-facing description of one exposed query: its
// name and parameter list, generated from a QUERY declaration's MCP flag
// (analyzer-enforced to return exactly one node, edge, or vector value).
type ToolDescriptor struct {
	Name   string
	Params []compiler.Param
}

// ToolDescriptors filters defs down to those marked MCP-exposing and
// renders their descriptor.
func ToolDescriptors(defs []*compiler.HandlerDef) []ToolDescriptor {
	var out []ToolDescriptor
	for _, d := range defs {
		if !d.MCP {
			continue
		}
		out = append(out, ToolDescriptor{Name: d.Name, Params: d.Params})
	}
	return out
}
