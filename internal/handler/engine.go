package handler

import (
	"context"
	"time"

	"github.com/helixdb/helixdb/internal/codec"
	"github.com/helixdb/helixdb/internal/graph"
	"github.com/helixdb/helixdb/internal/helixlog"
	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/kv"
	"github.com/helixdb/helixdb/internal/metrics"
	"github.com/helixdb/helixdb/internal/traversal"
	"github.com/helixdb/helixdb/internal/vector"
)

// Options configures the worker pool an Engine schedules requests through.
type Options struct {
	// MaxConcurrentReads bounds how many read handlers may run at once.
	// 0 selects a default of 64.
	MaxConcurrentReads int
}

// Engine executes compiled handlers against a store. It owns no state of
// its own beyond the worker-pool semaphores: the store, vector index, and
// registry it wraps are the shared, read-only resources every request
// borrows.
type Engine struct {
	db       kv.DB
	store    *graph.Store
	vec      *vector.Index
	registry *Registry

	readSem  chan struct{}
	writeSem chan struct{}
}

// NewEngine builds an Engine. registry must already be populated; it is
// never mutated afterward.
func NewEngine(db kv.DB, store *graph.Store, vec *vector.Index, registry *Registry, opts Options) *Engine {
	n := opts.MaxConcurrentReads
	if n <= 0 {
		n = 64
	}
	return &Engine{
		db:       db,
		store:    store,
		vec:      vec,
		registry: registry,
		readSem:  make(chan struct{}, n),
		writeSem: make(chan struct{}, 1),
	}
}

func (e *Engine) acquire(ctx context.Context, mutating bool) error {
	sem := e.readSem
	if mutating {
		sem = e.writeSem
	}
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release(mutating bool) {
	sem := e.readSem
	if mutating {
		sem = e.writeSem
	}
	<-sem
}

// Execute runs the compiled handler named by name against rawParams (a
// decoded JSON object), returning the RETURN-clause response shape or the
// first error encountered. Mutability of the transaction is decided by the
// handler's own Mutating flag, computed once at compile time.
func (e *Engine) Execute(ctx context.Context, name string, rawParams map[string]any) (response map[string]any, err error) {
	def, ok := e.registry.Get(name)
	if !ok {
		return nil, herrors.New(herrors.KindNotFound, "unknown query: "+name)
	}

	if err := e.acquire(ctx, def.Mutating); err != nil {
		return nil, err
	}
	defer e.release(def.Mutating)

	start := time.Now()
	log := helixlog.WithQuery(name)
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("handler failed")
		} else {
			log.Debug().Dur("elapsed", time.Since(start)).Msg("handler completed")
		}
		metrics.HandlerCalls.WithLabelValues(name, outcome).Inc()
		metrics.HandlerLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	vars := make(map[string]any, len(def.Params))
	for _, p := range def.Params {
		raw, ok := rawParams[p.Name]
		if !ok {
			return nil, herrors.New(herrors.KindInvalid, "missing parameter: "+p.Name)
		}
		v, convErr := codec.FromAny(raw)
		if convErr != nil {
			return nil, herrors.Wrapf(herrors.KindInvalid, convErr, "parameter %q", p.Name)
		}
		vars[p.Name] = v
	}

	if !def.Mutating {
		rtx, rerr := e.db.ReadTxn(ctx)
		if rerr != nil {
			return nil, rerr
		}
		defer rtx.Abort()
		it := &interp{engine: e, ctx: ctx, rtx: rtx, vars: vars}
		if serr := it.runStatements(def.Body); serr != nil {
			return nil, serr
		}
		return it.buildResponse(def.Returns)
	}

	wtx, werr := e.db.WriteTxn(ctx)
	if werr != nil {
		return nil, werr
	}
	it := &interp{engine: e, ctx: ctx, rtx: wtx, wtx: wtx, vars: vars}
	if serr := it.runStatements(def.Body); serr != nil {
		wtx.Abort()
		metrics.WriteTxns.WithLabelValues("aborted").Inc()
		return nil, serr
	}
	resp, rerr := it.buildResponse(def.Returns)
	if rerr != nil {
		wtx.Abort()
		metrics.WriteTxns.WithLabelValues("aborted").Inc()
		return nil, rerr
	}
	if cerr := wtx.Commit(); cerr != nil {
		metrics.WriteTxns.WithLabelValues("aborted").Inc()
		return nil, cerr
	}
	metrics.WriteTxns.WithLabelValues("committed").Inc()
	return resp, nil
}

// ExecuteForMCP runs an MCP-exposing handler the same way Execute does, but
// instead of shaping the single RETURN value into a response map, it
// returns the raw stream of traversal values and the still-open read
// transaction so a caller can register it in the MCP connection table for
// paginated retrieval. The caller
// owns rtx afterward and must eventually abort it (mcp.Table.Collect/Close
// do this).
func (e *Engine) ExecuteForMCP(ctx context.Context, name string, rawParams map[string]any) (kv.ReadTxn, []traversal.TraversalVal, error) {
	def, ok := e.registry.Get(name)
	if !ok {
		return nil, nil, herrors.New(herrors.KindNotFound, "unknown query: "+name)
	}
	if !def.MCP {
		return nil, nil, herrors.New(herrors.KindInvalid, "query is not mcp-exposing: "+name)
	}
	if def.Mutating {
		return nil, nil, herrors.New(herrors.KindInvalid, "mcp queries must be read-only: "+name)
	}
	if err := e.acquire(ctx, false); err != nil {
		return nil, nil, err
	}
	defer e.release(false)

	vars := make(map[string]any, len(def.Params))
	for _, p := range def.Params {
		raw, ok := rawParams[p.Name]
		if !ok {
			return nil, nil, herrors.New(herrors.KindInvalid, "missing parameter: "+p.Name)
		}
		v, convErr := codec.FromAny(raw)
		if convErr != nil {
			return nil, nil, herrors.Wrapf(herrors.KindInvalid, convErr, "parameter %q", p.Name)
		}
		vars[p.Name] = v
	}

	rtx, err := e.db.ReadTxn(ctx)
	if err != nil {
		return nil, nil, err
	}
	it := &interp{engine: e, ctx: ctx, rtx: rtx, vars: vars}
	if serr := it.runStatements(def.Body); serr != nil {
		rtx.Abort()
		return nil, nil, serr
	}
	if len(def.Returns) != 1 {
		rtx.Abort()
		return nil, nil, herrors.New(herrors.KindInvalid, "mcp query must have exactly one return value: "+name)
	}
	val, verr := it.evalLoweredExpr(def.Returns[0].Expr)
	if verr != nil {
		rtx.Abort()
		return nil, nil, verr
	}
	items, aerr := asTraversalItems(val)
	if aerr != nil {
		rtx.Abort()
		return nil, nil, aerr
	}
	return rtx, items, nil
}

func asTraversalItems(val any) ([]traversal.TraversalVal, error) {
	switch v := val.(type) {
	case []traversal.TraversalVal:
		return v, nil
	case traversal.TraversalVal:
		return []traversal.TraversalVal{v}, nil
	default:
		return nil, herrors.New(herrors.KindType, "mcp query did not return a node/edge/vector stream")
	}
}
