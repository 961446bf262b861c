// Package handler implements the runtime that executes compiled queries: a
// registry of compiled handlers, request/response shaping, a bounded worker
// pool, and an interpreter that walks a compiler.HandlerDef directly,
// dispatching step names to internal/traversal.Traversal methods. Handlers
// are the only way execution enters the engine.
package handler

import (
	"github.com/helixdb/helixdb/internal/compiler"
	"github.com/helixdb/helixdb/internal/herrors"
)

// Registry is the read-only, process-wide table of compiled handlers,
// populated once at startup from a compiled project and never mutated
// afterward.
type Registry struct {
	defs map[string]*compiler.HandlerDef
}

// NewRegistry builds a Registry from the handlers produced by
// compiler.Generate, rejecting duplicate query names.
func NewRegistry(defs []*compiler.HandlerDef) (*Registry, error) {
	r := &Registry{defs: make(map[string]*compiler.HandlerDef, len(defs))}
	for _, d := range defs {
		if _, exists := r.defs[d.Name]; exists {
			return nil, herrors.New(herrors.KindCompile, "duplicate query name: "+d.Name)
		}
		r.defs[d.Name] = d
	}
	return r, nil
}

// Get looks up a compiled handler by query name.
func (r *Registry) Get(name string) (*compiler.HandlerDef, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns every registered query name, for `helix query list`-style
// introspection.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for name := range r.defs {
		out = append(out, name)
	}
	return out
}
