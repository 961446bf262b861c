// Package project loads a project directory (config.hx.json, schema.hx,
// and one or more query .hx files) into a compiled, runnable set of
// handlers plus an opened store. It is the glue cmd/helix's subcommands
// share so "parse, analyze, generate, open store" is written once.
package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/helixdb/helixdb/internal/bm25"
	"github.com/helixdb/helixdb/internal/compiler"
	"github.com/helixdb/helixdb/internal/compiler/migrate"
	"github.com/helixdb/helixdb/internal/embedprovider"
	"github.com/helixdb/helixdb/internal/graph"
	"github.com/helixdb/helixdb/internal/handler"
	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/kv"
	"github.com/helixdb/helixdb/internal/kv/boltkv"
	"github.com/helixdb/helixdb/internal/vector"
)

// Config is the decoded shape of config.hx.json.
type Config struct {
	VectorConfig struct {
		M              int `json:"m"`
		EfConstruction int `json:"ef_construction"`
		EfSearch       int `json:"ef_search"`
	} `json:"vector_config"`
	GraphConfig struct {
		SecondaryIndices []string `json:"secondary_indices"`
	} `json:"graph_config"`
	DBMaxSizeGB       int64  `json:"db_max_size_gb"`
	BM25              bool   `json:"bm25"`
	MCP               bool   `json:"mcp"`
	EmbeddingModel    string `json:"embedding_model"`
	GraphvisNodeLabel string `json:"graphvis_node_label"`
}

// LoadConfig decodes dir/config.hx.json. A missing file yields the zero
// Config rather than an error, since every field has a documented default.
func LoadConfig(dir string) (Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, "config.hx.json"))
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, herrors.Wrap(herrors.KindInvalid, "read config.hx.json", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, herrors.Wrap(herrors.KindInvalid, "parse config.hx.json", err)
	}
	return cfg, nil
}

// Project is a fully parsed, analyzed, and code-generated project
// directory: everything needed to open a store and start serving handlers.
type Project struct {
	Dir       string
	Config    Config
	File      *compiler.File
	Sem       *compiler.SemFile
	Handlers  []*compiler.HandlerDef
	Embedding *embedprovider.Descriptor
}

// Load reads every .hx source under dir, concatenates them into the single
// compilation unit the language requires, parses, analyzes, and
// (if analysis is clean) lowers the result to handler descriptions. Analysis
// diagnostics are always returned on Sem even when an error aborts codegen,
// so callers (helix check) can print them without a second parse.
func Load(dir string) (*Project, error) {
	cfg, err := LoadConfig(dir)
	if err != nil {
		return nil, err
	}
	src, err := concatSources(dir)
	if err != nil {
		return nil, err
	}
	file, err := compiler.Parse(dir, src)
	if err != nil {
		return nil, herrors.Wrap(herrors.KindCompile, "parse project", err)
	}
	sem := compiler.Analyze(file)
	p := &Project{Dir: dir, Config: cfg, File: file, Sem: sem}
	if cfg.EmbeddingModel != "" {
		desc, derr := embedprovider.Parse(cfg.EmbeddingModel)
		if derr != nil {
			sem.Diagnostics = append(sem.Diagnostics, compiler.Diagnostic{
				Severity: compiler.SevError,
				Message:  "config.hx.json embedding_model: " + derr.Error(),
			})
			return p, nil
		}
		p.Embedding = &desc
	}
	if compiler.HasErrors(sem.Diagnostics) {
		return p, nil
	}
	defs, err := compiler.Generate(sem)
	if err != nil {
		return p, err
	}
	for _, m := range file.Migrations {
		if diags := migrate.Analyze(m, sem.Schema); compiler.HasErrors(diags) {
			sem.Diagnostics = append(sem.Diagnostics, diags...)
			return p, nil
		}
	}
	p.Handlers = defs
	return p, nil
}

// concatSources reads schema.hx (if present) followed by every other *.hx
// file in dir in lexical order, joined by blank lines.
func concatSources(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", herrors.Wrap(herrors.KindInvalid, "read project directory", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".hx") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == "schema.hx" {
			return true
		}
		if names[j] == "schema.hx" {
			return false
		}
		return names[i] < names[j]
	})
	var b strings.Builder
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return "", herrors.Wrap(herrors.KindInvalid, "read "+n, err)
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Opened bundles the store handles a running instance needs, so callers
// have a single value to Close.
type Opened struct {
	DB     kv.DB
	Store  *graph.Store
	Vector *vector.Index
	Engine *handler.Engine
}

// Close releases the underlying store.
func (o *Opened) Close() error { return o.DB.Close() }

// Open opens the bbolt-backed store at dataDir with every table the
// project's configuration requires, builds the graph/vector handles, and
// wires a handler.Engine around the project's compiled handlers.
func (p *Project) Open(dataDir string) (*Opened, error) {
	tables := graph.TableConfigs(p.Config.GraphConfig.SecondaryIndices)
	tables = append(tables, vector.TableConfigs()...)
	if p.Config.BM25 {
		tables = append(tables, bm25.TableConfigs()...)
	}
	maxSize := int64(0)
	if p.Config.DBMaxSizeGB > 0 {
		maxSize = p.Config.DBMaxSizeGB << 30
	}
	db, err := boltkv.Open(kv.Options{Path: dataDir, MaxSizeBytes: maxSize, Tables: tables})
	if err != nil {
		return nil, herrors.Wrap(herrors.KindStorage, "open store", err)
	}
	store := graph.NewStore(p.Config.GraphConfig.SecondaryIndices)
	if p.Config.BM25 {
		store.EnableBM25()
	}
	vecCfg := vector.Normalize(vector.Config{
		M:              p.Config.VectorConfig.M,
		EfConstruction: p.Config.VectorConfig.EfConstruction,
		EfSearch:       p.Config.VectorConfig.EfSearch,
	})
	vec := vector.New(vecCfg)

	registry, err := handler.NewRegistry(p.Handlers)
	if err != nil {
		db.Close()
		return nil, err
	}
	engine := handler.NewEngine(db, store, vec, registry, handler.Options{})
	return &Opened{DB: db, Store: store, Vector: vec, Engine: engine}, nil
}
