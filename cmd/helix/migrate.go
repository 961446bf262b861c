package main

import (
	"context"
	"fmt"
	"os"

	"github.com/helixdb/helixdb/internal/codec"
	"github.com/helixdb/helixdb/internal/compiler"
	"github.com/helixdb/helixdb/internal/compiler/migrate"
	"github.com/helixdb/helixdb/internal/graph"
	"github.com/helixdb/helixdb/internal/id"
	"github.com/helixdb/helixdb/internal/kv"
	"github.com/helixdb/helixdb/internal/project"
	"github.com/helixdb/helixdb/internal/vector"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run schema migrations declared in a project's .hx sources",
}

var migrateRunCmd = &cobra.Command{
	Use:   "run <from-schema> <to-schema> [project-dir]",
	Short: "Rewrite every stored item of one schema into another",
	Long: `run executes the MIGRATION block mapping <from-schema> to <to-schema>:
every stored node or vector carrying the source label is rewritten in a
single transaction, renaming and recasting fields per the block, and
relabeled as the target schema. Fields with no mapping are dropped.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runMigrateRun,
}

func init() {
	migrateRunCmd.Flags().String("data-dir", "", "Directory the store's data files live in (default: <project>/.helix-data)")
	migrateCmd.AddCommand(migrateRunCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runMigrateRun(cmd *cobra.Command, args []string) error {
	from, to := args[0], args[1]
	dir := "."
	if len(args) > 2 {
		dir = args[2]
	}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if dataDir == "" {
		dataDir = dir + "/.helix-data"
	}

	p, err := project.Load(dir)
	if err != nil {
		return err
	}
	if compiler.HasErrors(p.Sem.Diagnostics) {
		for _, d := range p.Sem.Diagnostics {
			fmt.Fprintln(os.Stderr, d.String())
		}
		return fmt.Errorf("project has compile errors, see diagnostics above")
	}

	var decl *compiler.MigrationDecl
	for _, m := range p.File.Migrations {
		if m.From == from && m.To == to {
			decl = m
			break
		}
	}
	if decl == nil {
		return fmt.Errorf("no MIGRATION block maps %s to %s", from, to)
	}
	diags := migrate.Analyze(decl, p.Sem.Schema)
	for _, d := range diags {
		fmt.Fprintln(os.Stderr, d.String())
	}
	if compiler.HasErrors(diags) {
		return fmt.Errorf("migration failed analysis, see diagnostics above")
	}
	plan := migrate.Lower(decl)

	opened, err := p.Open(dataDir)
	if err != nil {
		return err
	}
	defer opened.Close()

	wtx, err := opened.DB.WriteTxn(context.Background())
	if err != nil {
		return err
	}

	var migrated int
	if _, ok := p.Sem.Schema.Nodes[from]; ok {
		migrated, err = migrateNodes(wtx, opened.Store, plan)
	} else {
		migrated, err = migrateVectors(wtx, opened.Vector, plan)
	}
	if err != nil {
		wtx.Abort()
		return err
	}
	if err := wtx.Commit(); err != nil {
		return err
	}
	fmt.Printf("migrated %d item(s): %s -> %s\n", migrated, from, to)
	return nil
}

// migrateNodes rewrites every node carrying the plan's source label. Ids are
// collected before any write so the scan never walks its own mutations.
func migrateNodes(wtx kv.WriteTxn, store *graph.Store, plan *migrate.Plan) (int, error) {
	it, err := store.IterNodes(wtx)
	if err != nil {
		return 0, err
	}
	var ids []id.ID
	for it.Next() {
		nid, ok := id.FromBytes(it.Key())
		if !ok {
			continue
		}
		n, err := codec.DecodeNode(it.Value())
		if err != nil {
			it.Close()
			return 0, err
		}
		if n.Label == plan.From {
			ids = append(ids, nid)
		}
	}
	it.Close()

	for _, nid := range ids {
		n, err := store.GetNode(wtx, nid)
		if err != nil {
			return 0, err
		}
		if err := store.MigrateNode(wtx, nid, plan.To, migrate.Apply(plan, n.Props)); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// migrateVectors rewrites the side-table record of every vector carrying the
// plan's source label; levels, neighbor links, and raw data are untouched.
func migrateVectors(wtx kv.WriteTxn, vec *vector.Index, plan *migrate.Plan) (int, error) {
	it, err := wtx.Iter(vector.TableVecMeta)
	if err != nil {
		return 0, err
	}
	type pending struct {
		vid   id.ID
		props codec.Properties
	}
	var todo []pending
	for it.Next() {
		vid, ok := id.FromBytes(it.Key())
		if !ok {
			continue
		}
		label, _, props, err := codec.DecodeVectorMeta(it.Value())
		if err != nil {
			it.Close()
			return 0, err
		}
		if label == plan.From {
			todo = append(todo, pending{vid: vid, props: props})
		}
	}
	it.Close()

	for _, pv := range todo {
		newProps := migrate.Apply(plan, pv.props)
		// The soft-delete tombstone is engine state, not a schema field;
		// carry it across so a migration never resurrects a deleted vector.
		if v, ok := pv.props["is_deleted"]; ok {
			newProps["is_deleted"] = v
		}
		if err := vec.UpdateMeta(wtx, pv.vid, plan.To, newProps); err != nil {
			return 0, err
		}
	}
	return len(todo), nil
}
