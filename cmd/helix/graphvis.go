package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/helixdb/helixdb/internal/compiler"
	"github.com/helixdb/helixdb/internal/graphvis"
	"github.com/helixdb/helixdb/internal/project"
	"github.com/spf13/cobra"
)

var graphvisCmd = &cobra.Command{
	Use:   "graphvis [project-dir]",
	Short: "Export the graph's nodes and edges as a JSON visualization payload",
	Long: `graphvis walks every node and edge in a project's store and prints a
JSON {nodes, edges} document, honoring graphvis_node_label from
config.hx.json to pick each node's display tag.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraphvis,
}

func init() {
	graphvisCmd.Flags().String("data-dir", "", "Directory the store's data files live in (default: <project>/.helix-data)")
	rootCmd.AddCommand(graphvisCmd)
}

func runGraphvis(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
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
		return fmt.Errorf("project has compile errors; run 'helix check' for details")
	}
	opened, err := p.Open(dataDir)
	if err != nil {
		return err
	}
	defer opened.Close()

	rtx, err := opened.DB.ReadTxn(context.Background())
	if err != nil {
		return err
	}
	defer rtx.Abort()

	g, err := graphvis.Export(rtx, opened.Store, p.Config.GraphvisNodeLabel)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}
