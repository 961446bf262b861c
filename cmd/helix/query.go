package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/helixdb/helixdb/internal/compiler"
	"github.com/helixdb/helixdb/internal/project"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run or list a project's compiled queries",
}

var queryListCmd = &cobra.Command{
	Use:   "list [project-dir]",
	Short: "List the names of every compiled query in a project",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runQueryList,
}

var queryRunCmd = &cobra.Command{
	Use:   "run <query-name> [project-dir]",
	Short: "Run one compiled query once against its store and print the result",
	Long: `run executes a single named, pre-compiled query. Ad-hoc,
non-compiled query execution is not supported: the query must already be
declared in the project's .hx sources.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runQueryRun,
}

func init() {
	queryRunCmd.Flags().String("params", "{}", "JSON object of query parameters")
	queryRunCmd.Flags().String("data-dir", "", "Directory the store's data files live in (default: <project>/.helix-data)")
	queryCmd.AddCommand(queryListCmd)
	queryCmd.AddCommand(queryRunCmd)
	rootCmd.AddCommand(queryCmd)
}

func runQueryList(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	p, err := project.Load(dir)
	if err != nil {
		return err
	}
	if compiler.HasErrors(p.Sem.Diagnostics) {
		return fmt.Errorf("project has compile errors; run 'helix check' for details")
	}
	for _, d := range p.Handlers {
		kind := "read"
		if d.Mutating {
			kind = "write"
		}
		fmt.Printf("%s\t%s\n", d.Name, kind)
	}
	return nil
}

func runQueryRun(cmd *cobra.Command, args []string) error {
	name := args[0]
	dir := "."
	if len(args) > 1 {
		dir = args[1]
	}
	paramsJSON, _ := cmd.Flags().GetString("params")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if dataDir == "" {
		dataDir = dir + "/.helix-data"
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		return fmt.Errorf("invalid --params JSON: %w", err)
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

	resp, err := opened.Engine.Execute(context.Background(), name, params)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
