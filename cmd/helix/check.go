package main

import (
	"fmt"
	"os"

	"github.com/helixdb/helixdb/internal/compiler"
	"github.com/helixdb/helixdb/internal/project"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check [project-dir]",
	Short: "Parse and analyze a project's HQL sources without running them",
	Long: `check loads config.hx.json, concatenates every .hx source file in the
project directory, and runs it through the lexer, parser, and semantic
analyzer, printing every diagnostic found.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	p, err := project.Load(dir)
	if err != nil {
		return err
	}
	for _, d := range p.Sem.Diagnostics {
		fmt.Fprintln(os.Stderr, d.String())
	}
	if compiler.HasErrors(p.Sem.Diagnostics) {
		return fmt.Errorf("check failed with %d diagnostic(s)", len(p.Sem.Diagnostics))
	}
	fmt.Printf("ok: %d quer(y/ies) compiled, %d schema declaration(s)\n",
		len(p.Handlers), len(p.Sem.Schema.Nodes)+len(p.Sem.Schema.Edges)+len(p.Sem.Schema.Vectors))
	return nil
}
