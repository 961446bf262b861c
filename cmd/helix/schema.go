package main

import (
	"fmt"
	"os"

	"github.com/helixdb/helixdb/internal/compiler"
	"github.com/helixdb/helixdb/internal/project"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect a project's analyzed schema",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export [project-dir]",
	Short: "Render the analyzed node/edge/vector schema as YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSchemaExport,
}

func init() {
	schemaCmd.AddCommand(schemaExportCmd)
	rootCmd.AddCommand(schemaCmd)
}

// yamlField mirrors compiler.FieldDecl without its source position, which
// is meaningless to an external consumer of the exported schema.
type yamlField struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type yamlEdge struct {
	Name   string      `yaml:"name"`
	From   string      `yaml:"from"`
	To     string      `yaml:"to"`
	Fields []yamlField `yaml:"fields,omitempty"`
}

type yamlSchema struct {
	Nodes   map[string][]yamlField `yaml:"nodes,omitempty"`
	Vectors map[string][]yamlField `yaml:"vectors,omitempty"`
	Edges   map[string]yamlEdge    `yaml:"edges,omitempty"`
}

func runSchemaExport(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	p, err := project.Load(dir)
	if err != nil {
		return err
	}
	if compiler.HasErrors(p.Sem.Diagnostics) {
		for _, d := range p.Sem.Diagnostics {
			fmt.Fprintln(os.Stderr, d.String())
		}
		return fmt.Errorf("project has compile errors, refusing to export schema")
	}

	out := yamlSchema{
		Nodes:   map[string][]yamlField{},
		Vectors: map[string][]yamlField{},
		Edges:   map[string]yamlEdge{},
	}
	for name, decl := range p.Sem.Schema.Nodes {
		out.Nodes[name] = yamlFields(decl.Fields)
	}
	for name, decl := range p.Sem.Schema.Vectors {
		out.Vectors[name] = yamlFields(decl.Fields)
	}
	for name, decl := range p.Sem.Schema.Edges {
		out.Edges[name] = yamlEdge{Name: name, From: decl.From, To: decl.To, Fields: yamlFields(decl.Fields)}
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(out)
}

func yamlFields(fields []compiler.FieldDecl) []yamlField {
	out := make([]yamlField, len(fields))
	for i, f := range fields {
		out[i] = yamlField{Name: f.Name, Type: f.Type}
	}
	return out
}
