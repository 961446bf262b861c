package main

import (
	"fmt"
	"os"

	"github.com/helixdb/helixdb/internal/helixlog"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "helix",
	Short: "HelixDB - an embedded transactional graph, vector, and lexical database",
	Long: `helix compiles HQL query projects and runs them against an embedded,
transactional store combining a labeled property graph, an HNSW vector
index, and a BM25 lexical index.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("helix version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	helixlog.Init(helixlog.Config{
		Level:      helixlog.Level(logLevel),
		JSONOutput: logJSON,
	})
}
