package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/helixdb/helixdb/internal/compiler"
	"github.com/helixdb/helixdb/internal/handler"
	"github.com/helixdb/helixdb/internal/helixlog"
	"github.com/helixdb/helixdb/internal/instances"
	"github.com/helixdb/helixdb/internal/mcp"
	"github.com/helixdb/helixdb/internal/project"
	"github.com/spf13/cobra"
)

var devCmd = &cobra.Command{
	Use:   "dev [project-dir]",
	Short: "Compile a project and serve its queries from stdin",
	Long: `dev compiles every .hx source in the project directory, opens (or
creates) its on-disk store, registers the running instance in
~/.helix/instances.json, and then reads newline-delimited JSON requests of
the form {"query": "name", "params": {...}} from stdin, writing one JSON
response line per request to stdout until stdin closes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDev,
}

func init() {
	devCmd.Flags().String("data-dir", "", "Directory the store's data files live in (default: <project>/.helix-data)")
	rootCmd.AddCommand(devCmd)
}

// devRequest is one line of stdin input. Plain queries set Query/Params.
// MCP-exposing queries additionally use Op to drive the connection table:
// "register" runs the query and opens a cursor; "next"/"collect"/"close"
// operate on an already-open Conn.
type devRequest struct {
	Query  string         `json:"query"`
	Params map[string]any `json:"params"`
	Op     string         `json:"op,omitempty"`
	Conn   string         `json:"connection,omitempty"`
	Count  int            `json:"count,omitempty"`
}

func runDev(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if dataDir == "" {
		dataDir = os.Getenv("HELIX_DATA_DIR")
	}
	if dataDir == "" {
		dataDir = filepath.Join(dir, ".helix-data")
	}

	log := helixlog.WithComponent("dev")

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

	opened, err := p.Open(dataDir)
	if err != nil {
		return err
	}
	defer opened.Close()

	var table *mcp.Table
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if p.Config.MCP {
		table = mcp.NewTable(mcp.DefaultIdleTimeout, newConnID)
		table.StartSweeper(ctx, time.Minute)
		log.Info().Int("tool_count", len(mcp.ToolDescriptors(p.Handlers))).Msg("mcp enabled")
	}

	regPath, err := instances.DefaultPath()
	if err != nil {
		return err
	}
	reg, err := instances.Open(regPath)
	if err != nil {
		return err
	}
	port, _ := instances.AllocatePort(0)
	absDir, _ := filepath.Abs(dir)
	inst, err := reg.Register(absDir, os.Args[0], port, []string{fmt.Sprintf("stdio://%s", absDir)})
	if err != nil {
		return err
	}
	defer reg.Deregister(inst.ID)
	log.Info().Str("instance", inst.ID).Int("queries", len(p.Handlers)).Msg("instance registered")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	enc := json.NewEncoder(os.Stdout)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req devRequest
		if err := json.Unmarshal(line, &req); err != nil {
			enc.Encode(map[string]string{"error": "invalid request: " + err.Error()})
			continue
		}
		if req.Op != "" {
			enc.Encode(handleMCPOp(ctx, opened, table, req))
			continue
		}
		resp, err := opened.Engine.Execute(ctx, req.Query, req.Params)
		if err != nil {
			enc.Encode(map[string]string{"error": err.Error()})
			continue
		}
		enc.Encode(resp)
	}
	return scanner.Err()
}

func handleMCPOp(ctx context.Context, opened *project.Opened, table *mcp.Table, req devRequest) any {
	if table == nil {
		return map[string]string{"error": "mcp is not enabled for this project"}
	}
	switch req.Op {
	case "register":
		rtx, items, err := opened.Engine.ExecuteForMCP(ctx, req.Query, req.Params)
		if err != nil {
			return map[string]string{"error": err.Error()}
		}
		connID := table.Register(rtx, items)
		return map[string]any{"connection": connID, "count": len(items)}
	case "next":
		n := req.Count
		if n <= 0 {
			n = 20
		}
		page, hasMore, err := table.Next(req.Conn, n)
		if err != nil {
			return map[string]string{"error": err.Error()}
		}
		return map[string]any{"items": handler.RenderItems(page), "has_more": hasMore}
	case "collect":
		rest, err := table.Collect(req.Conn)
		if err != nil {
			return map[string]string{"error": err.Error()}
		}
		return map[string]any{"items": handler.RenderItems(rest)}
	case "close":
		table.Close(req.Conn)
		return map[string]any{"closed": true}
	default:
		return map[string]string{"error": "unknown mcp op: " + req.Op}
	}
}

func newConnID() string {
	return fmt.Sprintf("mcp-%d", time.Now().UnixNano())
}
