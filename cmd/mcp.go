package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/theapemachine/recall/pkg/mcp"
)

var (
	mcpCmd = &cobra.Command{
		Use:   "mcp",
		Short: "Serve the memory engine over the Model Context Protocol",
		Long:  longMCP,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}

			engine, err := newEngine(store)
			if err != nil {
				return err
			}

			log.Info("serving mcp over stdio", "backend", "memory engine")

			return mcp.NewServer(store, engine).Serve()
		},
	}
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var longMCP = `
Serve the memory tools over MCP on stdin/stdout, so any MCP-capable
client can store, search, relate, and ask questions against the same
store the CLI uses.

Examples:
  # Serve against the configured stores.
  recall mcp
`
