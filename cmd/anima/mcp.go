package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/anima/internal/cli"
	"github.com/aretw0/anima/internal/config"
	"github.com/aretw0/anima/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the soul as an MCP server.
This allows other agents to talk to the soul through the perceive tool and to
read its memory, facts and blueprint as resources.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Stop()

		app, err := cli.Build(ctx, cfg, cli.BuildOptions{Logger: logger})
		if err != nil {
			return err
		}
		defer app.Close()

		srv := mcp.NewServer(app.Soul, mcp.WithLogger(logger))
		switch cfg.MCP.Transport {
		case "stdio":
			// Logs go to stderr so they never corrupt JSON-RPC on stdout.
			logger.Info("starting MCP server (stdio)", "soul", app.Soul.Name())
			return srv.ServeStdio()
		case "sse":
			baseURL, _ := cmd.Flags().GetString("base-url")
			if baseURL == "" {
				baseURL = defaultBaseURL(cfg.MCP.Addr)
			}
			if err := srv.ServeSSE(ctx, cfg.MCP.Addr, baseURL); err != nil {
				return err
			}
			logger.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", cfg.MCP.Transport)
		}
	},
}

func defaultBaseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", "", "Address to listen on (only for SSE, default "+config.Default().MCP.Addr+")")
	mcpCmd.Flags().String("base-url", "", "Public base URL announced to SSE clients")
	mustBind("mcp.transport", mcpCmd.Flags().Lookup("transport"))
	mustBind("mcp.addr", mcpCmd.Flags().Lookup("addr"))
}
