package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chimera/internal/app"
	"chimera/internal/application/commands"
)

var (
	serveNoMCP       bool
	serveSyncOnStart bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync scheduler, the MCP HTTP endpoint and /metrics",
	Long: `Run periodic reconciliation and serve queries to MCP clients over
streamable HTTP at CHIMERA_MCP_ADDR, with Prometheus metrics at
CHIMERA_METRICS_ADDR. Stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if serveSyncOnStart {
			sync := chimera.SyncCommand(commands.ModeAuto)
			sync.Async = true
			result, err := sync.Execute(ctx)
			if err != nil {
				return err
			}
			log.Info("startup sync", "mode", result.Mode.String(), "outcome", string(result.Outcome))
		}

		opts := app.ServeOptions{
			Name:        "chimera",
			MCPAddr:     chimera.Cfg.MCP.Addr,
			MetricsAddr: chimera.Cfg.MetricsAddr,
			Scheduler:   true,
		}
		if serveNoMCP {
			opts.MCPAddr = ""
		}
		return chimera.Serve(ctx, opts)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoMCP, "no-mcp", false, "run only the scheduler and metrics")
	serveCmd.Flags().BoolVar(&serveSyncOnStart, "sync-on-start", false, "trigger an auto sync before the first tick")
	rootCmd.AddCommand(serveCmd)
}
