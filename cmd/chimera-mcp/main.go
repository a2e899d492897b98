package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"chimera/internal/app"
	"chimera/internal/config"
)

func main() {
	envFile := flag.String("env", ".env", "env file to load before reading CHIMERA_* variables")
	root := flag.String("root", "", "notes folder for the filesystem source (overrides CHIMERA_SOURCE_ROOT)")
	httpMode := flag.Bool("http", false, "serve streamable HTTP on CHIMERA_MCP_ADDR instead of stdio")
	schedule := flag.Bool("schedule", false, "also run the periodic sync scheduler")
	flag.Parse()

	if err := run(*envFile, *root, *httpMode, *schedule); err != nil {
		fmt.Fprintf(os.Stderr, "chimera-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile, root string, httpMode, schedule bool) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if root != "" {
		cfg.Source.Root = config.ExpandPath(root)
	}

	// stdout belongs to the stdio transport; the logger writes to stderr or a file
	log, err := app.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if httpMode {
		return a.Serve(ctx, app.ServeOptions{
			Name:        "chimera-mcp",
			MCPAddr:     cfg.MCP.Addr,
			MetricsAddr: cfg.MetricsAddr,
			Scheduler:   schedule,
		})
	}

	if schedule {
		go a.RunScheduler(ctx)
	}
	return server.ServeStdio(a.MCPServer("chimera-mcp"))
}
