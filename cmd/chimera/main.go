package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"chimera/internal/adapters/editor"
	"chimera/internal/adapters/tui"
	"chimera/internal/app"
	"chimera/internal/application/commands"
	"chimera/internal/config"
)

func main() {
	envFile := flag.String("env", ".env", "env file to load before reading CHIMERA_* variables")
	root := flag.String("root", "", "notes folder for the filesystem source (overrides CHIMERA_SOURCE_ROOT)")
	flag.Parse()

	if err := run(*envFile, *root); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile, root string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if root != "" {
		cfg.Source.Root = config.ExpandPath(root)
	}
	// The alternate screen owns the terminal; keep log lines out of it
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.DataDir, "chimera-tui.log")
	}

	log, err := app.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	sync := func(ctx context.Context, mode string) (*commands.SyncResult, error) {
		cmd := a.SyncCommand(mode)
		cmd.Async = true
		return cmd.Execute(ctx)
	}

	model := tui.NewApp(tui.Options{
		Querier: a.Pipeline,
		Status:  a.StatusCommand(),
		Sync:    sync,
		Opener:  editor.NewOpener(),
		Limit:   cfg.Query.DefaultLimit,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
