package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chimera/internal/application/commands"
	"chimera/internal/application/reconcile"
	"chimera/internal/application/retrieval"
	"chimera/internal/config"
	"chimera/internal/logger"
	"chimera/internal/ports"
)

// App holds every wired component of one chimera process
type App struct {
	Log *logger.Logger
	Cfg *config.Config

	Graph   ports.GraphStore
	Cursors ports.CursorStore
	Source  ports.DocumentSource
	LLM     ports.LanguageModel

	Policy    *reconcile.Policy
	Engine    *reconcile.Engine
	Scheduler *reconcile.Scheduler
	Pipeline  *retrieval.Pipeline

	closers []func() error
}

// NewLogger builds the process logger from the log settings
func NewLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.NewWithOptions(logger.Options{
		Mode:       cfg.Log.Mode,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
}

// New opens the stores and clients named by cfg and wires both pipelines.
// On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Log: log, Cfg: cfg}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	log.Info("chimera wired",
		"source", a.Source.Name(),
		"graph", cfg.Graph.Backend,
		"cursor", cfg.Cursor.Backend,
		"model", cfg.LLM.Model,
	)
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	var err error
	if err = a.wireStores(ctx); err != nil {
		return err
	}
	if a.Source, err = wireSource(a.Cfg, a.Log); err != nil {
		return err
	}
	if a.LLM, err = wireLLM(a.Cfg, a.Log); err != nil {
		return err
	}
	return a.wireServices()
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases stores in reverse opening order
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// StatusCommand reports on this process's index and scheduler
func (a *App) StatusCommand() *commands.StatusCommand {
	return commands.NewStatusCommand(a.Source.Name(), a.Graph, a.Cursors, a.Policy, a.Scheduler)
}

// SyncCommand builds a sync trigger for mode (auto, incremental or full)
func (a *App) SyncCommand(mode string) *commands.SyncCommand {
	return commands.NewSyncCommand(a.Scheduler, a.Policy, a.Cursors, mode)
}

// QueryCommand builds a query against the retrieval pipeline
func (a *App) QueryCommand(text, clientID string, limit int) *commands.QueryCommand {
	return commands.NewQueryCommand(a.Pipeline, text, clientID, limit)
}

// RunScheduler drives periodic sync until ctx is done
func (a *App) RunScheduler(ctx context.Context) {
	a.Log.Info("scheduler started",
		"interval", a.Cfg.Sync.Interval.String(),
		"full_cron", a.Cfg.Sync.FullCron,
	)
	a.Scheduler.Run(ctx)
	a.Log.Info("scheduler stopped")
}

// ShutdownTimeout bounds graceful shutdown of servers started by the binaries
const ShutdownTimeout = 10 * time.Second

func unknownBackend(setting, value string, allowed ...string) error {
	return fmt.Errorf("%s: unknown value %q (want one of %v)", setting, value, allowed)
}
