package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	mcpadapter "chimera/internal/adapters/mcp"
	"chimera/internal/metrics"
)

// ServeOptions picks what a long-running process hosts
type ServeOptions struct {
	Name        string
	MCPAddr     string // empty disables the MCP HTTP transport
	MetricsAddr string // empty disables /metrics
	Scheduler   bool   // run periodic sync in this process
}

// Serve runs the selected servers and the scheduler until ctx is done or
// one of them fails, then shuts the servers down gracefully
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	g, ctx := errgroup.WithContext(ctx)

	if opts.Scheduler {
		g.Go(func() error {
			a.RunScheduler(ctx)
			return nil
		})
	}

	if opts.MCPAddr != "" {
		mux := http.NewServeMux()
		mux.Handle(mcpadapter.EndpointPath, mcpadapter.NewHTTPHandler(a.MCPServer(opts.Name), a.Cfg.MCP.APIKey, a.Log))
		a.listen(ctx, g, "mcp", opts.MCPAddr, mux)
	}

	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		a.listen(ctx, g, "metrics", opts.MetricsAddr, mux)
	}

	return g.Wait()
}

func (a *App) listen(ctx context.Context, g *errgroup.Group, name, addr string, h http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		a.Log.Info("listening", "server", name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		a.Log.Info("shutting down", "server", name)
		return srv.Shutdown(shutdownCtx)
	})
}
