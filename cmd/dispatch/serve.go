package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aretw0/dispatch"
	httpapi "github.com/aretw0/dispatch/pkg/adapters/http"
	mcpapi "github.com/aretw0/dispatch/pkg/adapters/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (and optionally the MCP server)",
	Long: `Starts the engine as a service: the JSON API on server.address, the MCP tools
over SSE on server.mcp_address when set, and a periodic session sweep.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		handler := httpapi.NewHandler(a.engine, a.engine,
			httpapi.WithLogger(logger),
			httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
			httpapi.WithGraph(a.engine.Mermaid),
			httpapi.WithMetrics(a.metrics.Handler()),
			httpapi.WithHealthCheck(a.Health),
		)
		srv := &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           handler,
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("http server listening", "address", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				return srv.Close()
			}
			logger.Info("http server stopped gracefully")
			return nil
		})
		if addr := cfg.Server.MCPAddress; addr != "" {
			mcpSrv := mcpapi.NewServer(a.engine, a.engine, strings.TrimSpace(dispatch.Version),
				mcpapi.WithLogger(logger),
				mcpapi.WithGraph(a.engine.Mermaid),
			)
			g.Go(func() error {
				return mcpSrv.ServeSSE(gctx, addr, baseURL(addr))
			})
		}
		g.Go(func() error {
			return sweepEvery(gctx, a.engine, cfg.Sessions.SweepInterval, logger)
		})
		return g.Wait()
	},
}

// sweepEvery sweeps sessions on each tick until ctx is done. Failures are
// logged; the next tick retries.
func sweepEvery(ctx context.Context, eng *dispatch.Engine, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := eng.Sweep(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("session sweep failed", "err", err)
			}
		}
	}
}

// baseURL turns a listen address such as ":8081" into the URL SSE clients post to.
func baseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
