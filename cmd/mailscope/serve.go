package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/rpggio/mailscope/internal/config"
	"github.com/rpggio/mailscope/internal/maintenance"
	"github.com/rpggio/mailscope/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long:  "Serves the search, explorer and scope tools over stdio or streamable HTTP. Stdio always runs as the operator.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if transport != "" {
				cfg.Transport.Mode = transport
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "transport mode (stdio|http), overrides MAILSCOPE_TRANSPORT")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logOut := io.Writer(os.Stdout)
	if cfg.Transport.Mode == config.TransportStdio {
		logOut = os.Stderr
	}
	a, err := openAppWith(cfg, logOut)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if sched, err := startMaintenance(a); err != nil {
		return err
	} else if sched != nil {
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sched.Stop(stopCtx); err != nil {
				a.logger.Warn("maintenance stop", "error", err)
			}
		}()
	}

	server := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Search:   a.search,
			Explorer: a.explorer,
			Scope:    a.scope,
			Stats:    a.tracker,
		},
		Resolver:      a.keys,
		AuthEnabled:   cfg.Auth.Enabled,
		TransportMode: cfg.Transport.Mode,
		Logger:        a.logger,
		Version:       Version,
	})

	if cfg.Transport.Mode == config.TransportStdio {
		return runStdioMode(ctx, a.logger, server)
	}
	return runHTTPMode(ctx, a.logger, server, cfg.Server.Host, cfg.Server.Port)
}

// startMaintenance schedules index optimization. An empty schedule returns a
// nil scheduler.
func startMaintenance(a *app) (*maintenance.Scheduler, error) {
	spec := a.cfg.Maintenance.OptimizeSchedule
	if spec == "" {
		return nil, nil
	}
	sched, err := maintenance.NewScheduler(a.db, spec, a.logger)
	if err != nil {
		return nil, err
	}
	sched.Start()
	return sched, nil
}

func runStdioMode(ctx context.Context, logger *slog.Logger, server *sdkmcp.Server) error {
	logger.Info("starting stdio transport", "auth", "disabled")

	// Run blocks until stdin closes or ctx is canceled.
	if err := server.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

func runHTTPMode(ctx context.Context, logger *slog.Logger, server *sdkmcp.Server, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mcp.NewHTTPHandler(server, mcp.HTTPOptions{SessionTimeout: 30 * time.Minute}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	return waitForShutdown(logger, httpServer)
}

func waitForShutdown(logger *slog.Logger, server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
