package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conclave-ai/conclave/internal/config"
	"github.com/conclave-ai/conclave/internal/server"
	"github.com/conclave-ai/conclave/internal/state"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Serve the HTTP API: create and control runs, inspect boards and
workers, stream events over WebSocket, and expose Prometheus metrics
on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		addr := serveAddr
		if addr == "" {
			addr = cfg.Server.Addr
		}

		db, err := state.Open(state.GlobalDBPath())
		if err != nil {
			return fmt.Errorf("open state db: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate state db: %w", err)
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		s := server.New(cfg, db, logger)

		if teams, err := loadTeams(); err == nil {
			s.SetTeams(teams)
		} else {
			logger.Warn("loading team templates", "error", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return s.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}
