package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wisq/autocrew/internal/server"
	"github.com/wisq/autocrew/internal/store"
	"github.com/wisq/autocrew/internal/tma"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the contact tracking server",
	Long: `Starts the HTTP server. Contacts are created from scenarios, fed new
observations and re-solved in the background; every solve is
checkpointed under --data-dir and restored on the next start.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().Int("workers", 4, "Concurrent solves")
	_ = v.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("server.workers", serveCmd.Flags().Lookup("workers"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	solverConfig, err := cfg.SolverConfig()
	if err != nil {
		return err
	}
	solver, err := tma.NewSolver(solverConfig)
	if err != nil {
		return err
	}
	checkpointStore, err := store.NewFSStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	srv := server.NewServer(server.Options{
		Addr:            cfg.Server.Addr,
		Solver:          solver,
		Store:           checkpointStore,
		Settle:          cfg.SettleConfig(),
		ResolveInterval: cfg.Server.ResolveInterval,
		Workers:         cfg.Server.Workers,
	})
	if _, err := srv.Restore(); err != nil {
		return fmt.Errorf("failed to restore contacts: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
