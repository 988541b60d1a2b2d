// Command rankings is the operator CLI for the rankings engine.
//
// Usage:
//
//	rankings rebuild --triggered-by ops
//	rankings status --id 2f1c...
//	rankings status --latest
//	rankings sweep
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/joshkautz/winter-league-rankings/internal/config"
	"github.com/joshkautz/winter-league-rankings/internal/db"
	"github.com/joshkautz/winter-league-rankings/internal/maintenance"
	"github.com/joshkautz/winter-league-rankings/internal/model"
	"github.com/joshkautz/winter-league-rankings/internal/rankings"
	"github.com/joshkautz/winter-league-rankings/internal/store"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "rankings",
		Short: "Winter League rankings engine CLI",
	}

	root.AddCommand(rebuildCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(sweepCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// withStore connects to the database and hands a run-scoped store to fn.
func withStore(fn func(ctx context.Context, cfg *config.Config, st *store.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, cfg, store.New(pool, cfg.Rating))
}

// --------------------------------------------------------------------------
// rebuild command
// --------------------------------------------------------------------------

func rebuildCmd() *cobra.Command {
	var triggeredBy string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Run a full rankings rebuild inline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				ctrl := rankings.NewController(st, cfg.Rating, logger)
				state, err := ctrl.Begin(ctx, triggeredBy)
				if err != nil {
					return err
				}
				logger.Info("Rebuild started", "calculation_id", state.ID)
				if err := ctrl.Run(ctx, state.ID); err != nil {
					return err
				}
				logger.Info("Rebuild finished", "calculation_id", state.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "cli", "Recorded as the run's trigger identity")
	return cmd
}

// --------------------------------------------------------------------------
// status command
// --------------------------------------------------------------------------

func statusCmd() *cobra.Command {
	var id string
	var latest bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a calculation record",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" && !latest {
				return fmt.Errorf("pass --id or --latest")
			}
			return withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				var state *model.CalculationState
				var err error
				if latest {
					state, err = st.LatestCalculation(ctx)
				} else {
					state, err = st.GetCalculation(ctx, id)
				}
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(state, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Calculation id")
	cmd.Flags().BoolVar(&latest, "latest", false, "Show the most recent calculation")
	return cmd
}

// --------------------------------------------------------------------------
// sweep command
// --------------------------------------------------------------------------

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Fail stale non-terminal calculation records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				mcfg := maintenance.DefaultConfig(cfg.Rating)
				maintenance.SweepStale(ctx, st, mcfg.StaleAfter, logger)
				return nil
			})
		},
	}
}
