package command

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fixunreads/internal/config"
	"fixunreads/internal/database"
	"fixunreads/internal/logger"
	"fixunreads/internal/repair"
	"fixunreads/internal/secrets"
)

// app holds what every command needs once configuration is loaded.
type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *database.DB
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	dsn, err := secrets.ResolveDatabaseURL(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DATABASE_URL: %w", err)
	}

	db, err := database.Open(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, err
	}

	log.Debug("message store opened", zap.String("driver", db.Driver()))

	return &app{cfg: cfg, log: log, db: db}, nil
}

func (a *app) Close() {
	_ = a.db.Close()
	_ = a.log.Sync()
}

// repairOptions starts from the environment and lets explicitly set flags win.
func (a *app) repairOptions(cmd *cobra.Command) repair.Options {
	opts := repair.Options{
		ApplyPreMarker: a.cfg.ApplyPreMarker,
		DryRun:         a.cfg.DryRun,
		Explain:        a.cfg.Explain,
	}

	flags := cmd.Flags()
	if flags.Changed("apply-pre-marker") {
		opts.ApplyPreMarker, _ = flags.GetBool("apply-pre-marker")
	}
	if flags.Changed("dry-run") {
		opts.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("explain") {
		opts.Explain, _ = flags.GetBool("explain")
	}

	return opts
}

func (a *app) newRunner(opts repair.Options) (*repair.Runner, *repair.Repairer) {
	repairer := repair.NewRepairer(a.db, a.log, opts)
	runner := repair.NewRunner(a.db, repairer, a.log, a.cfg.RepairRate, a.cfg.RepairBurst)
	return runner, repairer
}
