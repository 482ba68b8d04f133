package repair

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"fixunreads/internal/database"
)

// Store opens the single transaction a repair runs in.
type Store interface {
	WithTx(ctx context.Context, fn func(database.Queries) error, opts ...database.TxOption) error
}

// Options control what a repair is allowed to write.
type Options struct {
	// ApplyPreMarker enables the pre-pointer write. Without it the pass only
	// reports the messages it would mark read.
	ApplyPreMarker bool

	// DryRun runs both passes and rolls the transaction back.
	DryRun bool

	// Explain logs the query plan of every analysis query.
	Explain bool
}

const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
)

// Report describes one user's repair. Counts in a rolled-back report were
// never persisted.
type Report struct {
	UserID  int64  `json:"user_id"`
	Email   string `json:"email"`
	Outcome string `json:"outcome"`
	DryRun  bool   `json:"dry_run"`

	StaleRecipients          []int64 `json:"stale_recipients"`
	StaleSubscriptionCleared int     `json:"stale_subscription_cleared"`

	PreMarkerCandidates int  `json:"pre_marker_candidates"`
	PreMarkerMuted      int  `json:"pre_marker_muted"`
	PreMarkerCleared    int  `json:"pre_marker_cleared"`
	PreMarkerApplied    bool `json:"pre_marker_applied"`

	Phases  []Phase       `json:"phases"`
	Elapsed time.Duration `json:"elapsed"`
}

// Cleared returns the number of read bits the repair set.
func (r *Report) Cleared() int {
	return r.StaleSubscriptionCleared + r.PreMarkerCleared
}

var errDryRun = errors.New("dry run")

type Repairer struct {
	store Store
	log   *zap.Logger
	opts  Options
}

func NewRepairer(store Store, log *zap.Logger, opts Options) *Repairer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repairer{store: store, log: log, opts: opts}
}

func (r *Repairer) Options() Options {
	return r.opts
}

// WithOptions returns a repairer sharing the store and logger with different options.
func (r *Repairer) WithOptions(opts Options) *Repairer {
	return &Repairer{store: r.store, log: r.log, opts: opts}
}

// Repair runs both passes for one user inside one transaction. Either every
// flag change commits or none does. The report is returned on failure too.
func (r *Repairer) Repair(ctx context.Context, user *database.User) (*Report, error) {
	report := &Report{
		UserID: user.ID,
		Email:  user.Email,
		DryRun: r.opts.DryRun,
	}
	log := r.log.With(zap.Int64("user_id", user.ID), zap.String("email", user.Email))

	var txOpts []database.TxOption
	if r.opts.Explain {
		txOpts = append(txOpts, database.WithPlanLogger(func(query string, plan []string) {
			log.Info("query plan", zap.String("query", compactQuery(query)), zap.Strings("plan", plan))
		}))
	}

	log.Info("fixing unreads")
	start := time.Now()

	err := r.store.WithTx(ctx, func(q database.Queries) error {
		pass := &run{ctx: ctx, q: q, user: user, opts: r.opts, log: log, report: report}

		if err := pass.fixUnsubscribed(); err != nil {
			return err
		}
		if err := pass.fixPrePointer(); err != nil {
			return err
		}

		if r.opts.DryRun {
			return errDryRun
		}
		return nil
	}, txOpts...)

	report.Elapsed = time.Since(start)

	switch {
	case errors.Is(err, errDryRun):
		report.Outcome = OutcomeRolledBack
		log.Info("dry run rolled back",
			zap.Int("stale_subscription", report.StaleSubscriptionCleared),
			zap.Int("pre_marker", report.PreMarkerCleared),
			zap.Duration("elapsed", report.Elapsed))
		return report, nil

	case err != nil:
		report.Outcome = OutcomeRolledBack
		if !isClassified(err) {
			err = storeError("transaction", err)
		}
		log.Error("repair rolled back", zap.Error(err))
		return report, err
	}

	report.Outcome = OutcomeCommitted
	log.Info("repair committed",
		zap.Int("stale_subscription", report.StaleSubscriptionCleared),
		zap.Int("pre_marker_candidates", report.PreMarkerCandidates),
		zap.Int("pre_marker", report.PreMarkerCleared),
		zap.Duration("elapsed", report.Elapsed))

	return report, nil
}

func isClassified(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr) ||
		errors.Is(err, ErrUnknownChannel) ||
		errors.Is(err, ErrAmbiguousChannel) ||
		errors.Is(err, ErrMalformedMuteList)
}

// run carries the state of one repair through its passes.
type run struct {
	ctx    context.Context
	q      database.Queries
	user   *database.User
	opts   Options
	log    *zap.Logger
	report *Report
}

func (r *run) phase(name string, elapsed time.Duration, rows int) {
	r.report.Phases = append(r.report.Phases, Phase{Name: name, Elapsed: elapsed, Rows: rows})
	r.log.Debug(name, zap.Duration("elapsed", elapsed), zap.Int("rows", rows))
}

func compactQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
