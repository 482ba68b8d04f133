package repair

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fixunreads/internal/database"
)

// UserResolver looks up realms and users in the message store.
type UserResolver interface {
	GetRealmByStringID(ctx context.Context, stringID string) (*database.Realm, error)
	GetUserByEmail(ctx context.Context, email string, realmID int64) (*database.User, error)
}

// Result is the outcome for one requested email.
type Result struct {
	Email   string  `json:"email"`
	Skipped bool    `json:"skipped"`
	Report  *Report `json:"report,omitempty"`
	Err     error   `json:"-"`
}

// Runner repairs a list of users one after another. Every user gets an
// independent transaction, so a failure never undoes an earlier commit.
type Runner struct {
	resolver UserResolver
	repairer *Repairer
	limiter  *rate.Limiter
	log      *zap.Logger
}

// NewRunner creates a runner repairing at most perSecond users per second.
// A perSecond of 0 disables throttling.
func NewRunner(resolver UserResolver, repairer *Repairer, log *zap.Logger, perSecond float64, burst int) *Runner {
	if log == nil {
		log = zap.NewNop()
	}

	limit := rate.Inf
	if perSecond > 0 && !math.IsInf(perSecond, 1) {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}

	return &Runner{
		resolver: resolver,
		repairer: repairer,
		limiter:  rate.NewLimiter(limit, burst),
		log:      log,
	}
}

// ResolveRealm maps a realm selector to a realm id. An empty selector means
// every realm and returns 0.
func (r *Runner) ResolveRealm(ctx context.Context, stringID string) (int64, error) {
	if stringID == "" {
		return 0, nil
	}

	realm, err := r.resolver.GetRealmByStringID(ctx, stringID)
	if errors.Is(err, database.ErrNotFound) {
		return 0, fmt.Errorf("%w: %q", ErrRealmNotFound, stringID)
	}
	if err != nil {
		return 0, storeError("get realm", err)
	}
	return realm.ID, nil
}

// ResolveUser finds the user for an email within realmID (0 for any realm).
func (r *Runner) ResolveUser(ctx context.Context, email string, realmID int64) (*database.User, error) {
	user, err := r.resolver.GetUserByEmail(ctx, email, realmID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	case errors.Is(err, database.ErrMultipleFound):
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousUser, email)
	case err != nil:
		return nil, storeError("get user", err)
	}
	return user, nil
}

// RepairEmails repairs each email in order. Unknown users are skipped, failed
// repairs are recorded and the run carries on. The returned error joins every
// per-user failure; an unknown realm or a cancelled context stops the run.
func (r *Runner) RepairEmails(ctx context.Context, realm string, emails []string) ([]Result, error) {
	realmID, err := r.ResolveRealm(ctx, realm)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(emails))
	var failures []error

	for _, email := range emails {
		if err := r.limiter.Wait(ctx); err != nil {
			failures = append(failures, err)
			return results, errors.Join(failures...)
		}

		result := r.repairEmail(ctx, email, realmID, realm)
		if result.Err != nil && !result.Skipped {
			failures = append(failures, fmt.Errorf("%s: %w", email, result.Err))
		}
		results = append(results, result)
	}

	return results, errors.Join(failures...)
}

func (r *Runner) repairEmail(ctx context.Context, email string, realmID int64, realm string) Result {
	user, err := r.ResolveUser(ctx, email, realmID)
	if err != nil {
		if IsSkippable(err) {
			r.log.Warn("user not resolved, skipping",
				zap.String("email", email), zap.String("realm", realm), zap.Error(err))
			return Result{Email: email, Skipped: true, Err: err}
		}
		return Result{Email: email, Err: err}
	}

	report, err := r.repairer.Repair(ctx, user)
	return Result{Email: email, Report: report, Err: err}
}
