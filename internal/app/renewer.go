/**
 * @description
 * The renewal sweep: finds active subscriptions expiring inside the lookahead
 * window and renews each one against the registrar, writing the new expiry
 * back to the store. Candidates are processed independently so one failure
 * never blocks the rest, and renewals PATCH an absolute expiry so overlapping
 * sweeps converge instead of compounding.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meetscribe/subscription-service/internal/domain"
	"github.com/meetscribe/subscription-service/internal/store"
)

// LeaseStore defines the store operations the sweep needs.
type LeaseStore interface {
	FindExpiringBefore(ctx context.Context, cutoff time.Time, cursor *store.ExpiryCursor, limit int) ([]domain.Subscription, *store.ExpiryCursor, error)
	MarkRenewed(ctx context.Context, id string, createdAt time.Time, upd domain.SubscriptionUpdate) error
	MarkInactive(ctx context.Context, id string, createdAt time.Time) error
}

// RenewalClient defines the registrar operation the sweep needs.
type RenewalClient interface {
	Renew(ctx context.Context, id string, extendBy time.Duration) (time.Time, error)
}

// TokenInvalidator forces a credential refresh after a 401.
type TokenInvalidator interface {
	Invalidate()
}

// RenewerConfig bounds one sweep.
type RenewerConfig struct {
	// Lookahead is how far ahead of now a subscription may expire and still
	// be picked up. Must exceed the sweep interval by a safety margin so no
	// lease slips past the window between sweeps.
	Lookahead time.Duration
	// ExtendBy is the lifetime requested on each renewal.
	ExtendBy time.Duration
	// Concurrency bounds parallel renewals, respecting registrar rate limits.
	Concurrency int
	// PageSize bounds each store query so large tables never load at once.
	PageSize int
	// CallTimeout caps each external call so a hung request cannot stall the sweep.
	CallTimeout time.Duration
	Retry       RetryPolicy
}

// Renewer runs renewal sweeps.
type Renewer struct {
	store     LeaseStore
	registrar RenewalClient
	tokens    TokenInvalidator
	logger    *slog.Logger
	cfg       RenewerConfig
}

// NewRenewer creates a sweep runner.
func NewRenewer(leases LeaseStore, registrar RenewalClient, tokens TokenInvalidator, logger *slog.Logger, cfg RenewerConfig) *Renewer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &Renewer{store: leases, registrar: registrar, tokens: tokens, logger: logger, cfg: cfg}
}

// RunSweep executes one find-and-renew cycle. Per-candidate failures are
// isolated and counted in the summary; only a store failure that prevents
// listing candidates fails the sweep itself.
func (r *Renewer) RunSweep(ctx context.Context) (domain.SweepSummary, error) {
	sweepID := uuid.NewString()
	cutoff := time.Now().Add(r.cfg.Lookahead)
	logger := r.logger.With("sweep_id", sweepID)
	logger.Info("starting renewal sweep", "cutoff", cutoff)

	var checked, renewed, failed atomic.Int64

	// Materialize the full candidate set before renewing anything: renewal
	// moves expires_at, which is the pagination sort key, so a renewed lease
	// would sort after the cursor and re-match in later pages of the same
	// sweep if fetching and renewing were interleaved.
	var candidates []domain.Subscription
	var cursor *store.ExpiryCursor
	for {
		page, next, err := r.store.FindExpiringBefore(ctx, cutoff, cursor, r.cfg.PageSize)
		if err != nil {
			logger.Error("failed to query expiring subscriptions", "error", err)
			return r.summary(&checked, &renewed, &failed), err
		}
		candidates = append(candidates, page...)
		if next == nil {
			break
		}
		cursor = next
	}

	g := &errgroup.Group{}
	g.SetLimit(r.cfg.Concurrency)
	for _, sub := range candidates {
		sub := sub
		checked.Add(1)
		g.Go(func() error {
			if r.renewOne(ctx, logger, sub) {
				renewed.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := r.summary(&checked, &renewed, &failed)
	logger.Info("renewal sweep finished",
		"total_checked", summary.TotalChecked,
		"renewed", summary.Renewed,
		"failed", summary.Failed,
	)
	return summary, nil
}

// renewOne resolves a single candidate to exactly one of renewed or failed.
func (r *Renewer) renewOne(ctx context.Context, logger *slog.Logger, sub domain.Subscription) bool {
	logger = logger.With("subscription_id", sub.ID, "resource", sub.Resource)

	newExpiry, err := r.renewExternal(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Gone on the registrar side; unrecoverable without re-creating
			// the subscription, so correct local state and stop tracking it.
			logger.Warn("subscription no longer exists on registrar, marking inactive")
			if markErr := r.markInactive(ctx, sub); markErr != nil {
				logger.Error("failed to mark subscription inactive", "error", markErr)
			}
			return false
		}
		logger.Error("failed to renew subscription", "error", err)
		return false
	}

	upd := domain.SubscriptionUpdate{ExpiresAt: newExpiry, LastRenewedAt: time.Now().UTC()}
	err = r.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
		return r.store.MarkRenewed(callCtx, sub.ID, sub.CreatedAt, upd)
	})
	if err != nil {
		logger.Error("renewed on registrar but failed to record locally", "error", err)
		return false
	}

	logger.Info("renewed subscription", "new_expiry", newExpiry, "renewal_count", sub.RenewalCount+1)
	return true
}

// renewExternal calls the registrar with bounded retry for transient errors
// and a single forced token refresh on an auth failure.
func (r *Renewer) renewExternal(ctx context.Context, id string) (time.Time, error) {
	var newExpiry time.Time
	renew := func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
		var err error
		newExpiry, err = r.registrar.Renew(callCtx, id, r.cfg.ExtendBy)
		return err
	}

	err := r.cfg.Retry.Do(ctx, renew)
	if errors.Is(err, domain.ErrUnauthorized) {
		r.tokens.Invalidate()
		err = renew(ctx)
	}
	return newExpiry, err
}

func (r *Renewer) markInactive(ctx context.Context, sub domain.Subscription) error {
	return r.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
		return r.store.MarkInactive(callCtx, sub.ID, sub.CreatedAt)
	})
}

func (r *Renewer) summary(checked, renewed, failed *atomic.Int64) domain.SweepSummary {
	return domain.SweepSummary{
		TotalChecked: int(checked.Load()),
		Renewed:      int(renewed.Load()),
		Failed:       int(failed.Load()),
	}
}
