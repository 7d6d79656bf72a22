/**
 * @description
 * This file implements the data access layer for the subscription-service.
 * It contains all the SQL queries and logic for the subscriptions table:
 * idempotent upserts keyed by (subscription_id, created_at), point lookups,
 * the renewal write-back, and the paged expiring-soon query that feeds the
 * renewal sweep.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetscribe/subscription-service/internal/domain"
)

// Repository handles database operations for subscriptions.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const subscriptionColumns = `subscription_id, created_at, resource, change_kinds, kind, expires_at, status, renewal_count, last_renewed_at`

// ExpiryCursor is the keyset-pagination cursor for FindExpiringBefore.
// A nil cursor starts from the beginning.
type ExpiryCursor struct {
	ExpiresAt      time.Time
	SubscriptionID string
}

// Put performs an idempotent upsert keyed by (subscription_id, created_at).
// Registration fields are written on insert only; a repeated Put for the same
// key refreshes the mutable fields and leaves identity untouched.
func (r *Repository) Put(ctx context.Context, sub *domain.Subscription) error {
	if sub.ID == "" || sub.Resource == "" || sub.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: subscription requires id, resource and expires_at", domain.ErrValidation)
	}
	if sub.Status == "" {
		sub.Status = domain.StatusActive
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO subscriptions (subscription_id, created_at, resource, change_kinds, kind, expires_at, status, renewal_count, last_renewed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (subscription_id, created_at) DO UPDATE SET
            expires_at = EXCLUDED.expires_at,
            status = EXCLUDED.status,
            updated_at = NOW()
    `
	_, err := r.db.Exec(ctx, query,
		sub.ID,
		sub.CreatedAt,
		sub.Resource,
		sub.ChangeKinds,
		sub.Kind,
		sub.ExpiresAt,
		sub.Status,
		sub.RenewalCount,
		sub.LastRenewedAt,
	)
	if err != nil {
		return storageErr("put subscription", err)
	}
	return nil
}

// Get retrieves a subscription by its composite key.
func (r *Repository) Get(ctx context.Context, id string, createdAt time.Time) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE subscription_id = $1 AND created_at = $2`
	sub, err := r.scanOne(r.db.QueryRow(ctx, query, id, createdAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: subscription %s", domain.ErrNotFound, id)
		}
		return nil, storageErr("get subscription", err)
	}
	return sub, nil
}

// GetByID retrieves the most recent registration for a subscription ID. Inbound
// notifications carry only the ID, so lease resolution goes through here.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE subscription_id = $1
        ORDER BY created_at DESC
        LIMIT 1
    `
	sub, err := r.scanOne(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: subscription %s", domain.ErrNotFound, id)
		}
		return nil, storageErr("get subscription by id", err)
	}
	return sub, nil
}

// MarkRenewed writes back the result of one successful external renewal.
// renewal_count is bumped in SQL so the increment is monotonic regardless of
// what the caller read; under concurrent renewal of the same lease the
// expiry/last_renewed columns are last-writer-wins, which is acceptable
// because the external renewal sets an absolute expiry.
func (r *Repository) MarkRenewed(ctx context.Context, id string, createdAt time.Time, upd domain.SubscriptionUpdate) error {
	if upd.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: renewal requires a new expiry", domain.ErrValidation)
	}

	query := `
        UPDATE subscriptions
        SET expires_at = $3,
            last_renewed_at = $4,
            renewal_count = renewal_count + 1,
            updated_at = NOW()
        WHERE subscription_id = $1 AND created_at = $2
    `
	tag, err := r.db.Exec(ctx, query, id, createdAt, upd.ExpiresAt, upd.LastRenewedAt)
	if err != nil {
		return storageErr("mark subscription renewed", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: subscription %s", domain.ErrNotFound, id)
	}
	return nil
}

// MarkInactive soft-deletes a subscription. Rows are never physically deleted;
// inactive registrations are kept for audit history.
func (r *Repository) MarkInactive(ctx context.Context, id string, createdAt time.Time) error {
	query := `
        UPDATE subscriptions
        SET status = $3, updated_at = NOW()
        WHERE subscription_id = $1 AND created_at = $2
    `
	tag, err := r.db.Exec(ctx, query, id, createdAt, domain.StatusInactive)
	if err != nil {
		return storageErr("mark subscription inactive", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: subscription %s", domain.ErrNotFound, id)
	}
	return nil
}

// FindExpiringBefore returns up to limit active subscriptions with
// expires_at <= cutoff, soonest first, resuming after the given cursor.
// A nil returned cursor means the result set is exhausted.
func (r *Repository) FindExpiringBefore(ctx context.Context, cutoff time.Time, cursor *ExpiryCursor, limit int) ([]domain.Subscription, *ExpiryCursor, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE status = $1
          AND expires_at <= $2
          AND ($3::timestamptz IS NULL OR (expires_at, subscription_id) > ($3, $4))
        ORDER BY expires_at ASC, subscription_id ASC
        LIMIT $5
    `
	var afterExpiry *time.Time
	var afterID string
	if cursor != nil {
		afterExpiry = &cursor.ExpiresAt
		afterID = cursor.SubscriptionID
	}

	rows, err := r.db.Query(ctx, query, domain.StatusActive, cutoff, afterExpiry, afterID, limit)
	if err != nil {
		return nil, nil, storageErr("find expiring subscriptions", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := r.scanOne(rows)
		if err != nil {
			return nil, nil, storageErr("scan expiring subscription", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, storageErr("iterate expiring subscriptions", err)
	}

	var next *ExpiryCursor
	if len(subs) == limit {
		last := subs[len(subs)-1]
		next = &ExpiryCursor{ExpiresAt: last.ExpiresAt, SubscriptionID: last.ID}
	}
	return subs, next, nil
}

// ListActive returns all active subscriptions, soonest expiry first.
func (r *Repository) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE status = $1
        ORDER BY expires_at ASC
    `
	rows, err := r.db.Query(ctx, query, domain.StatusActive)
	if err != nil {
		return nil, storageErr("list active subscriptions", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := r.scanOne(rows)
		if err != nil {
			return nil, storageErr("scan subscription", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate subscriptions", err)
	}
	return subs, nil
}

func (r *Repository) scanOne(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.CreatedAt,
		&sub.Resource,
		&sub.ChangeKinds,
		&sub.Kind,
		&sub.ExpiresAt,
		&sub.Status,
		&sub.RenewalCount,
		&sub.LastRenewedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// storageErr wraps transient backend failures so callers can classify them
// as retryable via errors.Is(err, domain.ErrStorageUnavailable).
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStorageUnavailable, err)
}
