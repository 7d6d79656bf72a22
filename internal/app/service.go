/**
 * @description
 * This file contains the core business logic for subscription lifecycle
 * management: registering a new change-notification subscription with the
 * registrar and persisting the result, revoking one, and resolving tracked
 * subscriptions for the API and the notification pipeline.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meetscribe/subscription-service/internal/domain"
	"github.com/meetscribe/subscription-service/pkg/graphclient"
)

// Repository defines the store operations the service needs.
type Repository interface {
	Put(ctx context.Context, sub *domain.Subscription) error
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	MarkInactive(ctx context.Context, id string, createdAt time.Time) error
	ListActive(ctx context.Context) ([]domain.Subscription, error)
}

// RegistrarClient defines the registrar operations the service needs.
type RegistrarClient interface {
	Create(ctx context.Context, resource string, changeKinds []string, lifetime time.Duration, callbackURL, clientState string) (*graphclient.CreatedSubscription, error)
	Revoke(ctx context.Context, id string) error
}

// Service provides the business logic for subscription management.
type Service struct {
	repo        Repository
	registrar   RegistrarClient
	logger      *slog.Logger
	callbackURL string
	clientState string
	lifetime    time.Duration
}

// NewService creates a new subscription service.
func NewService(repo Repository, registrar RegistrarClient, logger *slog.Logger, callbackURL, clientState string, lifetime time.Duration) *Service {
	return &Service{
		repo:        repo,
		registrar:   registrar,
		logger:      logger,
		callbackURL: callbackURL,
		clientState: clientState,
		lifetime:    lifetime,
	}
}

// Register creates a subscription on the registrar and persists the result.
// The registrar assigns the ID and may grant a shorter lifetime than asked.
func (s *Service) Register(ctx context.Context, resource string, changeKinds []string, kind string) (*domain.Subscription, error) {
	if resource == "" {
		return nil, fmt.Errorf("%w: resource is required", domain.ErrValidation)
	}
	if len(changeKinds) == 0 {
		changeKinds = []string{"created"}
	}
	if kind == "" {
		kind = domain.KindOther
	}

	created, err := s.registrar.Create(ctx, resource, changeKinds, s.lifetime, s.callbackURL, s.clientState)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription on registrar: %w", err)
	}

	sub := &domain.Subscription{
		ID:          created.ID,
		CreatedAt:   time.Now().UTC(),
		Resource:    resource,
		ChangeKinds: changeKinds,
		Kind:        kind,
		ExpiresAt:   created.ExpiresAt,
		Status:      domain.StatusActive,
	}
	if err := s.repo.Put(ctx, sub); err != nil {
		// The registrar-side subscription exists either way; surface the
		// storage failure so the caller can retry the persist.
		return nil, fmt.Errorf("subscription %s created on registrar but not persisted: %w", created.ID, err)
	}

	s.logger.Info("registered subscription", "subscription_id", sub.ID, "resource", resource, "expires_at", sub.ExpiresAt)
	return sub, nil
}

// Revoke deletes the subscription on the registrar and soft-deletes it
// locally. Already-gone on the registrar side is treated as success.
func (s *Service) Revoke(ctx context.Context, id string) error {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.registrar.Revoke(ctx, id); err != nil {
		return fmt.Errorf("failed to revoke subscription on registrar: %w", err)
	}
	if err := s.repo.MarkInactive(ctx, sub.ID, sub.CreatedAt); err != nil {
		return err
	}

	s.logger.Info("revoked subscription", "subscription_id", id)
	return nil
}

// DeactivateByID marks a tracked subscription inactive without a registrar
// call. Used when the source itself reports the lease removed.
func (s *Service) DeactivateByID(ctx context.Context, id string) error {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sub.Status == domain.StatusInactive {
		return nil
	}
	return s.repo.MarkInactive(ctx, sub.ID, sub.CreatedAt)
}

// Resolve returns the tracked subscription a notification refers to.
func (s *Service) Resolve(ctx context.Context, id string) (*domain.Subscription, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all active tracked subscriptions, soonest expiry first.
func (s *Service) List(ctx context.Context) ([]domain.Subscription, error) {
	return s.repo.ListActive(ctx)
}

// IsTracked reports whether a subscription ID resolves to a tracked lease.
func (s *Service) IsTracked(ctx context.Context, id string) (bool, error) {
	_, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
