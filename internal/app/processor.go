/**
 * @description
 * The notification pipeline: takes a validated envelope, decodes it into
 * ChangeEvents, resolves each event back to its tracked subscription, reacts
 * to lifecycle signals, publishes the events to the downstream sink, and
 * fetches announced transcript content.
 *
 * Runs after the webhook has already been acknowledged, so failures here are
 * logged and published where possible but never affect the HTTP response.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/meetscribe/subscription-service/internal/domain"
)

// EventSink is the downstream destination for decoded events and fetched
// content. Delivery is at-least-once; duplicates are the consumer's problem.
type EventSink interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
}

// LeaseResolver resolves and corrects tracked subscriptions during
// notification processing.
type LeaseResolver interface {
	Resolve(ctx context.Context, id string) (*domain.Subscription, error)
	DeactivateByID(ctx context.Context, id string) error
}

// Routing keys published to the sink's topic exchange.
const (
	RouteNotification     = "notifications.change"
	RouteLifecycle        = "notifications.lifecycle"
	RouteTranscriptReady  = "transcripts.fetched"
	RouteTranscriptFailed = "transcripts.failed"
)

// ProcessorConfig bounds content polling.
type ProcessorConfig struct {
	FetchAttempts  int
	FetchBaseDelay time.Duration
}

// Processor drives decoded notifications through resolution, publication and
// content fetching.
type Processor struct {
	leases  LeaseResolver
	fetcher *Fetcher
	sink    EventSink
	logger  *slog.Logger
	cfg     ProcessorConfig
}

// NewProcessor creates a notification processor.
func NewProcessor(leases LeaseResolver, fetcher *Fetcher, sink EventSink, logger *slog.Logger, cfg ProcessorConfig) *Processor {
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = 5
	}
	if cfg.FetchBaseDelay <= 0 {
		cfg.FetchBaseDelay = 5 * time.Second
	}
	return &Processor{leases: leases, fetcher: fetcher, sink: sink, logger: logger, cfg: cfg}
}

// TranscriptPayload is the message published once announced content has been
// fetched. Bytes is base64 in the JSON encoding.
type TranscriptPayload struct {
	Event       domain.ChangeEvent `json:"event"`
	ContentType string             `json:"content_type"`
	Content     []byte             `json:"content"`
}

// Process decodes and handles one validated envelope.
func (p *Processor) Process(ctx context.Context, env domain.NotificationEnvelope) {
	events, failures := DecodeEvents(env)
	for _, err := range failures {
		p.logger.Warn("skipping undecodable notification entry", "error", err)
	}

	for _, event := range events {
		p.processEvent(ctx, event)
	}
}

func (p *Processor) processEvent(ctx context.Context, event domain.ChangeEvent) {
	logger := p.logger.With("subscription_id", event.SubscriptionID, "resource", event.Resource)

	sub, err := p.leases.Resolve(ctx, event.SubscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("notification for untracked subscription")
		} else {
			logger.Error("failed to resolve subscription", "error", err)
		}
		// Still published: downstream consumers may care about events whose
		// registration this instance never saw.
	}

	if event.LifecycleEvent != "" {
		p.handleLifecycle(ctx, logger, event)
		return
	}

	if err := p.sink.Publish(ctx, RouteNotification, event); err != nil {
		logger.Error("failed to publish change event", "error", err)
		return
	}

	if sub != nil && event.Path.SubCollection == "transcripts" && event.Path.SubItemID != "" {
		p.fetchAndPublish(ctx, logger, event)
	}
}

// handleLifecycle reacts to health signals from the source itself:
// subscriptionRemoved is terminal for the local lease, everything else is
// surfaced downstream without touching state.
func (p *Processor) handleLifecycle(ctx context.Context, logger *slog.Logger, event domain.ChangeEvent) {
	logger.Info("lifecycle notification", "lifecycle_event", event.LifecycleEvent)

	if event.LifecycleEvent == domain.LifecycleSubscriptionRemoved {
		if err := p.leases.DeactivateByID(ctx, event.SubscriptionID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			logger.Error("failed to deactivate removed subscription", "error", err)
		}
	}

	if err := p.sink.Publish(ctx, RouteLifecycle, event); err != nil {
		logger.Error("failed to publish lifecycle event", "error", err)
	}
}

func (p *Processor) fetchAndPublish(ctx context.Context, logger *slog.Logger, event domain.ChangeEvent) {
	content, err := p.fetcher.FetchWithRetry(ctx, event, p.cfg.FetchAttempts, p.cfg.FetchBaseDelay)
	if err != nil {
		logger.Error("failed to fetch announced content", "error", err)
		if pubErr := p.sink.Publish(ctx, RouteTranscriptFailed, event); pubErr != nil {
			logger.Error("failed to publish fetch failure", "error", pubErr)
		}
		return
	}

	payload := TranscriptPayload{Event: event, ContentType: content.ContentType, Content: content.Bytes}
	if err := p.sink.Publish(ctx, RouteTranscriptReady, payload); err != nil {
		logger.Error("failed to publish fetched content", "error", err)
		return
	}
	logger.Info("published fetched transcript", "bytes", len(content.Bytes), "content_type", content.ContentType)
}
