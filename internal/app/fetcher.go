/**
 * @description
 * Content retrieval for decoded ChangeEvents: resolves the concrete content
 * locator from the event's resource path and reads the payload (transcript
 * text, recording metadata) through the registrar client. The registrar
 * answers 404 between accepting a notification and finishing content
 * production, so "not yet available" is surfaced distinctly from a permanent
 * absence and callers poll with backoff up to their own attempt ceiling.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meetscribe/subscription-service/internal/domain"
)

// ContentReader is the registrar operation the fetcher needs.
type ContentReader interface {
	GetContent(ctx context.Context, resourcePath, accept string) ([]byte, string, error)
}

// Content is a fetched payload.
type Content struct {
	Bytes       []byte `json:"bytes"`
	ContentType string `json:"content_type"`
}

// Fetcher retrieves announced content for change events.
type Fetcher struct {
	client ContentReader
	logger *slog.Logger
}

// NewFetcher creates a content fetcher.
func NewFetcher(client ContentReader, logger *slog.Logger) *Fetcher {
	return &Fetcher{client: client, logger: logger}
}

// Fetch performs a single content read for the event. Returns
// domain.ErrContentNotReady when the registrar has not produced the content
// yet; callers decide whether and how long to poll.
func (f *Fetcher) Fetch(ctx context.Context, event domain.ChangeEvent) (*Content, error) {
	if event.Path.SubItemID == "" {
		return nil, fmt.Errorf("%w: event %q does not address a content item", domain.ErrValidation, event.Resource)
	}

	body, contentType, err := f.client.GetContent(ctx, event.Path.String(), acceptFor(event.Path))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrContentNotReady, event.Resource)
		}
		return nil, err
	}
	return &Content{Bytes: body, ContentType: contentType}, nil
}

// FetchWithRetry polls for content up to maxAttempts times, backing off
// between attempts. Exhausting the ceiling converts not-yet-available into a
// permanent not-found for this event.
func (f *Fetcher) FetchWithRetry(ctx context.Context, event domain.ChangeEvent, maxAttempts int, baseDelay time.Duration) (*Content, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 5 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		content, err := f.Fetch(ctx, event)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrContentNotReady) && !domain.IsRetryable(err) {
			return nil, err
		}

		if attempt < maxAttempts-1 {
			f.logger.Info("content not ready, will retry",
				"resource", event.Resource,
				"attempt", attempt+1,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(baseDelay << uint(attempt)):
			}
		}
	}

	if errors.Is(lastErr, domain.ErrContentNotReady) {
		return nil, fmt.Errorf("%w: content for %s never became available after %d attempts", domain.ErrNotFound, event.Resource, maxAttempts)
	}
	return nil, lastErr
}

// acceptFor picks the media type requested for a content read. Transcripts
// are delivered as WebVTT.
func acceptFor(path domain.ResourcePath) string {
	if path.SubCollection == "transcripts" {
		return "text/vtt"
	}
	return ""
}
