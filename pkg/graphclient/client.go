/**
 * @description
 * This package provides a client for the Graph subscription and content
 * endpoints. It encapsulates authenticated HTTP calls for creating, renewing
 * and revoking change-notification subscriptions, and for reading the content
 * a notification announces (e.g. a meeting transcript).
 *
 * Key features:
 * - Bearer-token auth via a pluggable TokenProvider.
 * - Maps registrar HTTP status codes onto the domain error taxonomy so
 *   callers can classify failures with errors.Is.
 * - Renewals always PATCH an absolute expirationDateTime, which is what makes
 *   repeated renewals of the same lease converge instead of compound.
 */
package graphclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meetscribe/subscription-service/internal/domain"
)

// expiryFormat is the timestamp layout the registrar expects on subscription
// create/renew payloads.
const expiryFormat = "2006-01-02T15:04:05.0000000Z"

// Client is a client for the Graph API.
type Client struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
}

// NewClient creates a new Graph API client.
func NewClient(baseURL string, tokens TokenProvider, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreatedSubscription is the registrar's answer to a create call.
type CreatedSubscription struct {
	ID        string
	ExpiresAt time.Time
}

// Create registers a new change-notification subscription. The registrar
// caps the lifetime per resource type, so the returned expiry may be earlier
// than now+lifetime.
func (c *Client) Create(ctx context.Context, resource string, changeKinds []string, lifetime time.Duration, callbackURL, clientState string) (*CreatedSubscription, error) {
	payload := map[string]string{
		"changeType":         strings.Join(changeKinds, ","),
		"notificationUrl":    callbackURL,
		"resource":           resource,
		"expirationDateTime": time.Now().UTC().Add(lifetime).Format(expiryFormat),
		"clientState":        clientState,
	}

	var resp struct {
		ID                 string `json:"id"`
		ExpirationDateTime string `json:"expirationDateTime"`
	}
	url := fmt.Sprintf("%s/subscriptions", c.baseURL)
	if err := c.do(ctx, http.MethodPost, url, payload, &resp); err != nil {
		return nil, err
	}

	expiresAt, err := time.Parse(time.RFC3339, resp.ExpirationDateTime)
	if err != nil {
		return nil, fmt.Errorf("registrar returned unparseable expiry %q: %w", resp.ExpirationDateTime, err)
	}
	return &CreatedSubscription{ID: resp.ID, ExpiresAt: expiresAt}, nil
}

// Renew extends a subscription by PATCHing an absolute new expiry of
// now+extendBy. Returns the expiry the registrar actually granted.
func (c *Client) Renew(ctx context.Context, id string, extendBy time.Duration) (time.Time, error) {
	newExpiry := time.Now().UTC().Add(extendBy)
	payload := map[string]string{
		"expirationDateTime": newExpiry.Format(expiryFormat),
	}

	var resp struct {
		ExpirationDateTime string `json:"expirationDateTime"`
	}
	url := fmt.Sprintf("%s/subscriptions/%s", c.baseURL, id)
	if err := c.do(ctx, http.MethodPatch, url, payload, &resp); err != nil {
		return time.Time{}, err
	}

	if resp.ExpirationDateTime != "" {
		if granted, err := time.Parse(time.RFC3339, resp.ExpirationDateTime); err == nil {
			return granted, nil
		}
	}
	return newExpiry, nil
}

// Revoke deletes a subscription on the registrar. A 404 means it is already
// gone and is treated as success.
func (c *Client) Revoke(ctx context.Context, id string) error {
	url := fmt.Sprintf("%s/subscriptions/%s", c.baseURL, id)
	err := c.do(ctx, http.MethodDelete, url, nil, nil)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// GetContent reads the raw payload a notification announced, e.g.
// users/{u}/onlineMeetings/{m}/transcripts/{t}/content. Returns the body and
// the response content type. A 404 here usually means the registrar has not
// finished producing the content; the fetcher maps that accordingly.
func (c *Client) GetContent(ctx context.Context, resourcePath, accept string) ([]byte, string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to acquire token: %w", err)
	}

	url := fmt.Sprintf("%s/%s/content", c.baseURL, strings.Trim(resourcePath, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create content request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("content request failed: %w", domain.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if err := statusError(resp.StatusCode, body); err != nil {
		return nil, "", fmt.Errorf("read content %s: %w", resourcePath, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// do is a helper to make authenticated JSON requests to the Graph API.
func (c *Client) do(ctx context.Context, method, url string, body, target interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire token: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, url, domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if err := statusError(resp.StatusCode, respBody); err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}

	if target != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("failed to unmarshal response body: %w", err)
		}
	}
	return nil
}

// statusError maps a registrar status code onto the domain error taxonomy.
func statusError(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", domain.ErrUnauthorized, code, truncate(body))
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("%w: status %d", domain.ErrNotFound, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", domain.ErrRateLimited, code)
	case code >= 500:
		return fmt.Errorf("%w: status %d: %s", domain.ErrServiceUnavailable, code, truncate(body))
	default:
		return fmt.Errorf("%w: status %d: %s", domain.ErrValidation, code, truncate(body))
	}
}

func truncate(body []byte) string {
	const max = 500
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
