/**
 * @description
 * Token acquisition for the Graph API using the OAuth2 client-credentials
 * flow. Tokens are cached until shortly before expiry; Invalidate forces the
 * next call to fetch a fresh token (used after a 401).
 */
package graphclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenProvider supplies bearer tokens for outbound Graph calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// expirySkew is subtracted from the reported lifetime so a token is never
// used within a minute of expiring mid-request.
const expirySkew = time.Minute

// ClientCredentials acquires app-only tokens from the identity endpoint.
type ClientCredentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	LoginBaseURL string // e.g. https://login.microsoftonline.com
	Scope        string // e.g. https://graph.microsoft.com/.default

	httpClient *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClientCredentials creates a cached client-credentials token provider.
func NewClientCredentials(tenantID, clientID, clientSecret, loginBaseURL, scope string) *ClientCredentials {
	return &ClientCredentials{
		TenantID:     tenantID,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		LoginBaseURL: strings.TrimSuffix(loginBaseURL, "/"),
		Scope:        scope,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Token returns a cached token, fetching a new one when the cache is empty
// or within the expiry skew.
func (p *ClientCredentials) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.expiresAt.Add(-expirySkew)) {
		return p.token, nil
	}

	token, expiresAt, err := p.fetch(ctx)
	if err != nil {
		return "", err
	}
	p.token = token
	p.expiresAt = expiresAt
	return token, nil
}

// Invalidate drops the cached token so the next Token call refreshes.
func (p *ClientCredentials) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expiresAt = time.Time{}
	p.mu.Unlock()
}

func (p *ClientCredentials) fetch(ctx context.Context) (string, time.Time, error) {
	form := url.Values{
		"client_id":     {p.ClientID},
		"client_secret": {p.ClientSecret},
		"scope":         {p.Scope},
		"grant_type":    {"client_credentials"},
	}

	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", p.LoginBaseURL, p.TenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("token endpoint returned no access token")
	}

	expiresAt := time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	if payload.ExpiresIn == 0 {
		expiresAt = tokenExpiry(payload.AccessToken)
	}
	return payload.AccessToken, expiresAt, nil
}

// tokenExpiry reads the exp claim of the access token without verifying the
// signature. Only used as a fallback when the token response omits
// expires_in; verification belongs to the resource server, not to us.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Now().Add(5 * time.Minute)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Now().Add(5 * time.Minute)
	}
	return exp.Time
}
