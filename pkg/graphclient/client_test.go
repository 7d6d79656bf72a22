package graphclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meetscribe/subscription-service/internal/domain"
)

type staticTokens struct {
	token string
	err   error
}

func (s *staticTokens) Token(ctx context.Context) (string, error) { return s.token, s.err }
func (s *staticTokens) Invalidate()                               {}

func newTestClient(serverURL string) *Client {
	return NewClient(serverURL, &staticTokens{token: "test-token"}, 5*time.Second)
}

func TestCreate(t *testing.T) {
	var gotAuth, gotPath, gotMethod string
	var gotPayload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"id":                 "sub-1",
			"expirationDateTime": "2026-09-02T12:00:00Z",
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	created, err := client.Create(context.Background(), "users/u1/onlineMeetings/getAllTranscripts", []string{"created", "updated"}, 24*time.Hour, "https://svc.example.com/webhooks/graph", "secret")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID != "sub-1" {
		t.Fatalf("unexpected subscription ID: %q", created.ID)
	}
	want := time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC)
	if !created.ExpiresAt.Equal(want) {
		t.Fatalf("expected granted expiry %v, got %v", want, created.ExpiresAt)
	}
	if gotMethod != http.MethodPost || gotPath != "/subscriptions" {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotPayload["changeType"] != "created,updated" {
		t.Fatalf("change kinds must join with a comma, got %q", gotPayload["changeType"])
	}
	if gotPayload["clientState"] != "secret" || gotPayload["notificationUrl"] != "https://svc.example.com/webhooks/graph" {
		t.Fatalf("unexpected payload: %v", gotPayload)
	}
	if _, err := time.Parse(expiryFormat, gotPayload["expirationDateTime"]); err != nil {
		t.Fatalf("expiry %q does not match the registrar layout: %v", gotPayload["expirationDateTime"], err)
	}
}

func TestRenew_SendsAbsoluteExpiry(t *testing.T) {
	var gotMethod, gotPath string
	var gotPayload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]string{"expirationDateTime": "2026-09-01T18:30:00Z"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	granted, err := client.Renew(context.Background(), "sub-1", 24*time.Hour)
	if err != nil {
		t.Fatalf("Renew returned error: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/subscriptions/sub-1" {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotPath)
	}
	requested, err := time.Parse(expiryFormat, gotPayload["expirationDateTime"])
	if err != nil {
		t.Fatalf("expiry %q does not match the registrar layout: %v", gotPayload["expirationDateTime"], err)
	}
	if d := time.Until(requested); d < 23*time.Hour || d > 25*time.Hour {
		t.Fatalf("requested expiry must be absolute now+24h, got %v away", d)
	}
	want := time.Date(2026, 9, 1, 18, 30, 0, 0, time.UTC)
	if !granted.Equal(want) {
		t.Fatalf("must return the granted expiry %v, got %v", want, granted)
	}
}

func TestRenew_FallsBackToRequestedExpiry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	granted, err := client.Renew(context.Background(), "sub-1", 24*time.Hour)
	if err != nil {
		t.Fatalf("Renew returned error: %v", err)
	}
	if d := time.Until(granted); d < 23*time.Hour || d > 25*time.Hour {
		t.Fatalf("empty response must fall back to the requested expiry, got %v away", d)
	}
}

func TestStatusErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusGone, domain.ErrNotFound},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusInternalServerError, domain.ErrServiceUnavailable},
		{http.StatusBadGateway, domain.ErrServiceUnavailable},
		{http.StatusBadRequest, domain.ErrValidation},
		{http.StatusConflict, domain.ErrValidation},
	}
	for _, tc := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		client := newTestClient(server.URL)
		_, err := client.Renew(context.Background(), "sub-1", time.Hour)
		server.Close()
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}

func TestRevoke_AlreadyGoneIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if err := client.Revoke(context.Background(), "sub-1"); err != nil {
		t.Fatalf("a 404 on revoke must be success, got %v", err)
	}
}

func TestRevoke_OtherFailuresSurface(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if err := client.Revoke(context.Background(), "sub-1"); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestGetContent(t *testing.T) {
	var gotPath, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/vtt")
		w.Write([]byte("WEBVTT\n\nhello"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	body, contentType, err := client.GetContent(context.Background(), "users/u1/onlineMeetings/m1/transcripts/t1", "text/vtt")
	if err != nil {
		t.Fatalf("GetContent returned error: %v", err)
	}
	if gotPath != "/users/u1/onlineMeetings/m1/transcripts/t1/content" {
		t.Fatalf("unexpected content path: %q", gotPath)
	}
	if gotAccept != "text/vtt" {
		t.Fatalf("unexpected Accept header: %q", gotAccept)
	}
	if string(body) != "WEBVTT\n\nhello" || contentType != "text/vtt" {
		t.Fatalf("unexpected content: %q %q", body, contentType)
	}
}

func TestGetContent_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, _, err := client.GetContent(context.Background(), "users/u1/onlineMeetings/m1/transcripts/t1", "text/vtt")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClient_TokenFailureShortCircuits(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.URL, &staticTokens{err: errors.New("identity endpoint down")}, time.Second)
	if _, err := client.Renew(context.Background(), "sub-1", time.Hour); err == nil {
		t.Fatal("expected token failure to surface")
	}
	if called {
		t.Fatal("no request may be sent without a token")
	}
}
