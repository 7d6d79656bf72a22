/**
 * @description
 * This file contains the HTTP handlers for the subscription-service: the
 * webhook endpoint that receives change notifications from the registrar
 * (including its validation handshake), the internal renewal trigger, and the
 * internal subscription management endpoints.
 *
 * Key features:
 * - Security: every notification's clientState is checked against the shared
 *   secret, in constant time, before anything is decoded or processed.
 * - Acknowledge-then-process: deliveries are acked immediately so the source's
 *   retry logic does not duplicate them; the pipeline runs afterwards.
 * - Duplicate suppression: recently seen deliveries are dropped in memory.
 */
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meetscribe/subscription-service/internal/app"
	"github.com/meetscribe/subscription-service/internal/domain"
)

// SweepRunner triggers one renewal sweep.
type SweepRunner interface {
	RunSweep(ctx context.Context) (domain.SweepSummary, error)
}

// NotificationProcessor handles a validated envelope after acknowledgement.
type NotificationProcessor interface {
	Process(ctx context.Context, env domain.NotificationEnvelope)
}

// SubscriptionService is the lifecycle surface the admin endpoints use.
type SubscriptionService interface {
	Register(ctx context.Context, resource string, changeKinds []string, kind string) (*domain.Subscription, error)
	Revoke(ctx context.Context, id string) error
	List(ctx context.Context) ([]domain.Subscription, error)
}

// processTimeout caps the background pipeline run for one delivery,
// covering content polling with margin.
const processTimeout = 5 * time.Minute

// Handler holds the application components the handlers interact with.
type Handler struct {
	service     SubscriptionService
	renewer     SweepRunner
	processor   NotificationProcessor
	clientState string
	logger      *slog.Logger

	mu       sync.Mutex
	recent   map[string]time.Time
	nowFn    func() time.Time
	procWait sync.WaitGroup // tests synchronize on background processing
}

// NewHandler creates a new Handler.
func NewHandler(service SubscriptionService, renewer SweepRunner, processor NotificationProcessor, clientState string, logger *slog.Logger) *Handler {
	return &Handler{
		service:     service,
		renewer:     renewer,
		processor:   processor,
		clientState: clientState,
		logger:      logger,
		recent:      make(map[string]time.Time),
		nowFn:       time.Now,
	}
}

// handleWebhook processes registrar deliveries. Both the validation handshake
// (a validationToken query parameter to echo back) and notification envelopes
// arrive on this endpoint.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		// The registrar confirms the receiver is live by expecting the token
		// echoed back verbatim before it activates a new subscription.
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(token))
		return
	}

	if r.Method == http.MethodGet {
		http.Error(w, "Missing validation token", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	env, err := app.DecodeEnvelope(body)
	if err != nil {
		h.logger.Warn("rejected malformed notification envelope", "error", err)
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	// Authenticate before any event decoding happens.
	for _, n := range env.Value {
		if !h.validClientState(n.ClientState) {
			h.logger.Warn("rejected notification with invalid clientState", "subscription_id", n.SubscriptionID)
			http.Error(w, "Invalid clientState", http.StatusUnauthorized)
			return
		}
	}

	fresh := h.dropDuplicates(env)
	// Acknowledge promptly either way; a slow response here triggers the
	// source's retry/backoff and duplicates the delivery.
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte("Accepted"))

	if len(fresh.Value) == 0 {
		return
	}

	h.procWait.Add(1)
	go func() {
		defer h.procWait.Done()
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		h.processor.Process(ctx, fresh)
	}()
}

// handleRunRenewals triggers one renewal sweep and returns its summary.
func (h *Handler) handleRunRenewals(w http.ResponseWriter, r *http.Request) {
	summary, err := h.renewer.RunSweep(r.Context())
	if err != nil {
		h.logger.Error("renewal sweep failed", "error", err)
		respondWithJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   err.Error(),
			"summary": summary,
		})
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

// handleRegister creates a subscription on the registrar and tracks it.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resource    string   `json:"resource"`
		ChangeKinds []string `json:"change_kinds"`
		Kind        string   `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sub, err := h.service.Register(r.Context(), req.Resource, req.ChangeKinds, req.Kind)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, sub)
}

// handleListSubscriptions lists active tracked subscriptions.
func (h *Handler) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.List(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"subscriptions": subs})
}

// handleRevoke revokes a subscription on the registrar and deactivates it.
func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Subscription ID is required", http.StatusBadRequest)
		return
	}

	if err := h.service.Revoke(r.Context(), id); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "revoked", "id": id})
}

func (h *Handler) validClientState(provided string) bool {
	if h.clientState == "" {
		h.logger.Warn("WEBHOOK_CLIENT_STATE is not set, skipping clientState validation")
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.clientState)) == 1
}

// dropDuplicates filters out notification entries seen within the last five
// minutes. The source redelivers on slow or failed acknowledgements.
func (h *Handler) dropDuplicates(env domain.NotificationEnvelope) domain.NotificationEnvelope {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.nowFn()
	cutoff := now.Add(-1 * time.Hour)
	for key, seen := range h.recent {
		if seen.Before(cutoff) {
			delete(h.recent, key)
		}
	}

	var fresh []domain.ChangeNotification
	for _, n := range env.Value {
		key := fmt.Sprintf("%s:%s:%d", n.SubscriptionID, n.Resource, n.SequenceNumber)
		if seen, ok := h.recent[key]; ok && now.Sub(seen) < 5*time.Minute {
			h.logger.Info("duplicate notification ignored", "subscription_id", n.SubscriptionID, "resource", n.Resource)
			continue
		}
		h.recent[key] = now
		fresh = append(fresh, n)
	}
	return domain.NotificationEnvelope{Value: fresh}
}

// respondWithError maps domain errors onto HTTP statuses.
func respondWithError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrRateLimited), errors.Is(err, domain.ErrServiceUnavailable), errors.Is(err, domain.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	respondWithJSON(w, status, map[string]string{"error": err.Error()})
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
