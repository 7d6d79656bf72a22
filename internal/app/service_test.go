package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meetscribe/subscription-service/internal/domain"
	"github.com/meetscribe/subscription-service/pkg/graphclient"
)

type repoStub struct {
	subs     map[string]*domain.Subscription
	putErr   error
	puts     []*domain.Subscription
	inactive []string
}

func newRepoStub() *repoStub {
	return &repoStub{subs: make(map[string]*domain.Subscription)}
}

func (r *repoStub) Put(ctx context.Context, sub *domain.Subscription) error {
	if r.putErr != nil {
		return r.putErr
	}
	r.puts = append(r.puts, sub)
	r.subs[sub.ID] = sub
	return nil
}

func (r *repoStub) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	if sub, ok := r.subs[id]; ok {
		return sub, nil
	}
	return nil, domain.ErrNotFound
}

func (r *repoStub) MarkInactive(ctx context.Context, id string, createdAt time.Time) error {
	r.inactive = append(r.inactive, id)
	if sub, ok := r.subs[id]; ok {
		sub.Status = domain.StatusInactive
	}
	return nil
}

func (r *repoStub) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	var out []domain.Subscription
	for _, sub := range r.subs {
		if sub.Status == domain.StatusActive {
			out = append(out, *sub)
		}
	}
	return out, nil
}

type registrarClientStub struct {
	created   *graphclient.CreatedSubscription
	createErr error
	revokeErr error
	revoked   []string

	gotResource    string
	gotChangeKinds []string
	gotLifetime    time.Duration
	gotCallback    string
	gotClientState string
}

func (r *registrarClientStub) Create(ctx context.Context, resource string, changeKinds []string, lifetime time.Duration, callbackURL, clientState string) (*graphclient.CreatedSubscription, error) {
	r.gotResource = resource
	r.gotChangeKinds = changeKinds
	r.gotLifetime = lifetime
	r.gotCallback = callbackURL
	r.gotClientState = clientState
	if r.createErr != nil {
		return nil, r.createErr
	}
	return r.created, nil
}

func (r *registrarClientStub) Revoke(ctx context.Context, id string) error {
	r.revoked = append(r.revoked, id)
	return r.revokeErr
}

func newTestService(repo Repository, registrar RegistrarClient) *Service {
	return NewService(repo, registrar, discardLogger(), "https://svc.example.com/webhooks/graph", "secret-state", 24*time.Hour)
}

func TestRegister_CreatesAndPersists(t *testing.T) {
	granted := time.Now().Add(20 * time.Hour).Truncate(time.Second)
	repo := newRepoStub()
	registrar := &registrarClientStub{created: &graphclient.CreatedSubscription{ID: "sub-1", ExpiresAt: granted}}
	svc := newTestService(repo, registrar)

	sub, err := svc.Register(context.Background(), "users/u1/onlineMeetings/getAllTranscripts", []string{"created"}, domain.KindTranscript)
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if sub.ID != "sub-1" {
		t.Fatalf("subscription must carry the registrar-assigned ID, got %q", sub.ID)
	}
	if !sub.ExpiresAt.Equal(granted) {
		t.Fatalf("subscription must carry the granted expiry, got %v want %v", sub.ExpiresAt, granted)
	}
	if sub.Status != domain.StatusActive {
		t.Fatalf("new subscription must be active, got %q", sub.Status)
	}
	if registrar.gotCallback != "https://svc.example.com/webhooks/graph" || registrar.gotClientState != "secret-state" {
		t.Fatalf("registrar called with wrong callback/state: %q %q", registrar.gotCallback, registrar.gotClientState)
	}
	if len(repo.puts) != 1 {
		t.Fatalf("expected exactly one persist, got %d", len(repo.puts))
	}
}

func TestRegister_DefaultsChangeKindsAndKind(t *testing.T) {
	repo := newRepoStub()
	registrar := &registrarClientStub{created: &graphclient.CreatedSubscription{ID: "sub-1", ExpiresAt: time.Now().Add(time.Hour)}}
	svc := newTestService(repo, registrar)

	sub, err := svc.Register(context.Background(), "users/u1/events", nil, "")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if len(registrar.gotChangeKinds) != 1 || registrar.gotChangeKinds[0] != "created" {
		t.Fatalf("expected default change kind, got %v", registrar.gotChangeKinds)
	}
	if sub.Kind != domain.KindOther {
		t.Fatalf("expected default kind, got %q", sub.Kind)
	}
}

func TestRegister_RequiresResource(t *testing.T) {
	svc := newTestService(newRepoStub(), &registrarClientStub{})
	if _, err := svc.Register(context.Background(), "", nil, ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegister_PersistFailureNamesOrphanedSubscription(t *testing.T) {
	repo := newRepoStub()
	repo.putErr = domain.ErrStorageUnavailable
	registrar := &registrarClientStub{created: &graphclient.CreatedSubscription{ID: "sub-1", ExpiresAt: time.Now().Add(time.Hour)}}
	svc := newTestService(repo, registrar)

	_, err := svc.Register(context.Background(), "users/u1/events", nil, "")
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected storage error to surface, got %v", err)
	}
}

func TestRevoke_RegistrarThenLocal(t *testing.T) {
	repo := newRepoStub()
	repo.subs["sub-1"] = trackedSub("sub-1")
	registrar := &registrarClientStub{}
	svc := newTestService(repo, registrar)

	if err := svc.Revoke(context.Background(), "sub-1"); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if len(registrar.revoked) != 1 || registrar.revoked[0] != "sub-1" {
		t.Fatalf("registrar revoke not called: %v", registrar.revoked)
	}
	if len(repo.inactive) != 1 {
		t.Fatalf("local lease not deactivated: %v", repo.inactive)
	}
}

func TestRevoke_UnknownIDIsNotFound(t *testing.T) {
	svc := newTestService(newRepoStub(), &registrarClientStub{})
	if err := svc.Revoke(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRevoke_RegistrarFailureKeepsLeaseActive(t *testing.T) {
	repo := newRepoStub()
	repo.subs["sub-1"] = trackedSub("sub-1")
	registrar := &registrarClientStub{revokeErr: domain.ErrServiceUnavailable}
	svc := newTestService(repo, registrar)

	if err := svc.Revoke(context.Background(), "sub-1"); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected registrar failure to surface, got %v", err)
	}
	if len(repo.inactive) != 0 {
		t.Fatal("lease must stay active when the registrar revoke fails")
	}
}

func TestDeactivateByID_SkipsRegistrarAndIsIdempotent(t *testing.T) {
	repo := newRepoStub()
	repo.subs["sub-1"] = trackedSub("sub-1")
	registrar := &registrarClientStub{}
	svc := newTestService(repo, registrar)

	if err := svc.DeactivateByID(context.Background(), "sub-1"); err != nil {
		t.Fatalf("DeactivateByID returned error: %v", err)
	}
	if err := svc.DeactivateByID(context.Background(), "sub-1"); err != nil {
		t.Fatalf("second DeactivateByID returned error: %v", err)
	}
	if len(registrar.revoked) != 0 {
		t.Fatal("deactivation must not call the registrar")
	}
	if len(repo.inactive) != 1 {
		t.Fatalf("already-inactive lease must not be written again, got %d writes", len(repo.inactive))
	}
}

func TestIsTracked(t *testing.T) {
	repo := newRepoStub()
	repo.subs["sub-1"] = trackedSub("sub-1")
	svc := newTestService(repo, &registrarClientStub{})

	tracked, err := svc.IsTracked(context.Background(), "sub-1")
	if err != nil || !tracked {
		t.Fatalf("expected tracked=true, got %v %v", tracked, err)
	}
	tracked, err = svc.IsTracked(context.Background(), "nope")
	if err != nil || tracked {
		t.Fatalf("expected tracked=false without error, got %v %v", tracked, err)
	}
}
