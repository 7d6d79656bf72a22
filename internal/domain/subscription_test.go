package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsActive(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{
			name: "active and unexpired",
			sub:  Subscription{Status: StatusActive, ExpiresAt: now.Add(time.Hour)},
			want: true,
		},
		{
			name: "active but expired",
			sub:  Subscription{Status: StatusActive, ExpiresAt: now.Add(-time.Minute)},
			want: false,
		},
		{
			name: "inactive",
			sub:  Subscription{Status: StatusInactive, ExpiresAt: now.Add(time.Hour)},
			want: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.sub.IsActive(now); got != tc.want {
				t.Fatalf("IsActive = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResourcePathString(t *testing.T) {
	tests := []struct {
		path ResourcePath
		want string
	}{
		{
			path: ResourcePath{HolderID: "u1", Collection: "onlineMeetings", ItemID: "m1", SubCollection: "transcripts", SubItemID: "t1"},
			want: "users/u1/onlineMeetings/m1/transcripts/t1",
		},
		{
			path: ResourcePath{HolderID: "u1", Collection: "onlineMeetings", ItemID: "m1", SubCollection: "transcripts"},
			want: "users/u1/onlineMeetings/m1/transcripts",
		},
		{
			path: ResourcePath{HolderID: "u1", Collection: "events", ItemID: "e1"},
			want: "users/u1/events/e1",
		},
	}
	for _, tc := range tests {
		if got := tc.path.String(); got != tc.want {
			t.Fatalf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("renew sub-1: %w", ErrRateLimited)
	if !IsRetryable(wrapped) {
		t.Fatal("wrapped transient errors must stay retryable")
	}
	if !errors.Is(wrapped, ErrRateLimited) {
		t.Fatal("wrapping must preserve the sentinel")
	}
	if IsRetryable(fmt.Errorf("lookup: %w", ErrNotFound)) {
		t.Fatal("not-found must not be retryable")
	}
}
