/**
 * @description
 * This file defines the core domain models for the subscription-service.
 * It includes the Subscription struct that maps to the database table and the
 * status/kind enums used across the store, the renewal job, and the API layer.
 */
package domain

import "time"

// Subscription statuses. A subscription stays active until it is explicitly
// revoked (or the external side reports it gone); it never reverts.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Subscription kinds, mirroring the resource families we register against.
const (
	KindTranscript = "transcript"
	KindCalendar   = "calendar"
	KindCallRecord = "callRecord"
	KindOther      = "other"
)

// Subscription represents a tracked change-notification subscription (lease)
// issued by the external registrar. The registrar assigns the ID; together
// with CreatedAt it uniquely identifies a registration.
type Subscription struct {
	ID            string     `json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	Resource      string     `json:"resource"`
	ChangeKinds   []string   `json:"change_kinds"` // e.g. "created", "updated", "deleted"
	Kind          string     `json:"kind"`
	ExpiresAt     time.Time  `json:"expires_at"`
	Status        string     `json:"status"`
	RenewalCount  int        `json:"renewal_count"`
	LastRenewedAt *time.Time `json:"last_renewed_at,omitempty"`
}

// IsActive reports whether the subscription is active and not yet expired.
func (s *Subscription) IsActive(now time.Time) bool {
	return s.Status == StatusActive && s.ExpiresAt.After(now)
}

// SubscriptionUpdate carries the mutable fields written back after a
// successful renewal. Identity fields (ID, CreatedAt) and registration fields
// (Resource, ChangeKinds, Kind) are immutable and deliberately absent.
type SubscriptionUpdate struct {
	ExpiresAt     time.Time
	LastRenewedAt time.Time
}

// SweepSummary is the outcome of one renewal sweep. Every candidate resolves
// to exactly one of Renewed or Failed.
type SweepSummary struct {
	TotalChecked int `json:"total_checked"`
	Renewed      int `json:"renewed"`
	Failed       int `json:"failed"`
}
