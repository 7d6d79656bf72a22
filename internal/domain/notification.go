/**
 * @description
 * This file defines the Go structs that model incoming change-notification
 * payloads from the Graph webhook, plus the normalized ChangeEvent and the
 * structured ResourcePath they decode into.
 *
 * @notes
 * - The envelope either wraps a batch under "value" or is a single bare
 *   notification object; the decoder normalizes both into one shape.
 * - ChangeEvents are ephemeral: they reference the originating subscription
 *   but are never persisted by this service.
 */
package domain

import (
	"encoding/json"
	"strings"
)

// NotificationEnvelope is the top-level webhook payload.
type NotificationEnvelope struct {
	Value []ChangeNotification `json:"value"`
}

// ChangeNotification is one raw notification entry as delivered on the wire.
type ChangeNotification struct {
	SubscriptionID string          `json:"subscriptionId"`
	ChangeType     string          `json:"changeType"`
	ClientState    string          `json:"clientState"`
	Resource       string          `json:"resource"`
	ResourceData   json.RawMessage `json:"resourceData,omitempty"`
	TenantID       string          `json:"tenantId,omitempty"`
	SequenceNumber int64           `json:"sequenceNumber,omitempty"`
	LifecycleEvent string          `json:"lifecycleEvent,omitempty"`
}

// Lifecycle event tags the source uses to flag an unhealthy lease.
const (
	LifecycleMissed              = "missed"
	LifecycleSubscriptionRemoved = "subscriptionRemoved"
	LifecycleReauthRequired      = "reauthorizationRequired"
)

// ResourcePath is the structured decomposition of a resource locator such as
// "users/{uid}/onlineMeetings/{mid}/transcripts/{tid}". SubCollection and
// SubItemID are empty for two-level paths like "users/{uid}/events/{eid}".
type ResourcePath struct {
	HolderID      string `json:"holder_id"`
	Collection    string `json:"collection"`
	ItemID        string `json:"item_id"`
	SubCollection string `json:"sub_collection,omitempty"`
	SubItemID     string `json:"sub_item_id,omitempty"`
}

// String reassembles the original locator from its segments.
func (p ResourcePath) String() string {
	segs := []string{"users", p.HolderID, p.Collection, p.ItemID}
	if p.SubCollection != "" {
		segs = append(segs, p.SubCollection)
		if p.SubItemID != "" {
			segs = append(segs, p.SubItemID)
		}
	}
	return strings.Join(segs, "/")
}

// ChangeEvent is a normalized, decoded unit of an inbound notification,
// addressable back to the tracked subscription that produced it.
type ChangeEvent struct {
	SubscriptionID string       `json:"subscription_id"`
	ChangeKind     string       `json:"change_kind"`
	Resource       string       `json:"resource"`
	Path           ResourcePath `json:"path"`
	SequenceNumber int64        `json:"sequence_number,omitempty"`
	LifecycleEvent string       `json:"lifecycle_event,omitempty"`
	TenantID       string       `json:"tenant_id,omitempty"`
}
