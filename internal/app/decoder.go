/**
 * @description
 * Decoding of inbound webhook payloads into normalized ChangeEvents.
 * Decoding is pure: no I/O, no side effects, so re-decoding the same envelope
 * always yields the same events. A malformed entry fails individually and
 * never aborts the rest of the batch.
 */
package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meetscribe/subscription-service/internal/domain"
)

// Collection markers the resource-path parser recognizes. The registrar
// exposes hierarchical paths: holder scope, a named child collection with an
// identifier, optionally one grandchild collection/identifier deeper.
var knownCollections = map[string]bool{
	"onlineMeetings": true,
	"adhocCalls":     true,
	"events":         true,
	"calendars":      true,
}

var knownSubCollections = map[string]bool{
	"transcripts": true,
	"recordings":  true,
}

// DecodeEnvelope parses a raw webhook body. A bare single notification object
// (no "value" wrapper) is normalized into a one-element batch.
func DecodeEnvelope(body []byte) (domain.NotificationEnvelope, error) {
	var env domain.NotificationEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("%w: malformed notification envelope: %v", domain.ErrValidation, err)
	}
	if env.Value != nil {
		return env, nil
	}

	var single domain.ChangeNotification
	if err := json.Unmarshal(body, &single); err != nil || single.SubscriptionID == "" {
		return env, fmt.Errorf("%w: envelope has neither a value batch nor a subscriptionId", domain.ErrValidation)
	}
	env.Value = []domain.ChangeNotification{single}
	return env, nil
}

// DecodeEvents converts raw notifications into ChangeEvents. Entries whose
// resource locator matches no known shape are returned as errors alongside
// the events decoded from the rest of the batch.
func DecodeEvents(env domain.NotificationEnvelope) ([]domain.ChangeEvent, []error) {
	var events []domain.ChangeEvent
	var failures []error

	for i, n := range env.Value {
		path, err := ParseResourcePath(n.Resource)
		if err != nil {
			failures = append(failures, fmt.Errorf("entry %d (subscription %s): %w", i, n.SubscriptionID, err))
			continue
		}
		events = append(events, domain.ChangeEvent{
			SubscriptionID: n.SubscriptionID,
			ChangeKind:     n.ChangeType,
			Resource:       n.Resource,
			Path:           path,
			SequenceNumber: n.SequenceNumber,
			LifecycleEvent: n.LifecycleEvent,
			TenantID:       n.TenantID,
		})
	}
	return events, failures
}

// ParseResourcePath decomposes a resource locator such as
// "users/{uid}/onlineMeetings/{mid}/transcripts/{tid}" into typed segments.
func ParseResourcePath(resource string) (domain.ResourcePath, error) {
	segs := strings.Split(strings.Trim(resource, "/"), "/")
	if len(segs) < 4 || segs[0] != "users" {
		return domain.ResourcePath{}, fmt.Errorf("%w: %q", domain.ErrUnrecognizedResource, resource)
	}

	path := domain.ResourcePath{
		HolderID:   segs[1],
		Collection: segs[2],
		ItemID:     segs[3],
	}
	if path.HolderID == "" || path.ItemID == "" || !knownCollections[path.Collection] {
		return domain.ResourcePath{}, fmt.Errorf("%w: %q", domain.ErrUnrecognizedResource, resource)
	}

	switch len(segs) {
	case 4:
		return path, nil
	case 5, 6:
		if !knownSubCollections[segs[4]] {
			return domain.ResourcePath{}, fmt.Errorf("%w: %q", domain.ErrUnrecognizedResource, resource)
		}
		path.SubCollection = segs[4]
		if len(segs) == 6 {
			if segs[5] == "" {
				return domain.ResourcePath{}, fmt.Errorf("%w: %q", domain.ErrUnrecognizedResource, resource)
			}
			path.SubItemID = segs[5]
		}
		return path, nil
	default:
		return domain.ResourcePath{}, fmt.Errorf("%w: %q", domain.ErrUnrecognizedResource, resource)
	}
}
