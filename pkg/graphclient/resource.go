/**
 * @description
 * Helpers for constructing the resource locators the registrar accepts.
 * The join-URL extraction is a registrar quirk: Teams join links embed the
 * meeting thread ID URL-encoded after "meetup-join/", and a few subscription
 * resources are addressed by that thread ID rather than by a stable entity ID.
 * It stays inside this package as a detail of resource-path construction.
 */
package graphclient

import (
	"fmt"
	"net/url"
	"regexp"
)

var meetupJoinPattern = regexp.MustCompile(`meetup-join/([^/?]+)`)

// MeetingThreadIDFromJoinURL extracts and decodes the meeting thread ID from
// a Teams join URL. Returns an error when the URL has no meetup-join segment.
func MeetingThreadIDFromJoinURL(joinURL string) (string, error) {
	m := meetupJoinPattern.FindStringSubmatch(joinURL)
	if m == nil {
		return "", fmt.Errorf("no meeting thread in join URL")
	}
	decoded, err := url.PathUnescape(m[1])
	if err != nil {
		return "", fmt.Errorf("failed to decode meeting thread id: %w", err)
	}
	return decoded, nil
}

// TranscriptsResource returns the locator that subscribes to all meeting
// transcripts of one user.
func TranscriptsResource(userID string) string {
	return fmt.Sprintf("users/%s/onlineMeetings/getAllTranscripts", userID)
}

// CalendarResource returns the locator that subscribes to a user's calendar
// events.
func CalendarResource(userID string) string {
	return fmt.Sprintf("users/%s/events", userID)
}
