package graphclient

import "testing"

func TestMeetingThreadIDFromJoinURL(t *testing.T) {
	tests := []struct {
		name    string
		joinURL string
		want    string
	}{
		{
			name:    "encoded thread id",
			joinURL: "https://teams.microsoft.com/l/meetup-join/19%3ameeting_NzQ4YWFiYzA%40thread.v2/0?context=%7b%22Tid%22%3a%22t1%22%7d",
			want:    "19:meeting_NzQ4YWFiYzA@thread.v2",
		},
		{
			name:    "plain thread id",
			joinURL: "https://teams.microsoft.com/l/meetup-join/thread-id/0",
			want:    "thread-id",
		},
		{
			name:    "query stops the match",
			joinURL: "https://teams.microsoft.com/l/meetup-join/thread-id?context=x",
			want:    "thread-id",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MeetingThreadIDFromJoinURL(tc.joinURL)
			if err != nil {
				t.Fatalf("MeetingThreadIDFromJoinURL returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMeetingThreadIDFromJoinURL_NoMatch(t *testing.T) {
	if _, err := MeetingThreadIDFromJoinURL("https://example.com/not-a-join-link"); err == nil {
		t.Fatal("expected error for a URL without a meetup-join segment")
	}
}

func TestResourceLocators(t *testing.T) {
	if got := TranscriptsResource("u1"); got != "users/u1/onlineMeetings/getAllTranscripts" {
		t.Fatalf("unexpected transcripts resource: %q", got)
	}
	if got := CalendarResource("u1"); got != "users/u1/events" {
		t.Fatalf("unexpected calendar resource: %q", got)
	}
}
