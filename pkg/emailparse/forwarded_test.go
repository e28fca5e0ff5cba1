package emailparse

import (
	"testing"
	"time"
)

func TestIsForwardedEmail(t *testing.T) {
	cases := []struct {
		subject string
		want    bool
	}{
		{"FW: budget", true},
		{"Fwd: budget", true},
		{"FWD: budget", true},
		{"  fwd: budget", true},
		{"RE: budget", false},
		{"budget FW: something", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsForwardedEmail(tc.subject); got != tc.want {
			t.Errorf("IsForwardedEmail(%q) = %v, want %v", tc.subject, got, tc.want)
		}
	}
}

func TestStripForwardingPrefixRepeats(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"FW: Fwd: RE: budget", "budget"},
		{"Fwd : spaced colon", "spaced colon"},
		{"Re: Re: Re: hello", "hello"},
		{"no prefix here", "no prefix here"},
	}
	for _, tc := range cases {
		if got := StripForwardingPrefix(tc.in); got != tc.want {
			t.Errorf("StripForwardingPrefix(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractForwardedMetadataFromHeaderDiv(t *testing.T) {
	html := `<div><p>From: Alice Smith &lt;alice@example.com&gt;<br/>Date: Mon, 5 Jan 2026 09:15:00 +0000<br/>To: bob@example.com<br/>Subject: numbers</p></div><p>body text</p>`

	meta := ExtractForwardedMetadata(html)
	if meta == nil {
		t.Fatal("ExtractForwardedMetadata returned nil")
	}
	if meta.SenderName != "Alice Smith" {
		t.Errorf("SenderName = %q, want %q", meta.SenderName, "Alice Smith")
	}
	if meta.SenderEmail != "alice@example.com" {
		t.Errorf("SenderEmail = %q", meta.SenderEmail)
	}
	if !meta.HasDate {
		t.Fatal("date was not extracted")
	}
	want := time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)
	if !meta.SentDate.Equal(want) {
		t.Errorf("SentDate = %v, want %v", meta.SentDate, want)
	}
}

func TestExtractForwardedMetadataBareEmail(t *testing.T) {
	html := `<p>From: carol@example.org<br/>Sent: Monday, January 5, 2026 9:15 AM<br/>To: me<br/>Subject: x</p>`

	meta := ExtractForwardedMetadata(html)
	if meta == nil {
		t.Fatal("ExtractForwardedMetadata returned nil")
	}
	if meta.SenderEmail != "carol@example.org" {
		t.Errorf("SenderEmail = %q", meta.SenderEmail)
	}
	if meta.SenderName != "carol" {
		t.Errorf("SenderName should default to the local part, got %q", meta.SenderName)
	}
}

func TestExtractForwardedMetadataNilWhenNothingFound(t *testing.T) {
	if meta := ExtractForwardedMetadata("<p>just a normal paragraph</p>"); meta != nil {
		t.Errorf("expected nil, got %+v", meta)
	}
}
