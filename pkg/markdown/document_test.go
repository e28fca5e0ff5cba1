package markdown

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestGenerateFileNameIsDeterministic(t *testing.T) {
	date := time.Date(2026, 1, 28, 10, 30, 0, 0, time.UTC)
	got := GenerateFileName(date, "Jane/Doe", "Re: Project Update?!")
	want := "2026-01-28-JaneDoe-ReProjectUpdate.md"
	if got != want {
		t.Errorf("GenerateFileName = %q, want %q", got, want)
	}
}

func TestGenerateFileNameTruncatesComponents(t *testing.T) {
	date := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	longName := strings.Repeat("a", 80)
	longSubject := strings.Repeat("b", 80)
	got := GenerateFileName(date, longName, longSubject)
	want := "2026-03-07-" + strings.Repeat("a", 50) + "-" + strings.Repeat("b", 50) + ".md"
	if got != want {
		t.Errorf("GenerateFileName = %q, want %q", got, want)
	}
}

func TestGenerateFileNameHandlesEmptyComponents(t *testing.T) {
	date := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	got := GenerateFileName(date, "???", "!!!")
	want := "2026-03-07-unknown-unknown.md"
	if got != want {
		t.Errorf("GenerateFileName = %q, want %q", got, want)
	}
}

func TestConvertToMarkdownBytesWrapsDocument(t *testing.T) {
	// no pandoc in unit tests; the embedded converter handles this tier
	c := NewConverter(zerolog.Nop(), "/nonexistent/pandoc", time.Second)
	received := time.Date(2026, 2, 14, 8, 5, 9, 0, time.UTC)

	doc := string(c.ConvertToMarkdownBytes(context.Background(), "Weekly Digest", "Jane Doe", "jane@example.com", received, "<p>Hello <b>there</b></p>"))

	if !strings.HasPrefix(doc, "# Weekly Digest\n") {
		t.Errorf("document missing subject heading:\n%s", doc)
	}
	if !strings.Contains(doc, "**From:** Jane Doe <jane@example.com>") {
		t.Errorf("document missing attribution line:\n%s", doc)
	}
	if !strings.Contains(doc, "**Received:** 2026-02-14 08:05:09") {
		t.Errorf("document missing received line:\n%s", doc)
	}
	if !strings.Contains(doc, "---") {
		t.Errorf("document missing rule between header and body:\n%s", doc)
	}
	if !strings.Contains(doc, "Hello **there**") {
		t.Errorf("body was not converted to markdown:\n%s", doc)
	}
}

func TestConvertFallsBackToTextExtraction(t *testing.T) {
	c := NewConverter(zerolog.Nop(), "/nonexistent/pandoc", time.Second)
	got := c.Convert(context.Background(), "just plain words, no tags")
	if !strings.Contains(got, "just plain words") {
		t.Errorf("Convert lost plain content: %q", got)
	}
}
