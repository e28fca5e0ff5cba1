package htmlclean

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func applyPatterns(t *testing.T, markup string) (string, bool) {
	t.Helper()
	return applyHeaderPatterns(markup, zerolog.Nop())
}

func TestApplyHeaderPatternsParagraphWrapped(t *testing.T) {
	in := `<p><b>From:</b> Alice &lt;alice@example.com&gt;<br/><b>Sent:</b> Monday<br/><b>To:</b> Bob<br/><b>Subject:</b> numbers</p><p>Body stays.</p>`
	out, matched := applyPatterns(t, in)
	if !matched {
		t.Fatal("paragraph-wrapped header was not matched")
	}
	if strings.Contains(out, "Subject") {
		t.Errorf("header survived: %q", out)
	}
	if !strings.Contains(out, "Body stays.") {
		t.Errorf("body paragraph removed: %q", out)
	}
}

func TestApplyHeaderPatternsNestedDivWrapped(t *testing.T) {
	in := `<div><div><b>From:</b> a@b.c</div><div><b>Sent:</b> Mon</div><div><b>To:</b> d@e.f</div><div><b>Subject:</b> hello</div></div><div>keep me</div>`
	out, matched := applyPatterns(t, in)
	if !matched {
		t.Fatal("div-wrapped header was not matched")
	}
	if strings.Contains(out, "Subject") {
		t.Errorf("header survived: %q", out)
	}
	if !strings.Contains(out, "keep me") {
		t.Errorf("sibling content removed: %q", out)
	}
}

func TestApplyHeaderPatternsTableWrapped(t *testing.T) {
	in := `<table><tr><td>From: a@b.c</td></tr><tr><td>Sent: Monday</td></tr><tr><td>To: d@e.f</td></tr><tr><td>Subject: hello</td></tr></table><p>after the table</p>`
	out, matched := applyPatterns(t, in)
	if !matched {
		t.Fatal("table-wrapped header was not matched")
	}
	if strings.Contains(out, "<table") {
		t.Errorf("header table survived: %q", out)
	}
	if !strings.Contains(out, "after the table") {
		t.Errorf("following content removed: %q", out)
	}
}

func TestApplyHeaderPatternsGmailBanner(t *testing.T) {
	in := `---------- Forwarded message ---------<br/><p>the forwarded content</p>`
	out, matched := applyPatterns(t, in)
	if !matched {
		t.Fatal("gmail banner was not matched")
	}
	if strings.Contains(out, "Forwarded message") {
		t.Errorf("banner survived: %q", out)
	}
	if !strings.Contains(out, "the forwarded content") {
		t.Errorf("content removed with the banner: %q", out)
	}
}

func TestApplyHeaderPatternsLeavesOrdinaryMarkup(t *testing.T) {
	in := `<p>Ordinary paragraph mentioning From: someone in passing.</p>`
	out, matched := applyPatterns(t, in)
	if matched {
		t.Fatalf("ordinary markup was cut: %q", out)
	}
	if out != in {
		t.Errorf("markup changed without a match: %q", out)
	}
}

func TestApplyHeaderPatternsIgnoresUnclosedWrapper(t *testing.T) {
	in := `<div><b>From:</b> a@b.c<br/><b>Sent:</b> Mon<br/><b>To:</b> d<br/><b>Subject:</b> s`
	if _, matched := applyPatterns(t, in); matched {
		t.Error("unclosed wrapper should not produce a span")
	}
}

func TestSanitizeSiblingHeaderParagraphsKeepBody(t *testing.T) {
	in := `<html><body><p>From: Alice &lt;alice@example.com&gt;</p><p>Sent: Monday, January 5, 2026 9:15 AM</p><p>To: bob@example.com</p><p>Subject: quarterly numbers</p><p>The body paragraph that must survive sanitization.</p></body></html>`
	out := newTestSanitizer().Sanitize(in)

	if strings.Contains(out, "Subject:") {
		t.Errorf("sibling header paragraphs survived:\n%s", out)
	}
	if !strings.Contains(out, "The body paragraph that must survive") {
		t.Errorf("body was removed along with the header:\n%s", out)
	}
}

func TestRemoveHeaderChildRunRequiresFullHeader(t *testing.T) {
	// a lone From: line among ordinary paragraphs is not a header
	in := `<html><body><p>From: the desk of Alice</p><p>Regular first paragraph.</p><p>Regular second paragraph.</p></body></html>`
	out := newTestSanitizer().Sanitize(in)

	for _, want := range []string{"From: the desk of Alice", "Regular first paragraph.", "Regular second paragraph."} {
		if !strings.Contains(out, want) {
			t.Errorf("content %q was removed without a complete header present:\n%s", want, out)
		}
	}
}

func TestHeaderFieldTextLenCountsOnlyFieldLines(t *testing.T) {
	text := "From: a@b.c\nSent: Monday\nThe actual message body, much longer than the fields above it."
	got := headerFieldTextLen(text)
	want := len("From: a@b.c") + len("Sent: Monday")
	if got != want {
		t.Errorf("headerFieldTextLen = %d, want %d", got, want)
	}
}
