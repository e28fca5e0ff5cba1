// Package emailparse recognizes forwarded emails and digs the original
// sender and date out of the forwarding header a mail client left in the
// HTML body.
package emailparse

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"mail2md-backend/pkg/htmlclean"
)

// ForwardedMetadata is the attribution extracted from a forwarding header.
// It overrides the webhook envelope sender when present.
type ForwardedMetadata struct {
	SenderName  string
	SenderEmail string
	SentDate    time.Time
	HasDate     bool
}

var forwardPrefixes = []string{"fw:", "fwd:"}

// IsForwardedEmail reports whether the subject carries a forward marker.
func IsForwardedEmail(subject string) bool {
	trimmed := strings.ToLower(strings.TrimLeft(subject, " \t"))
	for _, p := range forwardPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

var subjectPrefixRe = regexp.MustCompile(`^(?i)\s*(?:fw|fwd|re)\s*:\s*`)

// StripForwardingPrefix removes any leading run of FW:/Fwd:/RE: tokens.
func StripForwardingPrefix(subject string) string {
	for {
		stripped := subjectPrefixRe.ReplaceAllString(subject, "")
		if stripped == subject {
			return strings.TrimSpace(stripped)
		}
		subject = stripped
	}
}

// Known wrapper ids/classes clients put around the forwarding header.
var headerContainerHints = []string{"divrplyfwdmsg", "gmail_attr", "moz-cite-prefix", "zmail_extra"}

var (
	reFromNamed = regexp.MustCompile(`From:\s*"?([^"<\n]*?)"?\s*<([^>\s]+@[^>\s]+)>`)
	reFromBare  = regexp.MustCompile(`From:\s*([^\s<]+@[^\s>,;]+)`)
	reDateField = regexp.MustCompile(`(?:Date|Sent):\s*([^\n<]+?)(?:\n|$|\s{2,})`)
)

// emailDateFormats lists the date shapes the major clients write into
// forwarding headers, tried in order before generic parsing.
var emailDateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, Jan 2, 2006 at 3:04 PM",
	"Monday, January 2, 2006 3:04 PM",
	"Monday, January 2, 2006 3:04:05 PM",
	"2 January 2006 15:04",
	"January 2, 2006 3:04 PM",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ExtractForwardedMetadata pulls the original sender and date from the
// pre-sanitized HTML. It returns nil when neither an email address nor a
// date could be recovered.
func ExtractForwardedMetadata(rawHTML string) *ForwardedMetadata {
	if meta := extractFromDOM(rawHTML); meta != nil {
		return meta
	}
	return extractFromText(flattenHTML(rawHTML))
}

// extractFromDOM scans known header containers and any element whose text
// satisfies the forwarding-header heuristic used by the sanitizer.
func extractFromDOM(rawHTML string) *ForwardedMetadata {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	var candidate string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			idClass := strings.ToLower(attr(n, "id") + " " + attr(n, "class"))
			for _, hint := range headerContainerHints {
				if strings.Contains(idClass, hint) {
					candidate = nodeText(n)
					return true
				}
			}
			if htmlclean.LooksLikeForwardingHeader(nodeText(n)) {
				candidate = nodeText(n)
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)
	if candidate == "" {
		return nil
	}
	return extractFromText(candidate)
}

func extractFromText(text string) *ForwardedMetadata {
	meta := &ForwardedMetadata{}

	if m := reFromNamed.FindStringSubmatch(text); m != nil {
		meta.SenderName = strings.TrimSpace(m[1])
		meta.SenderEmail = strings.TrimSpace(m[2])
	} else if m := reFromBare.FindStringSubmatch(text); m != nil {
		meta.SenderEmail = strings.Trim(m[1], ".,;")
	}
	if meta.SenderName == "" && meta.SenderEmail != "" {
		if at := strings.Index(meta.SenderEmail, "@"); at > 0 {
			meta.SenderName = meta.SenderEmail[:at]
		}
	}

	if m := reDateField.FindStringSubmatch(text); m != nil {
		if parsed, ok := parseEmailDate(strings.TrimSpace(m[1])); ok {
			meta.SentDate = parsed
			meta.HasDate = true
		}
	}

	if meta.SenderEmail == "" && !meta.HasDate {
		return nil
	}
	return meta
}

func parseEmailDate(value string) (time.Time, bool) {
	for _, layout := range emailDateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	// generic fallback: strip a trailing timezone name and retry
	if idx := strings.LastIndex(value, "("); idx > 0 {
		return parseEmailDate(strings.TrimSpace(value[:idx]))
	}
	return time.Time{}, false
}

func flattenHTML(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	return nodeText(doc)
}

// nodeText flattens text under n, inserting newlines at <br> and block
// boundaries so field regexes see line-shaped input.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		if node.Type == html.ElementNode {
			switch node.Data {
			case "br", "p", "div", "tr":
				sb.WriteString("\n")
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
