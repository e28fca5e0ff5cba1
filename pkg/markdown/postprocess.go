package markdown

import (
	"regexp"
	"strings"
)

var (
	// pandoc artifacts: fenced div markers and attribute-only braces
	reDivMarker  = regexp.MustCompile(`(?m)^:{3,}.*$`)
	reAttrBraces = regexp.MustCompile(`\{[#.][^}\n]*\}`)

	// backslash escapes the converters sprinkle over punctuation
	reEscapedPunct = regexp.MustCompile("\\\\([\\\\`*_{}\\[\\]()#+.!|<>-])")

	// a literal forwarding header block that survived HTML-level removal,
	// bold or plain, at line starts
	reLiteralHeader = regexp.MustCompile(`(?m)^(?:\*\*)?From:.*(?:\n(?:\*\*)?(?:Sent|Date|To|Subject):.*){1,3}\n?`)

	reExcessNewlines  = regexp.MustCompile(`\n{4,}`)
	reTrailingLineWS  = regexp.MustCompile(`(?m)[ \t]+$`)
	reEmptyLink       = regexp.MustCompile(`\[\s*\]\([^)]*\)`)
	reEmptyBold       = regexp.MustCompile(`\*\*(\s*)\*\*`)
	reEmptyItalic     = regexp.MustCompile(`([^*])\*(\s*)\*([^*])`)
	reMarkdownLink    = regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\s]+)\)`)
	reRepeatedHRule   = regexp.MustCompile(`(?m)(?:^-{3,}[ \t]*\n+){2,}`)
	reRepeatedQuote   = regexp.MustCompile(`(?m)^(?:>[ \t]*){2,}`)
	reMultipleSpaces  = regexp.MustCompile(`[ ]{2,}`)
	reMailtoLinkLabel = regexp.MustCompile(`\[([^\]\n]+)\]\(mailto:([^)\s]+)\)`)
)

// PostProcess cleans converter output artifacts. The rules are ordered:
// structural removals first, then link collapsing, then whitespace
// normalization, so later rules see the text the earlier ones produced.
func PostProcess(markdown string) string {
	out := markdown

	out = reDivMarker.ReplaceAllString(out, "")
	out = reAttrBraces.ReplaceAllString(out, "")
	out = reEscapedPunct.ReplaceAllString(out, "$1")
	out = reLiteralHeader.ReplaceAllString(out, "")

	out = reEmptyLink.ReplaceAllString(out, "")
	out = reEmptyBold.ReplaceAllString(out, "$1")
	out = reEmptyItalic.ReplaceAllString(out, "$1$2$3")

	// [email](mailto:email) -> email
	out = reMailtoLinkLabel.ReplaceAllStringFunc(out, func(m string) string {
		sub := reMailtoLinkLabel.FindStringSubmatch(m)
		if strings.EqualFold(strings.TrimSpace(sub[1]), sub[2]) {
			return sub[2]
		}
		return m
	})

	// [url](url) -> url, tolerant of a trailing slash on either side
	out = reMarkdownLink.ReplaceAllStringFunc(out, func(m string) string {
		sub := reMarkdownLink.FindStringSubmatch(m)
		label := strings.TrimSpace(sub[1])
		url := sub[2]
		if strings.TrimSuffix(label, "/") == strings.TrimSuffix(url, "/") {
			return url
		}
		return m
	})

	out = reRepeatedHRule.ReplaceAllString(out, "---\n\n")
	out = reRepeatedQuote.ReplaceAllString(out, "> ")
	out = reExcessNewlines.ReplaceAllString(out, "\n\n\n")
	out = reTrailingLineWS.ReplaceAllString(out, "")
	out = reMultipleSpaces.ReplaceAllString(out, " ")

	return strings.Trim(out, "\n")
}
