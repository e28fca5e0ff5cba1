package htmlclean

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	maxHeaderTextLen  = 500
	maxFromOffset     = 100
	requiredMarkerHit = 3
)

// LooksLikeForwardingHeader reports whether flattened element text reads
// like the From/Sent/To/Subject block a mail client inserts when forwarding.
// From: and Subject: are mandatory; Date:/Sent: and To: count toward the
// three-of-four minimum. The block must be short and must lead with From:.
func LooksLikeForwardingHeader(text string) bool {
	text = strings.TrimSpace(text)
	if len(text) == 0 || len(text) > maxHeaderTextLen {
		return false
	}
	fromIdx := strings.Index(text, "From:")
	if fromIdx < 0 || fromIdx > maxFromOffset {
		return false
	}
	if !strings.Contains(text, "Subject:") {
		return false
	}
	hits := 2
	if strings.Contains(text, "Date:") || strings.Contains(text, "Sent:") {
		hits++
	}
	if strings.Contains(text, "To:") {
		hits++
	}
	return hits >= requiredMarkerHit
}

// removeForwardingHeaderBlocks finds the deepest elements whose text reads
// like a forwarding header, then removes the largest ancestor still
// dominated by that header text. Climbing stops at body/section boundaries,
// and a candidate that is itself a boundary (header fields spread across
// sibling children of <body>) loses only the children forming the header,
// so the forwarded body cannot be swept away.
func (s *Sanitizer) removeForwardingHeaderBlocks(doc *html.Node) {
	candidates := collectHeaderCandidates(doc)
	for _, n := range candidates {
		if n.Parent == nil {
			continue // already removed inside an earlier candidate
		}
		if isClimbBoundary(n) {
			removeHeaderChildRun(n)
			continue
		}

		headerLen := headerFieldTextLen(flattenLines(n))
		ownLen := len(strings.TrimSpace(flattenText(n)))
		if headerLen == 0 || ownLen == 0 {
			continue
		}
		if float64(headerLen)/float64(ownLen) <= s.headerDominanceRatio {
			// mixed content: the element carries real text besides the
			// header fields, so only the header children go
			removeHeaderChildRun(n)
			continue
		}

		target := n
		for parent := target.Parent; parent != nil && !isClimbBoundary(parent); parent = parent.Parent {
			parentLen := len(strings.TrimSpace(flattenText(parent)))
			if parentLen == 0 || float64(headerLen)/float64(parentLen) <= s.headerDominanceRatio {
				break
			}
			target = parent
		}
		detach(target)
	}
}

// removeHeaderChildRun detaches the consecutive children of n that form a
// forwarding header: the run starts at the first child carrying From: and
// ends with the child carrying Subject:. Nothing is removed unless the
// combined run text passes the header heuristic, and n itself always stays.
func removeHeaderChildRun(n *html.Node) bool {
	var run []*html.Node
	var combined strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		text := strings.TrimSpace(flattenText(c))
		if len(run) == 0 && !strings.Contains(text, "From:") {
			continue
		}
		run = append(run, c)
		combined.WriteString(text)
		combined.WriteString("\n")
		if strings.Contains(text, "Subject:") {
			break
		}
	}
	if !strings.Contains(combined.String(), "Subject:") || !LooksLikeForwardingHeader(combined.String()) {
		return false
	}
	for _, c := range run {
		detach(c)
	}
	return true
}

// headerFieldMarkers are the field labels whose lines count as header text
// when measuring dominance.
var headerFieldMarkers = []string{"From:", "Sent:", "Date:", "To:", "Cc:", "Subject:"}

// headerFieldTextLen measures only the lines carrying header fields, so an
// element mixing header and body text is never counted as all header.
func headerFieldTextLen(text string) int {
	total := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		for _, marker := range headerFieldMarkers {
			if strings.Contains(line, marker) {
				total += len(line)
				break
			}
		}
	}
	return total
}

// flattenLines is flattenText with line breaks at br and block boundaries,
// so header fields land on their own lines.
func flattenLines(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		if node.Type == html.ElementNode {
			switch node.DataAtom {
			case atom.Br, atom.P, atom.Div, atom.Tr:
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

// collectHeaderCandidates returns the deepest element nodes matching the
// header heuristic (children are preferred over matching ancestors).
func collectHeaderCandidates(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		childMatched := false
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				childMatched = true
			}
		}
		if childMatched {
			return true
		}
		if n.Type == html.ElementNode && LooksLikeForwardingHeader(flattenText(n)) {
			out = append(out, n)
			return true
		}
		return false
	}
	walk(root)
	return out
}

func isClimbBoundary(n *html.Node) bool {
	if n.Type == html.DocumentNode {
		return true
	}
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Body, atom.Html, atom.Section:
		return true
	}
	return false
}

type headerPattern struct {
	find func(string) []int
	desc string
}

func regexPattern(re *regexp.Regexp, desc string) headerPattern {
	return headerPattern{find: re.FindStringIndex, desc: desc}
}

var reMarkupTags = regexp.MustCompile(`<[^>]*>`)

// wrappedScan finds a <tag>…</tag> block whose flattened text reads like a
// forwarding header. Go's regexp engine has no lookahead to stop a match at
// the closing tag, so the block end is located by tracking nesting depth.
type wrappedScan struct {
	open  *regexp.Regexp
	close *regexp.Regexp
}

func newWrappedScan(tag string) *wrappedScan {
	return &wrappedScan{
		open:  regexp.MustCompile(`(?i)<` + tag + `\b[^>]*>`),
		close: regexp.MustCompile(`(?i)</` + tag + `\s*>`),
	}
}

func (w *wrappedScan) find(markup string) []int {
	for offset := 0; ; {
		loc := w.open.FindStringIndex(markup[offset:])
		if loc == nil {
			return nil
		}
		start, inner := offset+loc[0], offset+loc[1]
		if end := w.findClose(markup, inner); end > 0 {
			text := reMarkupTags.ReplaceAllString(markup[inner:end], "\n")
			if LooksLikeForwardingHeader(text) {
				return []int{start, end}
			}
		}
		offset = inner
	}
}

func (w *wrappedScan) findClose(markup string, from int) int {
	depth, pos := 1, from
	for depth > 0 {
		closeLoc := w.close.FindStringIndex(markup[pos:])
		if closeLoc == nil {
			return -1
		}
		if openLoc := w.open.FindStringIndex(markup[pos:]); openLoc != nil && openLoc[0] < closeLoc[0] {
			depth++
			pos += openLoc[1]
			continue
		}
		depth--
		pos += closeLoc[1]
	}
	return pos
}

// headerPatterns covers header shapes the tree walk misses: banner lines,
// paragraph/div/table wrappers and plain line-break delimited runs across
// the major client conventions. Evaluated in order, first match wins.
var headerPatterns = []headerPattern{
	regexPattern(
		regexp.MustCompile(`(?is)-{2,}\s*Forwarded message\s*-{2,}\s*(?:<br\s*/?>\s*)*(?:From:[^<]*(?:<[^>]+>[^<]*)*?Subject:[^<]*(?:<br\s*/?>)?)?`),
		"gmail forwarded banner",
	),
	{newWrappedScan("p").find, "paragraph-wrapped header"},
	{newWrappedScan("div").find, "div-wrapped header"},
	{newWrappedScan("table").find, "table-wrapped header"},
	regexPattern(
		regexp.MustCompile(`(?is)From:[^<>]{1,150}<br\s*/?>\s*(?:(?:Sent|Date):[^<>]{1,150}<br\s*/?>\s*)(?:To:[^<>]{1,200}<br\s*/?>\s*)?Subject:[^<>]{0,200}(?:<br\s*/?>)?`),
		"line-break delimited header",
	),
}

// applyHeaderPatterns removes the first matching header shape from the raw
// markup. Only the first occurrence of the first matching pattern is cut.
func applyHeaderPatterns(markup string, logger zerolog.Logger) (string, bool) {
	for _, p := range headerPatterns {
		if loc := p.find(markup); loc != nil {
			logger.Debug().Str("pattern", p.desc).Msg("regex fallback removed forwarding header")
			return markup[:loc[0]] + markup[loc[1]:], true
		}
	}
	return markup, false
}
