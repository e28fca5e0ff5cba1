// Package htmlclean strips non-content markup out of forwarded email HTML
// before it is handed to the Markdown converter. The cleaning pipeline is
// defensive: any single step may fail without aborting the run, and the best
// tree produced so far is what gets returned.
package htmlclean

import (
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type Sanitizer struct {
	logger zerolog.Logger

	// headerDominanceRatio is the share of an element's text that must be
	// forwarding-header text before the whole element is removed.
	headerDominanceRatio float64
	// contentLossRatio is the post/pre text-length ratio below which a
	// content-loss warning is logged.
	contentLossRatio float64
}

func NewSanitizer(logger zerolog.Logger, headerDominanceRatio, contentLossRatio float64) *Sanitizer {
	if headerDominanceRatio <= 0 {
		headerDominanceRatio = 0.6
	}
	if contentLossRatio <= 0 {
		contentLossRatio = 0.1
	}
	return &Sanitizer{
		logger:               logger.With().Str("component", "htmlclean").Logger(),
		headerDominanceRatio: headerDominanceRatio,
		contentLossRatio:     contentLossRatio,
	}
}

// Sanitize runs the full cleaning pipeline and returns sanitized HTML.
// It never fails: on a parse error the input is returned unchanged, and a
// failing step leaves the tree as the previous step produced it.
func (s *Sanitizer) Sanitize(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		s.logger.Warn().Err(err).Msg("html parse failed, returning input unchanged")
		return rawHTML
	}

	originalTextLen := len(strings.TrimSpace(flattenText(doc)))

	s.runStep("remove-noise", doc, removeNoise)
	s.runStep("remove-forwarding-headers", doc, s.removeForwardingHeaderBlocks)

	// The tree walk misses header shapes that only exist at the markup
	// level (line-break delimited runs, client-specific banners), so the
	// regex cascade runs on the rendered markup between tree passes.
	rendered := renderNode(doc)
	if rendered != "" {
		if cleaned, matched := applyHeaderPatterns(rendered, s.logger); matched {
			if reparsed, err := html.Parse(strings.NewReader(cleaned)); err == nil {
				doc = reparsed
			}
		}
	}

	s.runStep("remove-signatures", doc, removeSignatureBlocks)
	s.runStep("remove-quoted-replies", doc, removeQuotedReplies)
	s.runStep("strip-attributes", doc, stripAttributes)
	s.runStep("unwrap-tables", doc, unwrapLayoutTables)
	s.runStep("collapse-empties", doc, collapseEmptyContainers)

	out := renderNode(doc)
	if out == "" {
		return rawHTML
	}

	if originalTextLen > 100 {
		finalTextLen := len(strings.TrimSpace(flattenText(doc)))
		if float64(finalTextLen) < s.contentLossRatio*float64(originalTextLen) {
			s.logger.Warn().
				Int("original_chars", originalTextLen).
				Int("final_chars", finalTextLen).
				Msg("sanitizer removed most of the content, delivering anyway")
		}
	}
	return out
}

func (s *Sanitizer) runStep(name string, doc *html.Node, step func(*html.Node)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn().Str("step", name).Interface("reason", r).Msg("sanitize step failed, continuing")
		}
	}()
	step(doc)
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}

// flattenText concatenates all text nodes under n.
func flattenText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// collectNodes gathers every node matching the predicate. Matches are
// collected before removal so tree mutation never races the traversal.
func collectNodes(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

var trackingURLHints = []string{"track", "pixel", "beacon", "open.", "/o/", "mailtrack"}

func isTrackingPixel(n *html.Node) bool {
	w, h := getAttr(n, "width"), getAttr(n, "height")
	if w == "0" || w == "1" || h == "0" || h == "1" {
		return true
	}
	src := strings.ToLower(getAttr(n, "src"))
	for _, hint := range trackingURLHints {
		if strings.Contains(src, hint) {
			return true
		}
	}
	return false
}

func isHiddenByStyle(n *html.Node) bool {
	style := strings.ToLower(strings.ReplaceAll(getAttr(n, "style"), " ", ""))
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

// removeNoise drops scripts, styles, comments, tracking pixels, hidden
// elements and vendor-namespaced tags.
func removeNoise(doc *html.Node) {
	victims := collectNodes(doc, func(n *html.Node) bool {
		switch n.Type {
		case html.CommentNode:
			return true
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Style, atom.Script, atom.Noscript:
				return true
			}
			if strings.Contains(n.Data, ":") {
				return true
			}
			if n.DataAtom == atom.Img && isTrackingPixel(n) {
				return true
			}
			if isHiddenByStyle(n) {
				return true
			}
		}
		return false
	})
	for _, n := range victims {
		detach(n)
	}
}

var signatureMarkers = []string{"Sent from my", "Get Outlook for"}

func removeSignatureBlocks(doc *html.Node) {
	byID := collectNodes(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && strings.Contains(strings.ToLower(getAttr(n, "id")), "signature")
	})
	for _, n := range byID {
		detach(n)
	}

	texts := collectNodes(doc, func(n *html.Node) bool {
		if n.Type != html.TextNode {
			return false
		}
		for _, marker := range signatureMarkers {
			if strings.Contains(n.Data, marker) {
				return true
			}
		}
		return false
	})
	for _, n := range texts {
		parent := n.Parent
		detach(n)
		if parent != nil && strings.TrimSpace(flattenText(parent)) == "" {
			detach(parent)
		}
	}
}

// Reply history containers appended by specific clients. These hold quoted
// replies or mobile signatures, not forwarded content, and go wholesale.
var quoteClasses = []string{"gmail_quote", "yahoo_quoted", "ms-outlook-mobile-signature", "applemailsignature"}
var quoteIDs = []string{"appendonsend"}

func removeQuotedReplies(doc *html.Node) {
	victims := collectNodes(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		class := strings.ToLower(getAttr(n, "class"))
		for _, qc := range quoteClasses {
			if strings.Contains(class, qc) {
				return true
			}
		}
		id := strings.ToLower(getAttr(n, "id"))
		for _, qi := range quoteIDs {
			if id == qi {
				return true
			}
		}
		return false
	})
	for _, n := range victims {
		detach(n)
	}
}

// stripAttributes keeps only href, src and alt everywhere.
func stripAttributes(doc *html.Node) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && len(n.Attr) > 0 {
			kept := n.Attr[:0]
			for _, a := range n.Attr {
				switch a.Key {
				case "href", "src", "alt":
					kept = append(kept, a)
				}
			}
			n.Attr = kept
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
}

func isLayoutTableTag(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Table, atom.Tbody, atom.Thead, atom.Tfoot, atom.Tr, atom.Td, atom.Th:
		return true
	}
	return false
}

// unwrapLayoutTables removes table structure tags while keeping their
// children in document order. Cells get a leading line break so adjacent
// cell text does not run together.
func unwrapLayoutTables(doc *html.Node) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		// children first, so nested tables unwrap bottom-up
		c := n.FirstChild
		for c != nil {
			next := c.NextSibling
			walk(c)
			c = next
		}
		if isLayoutTableTag(n) && n.Parent != nil {
			unwrapNode(n, n.DataAtom == atom.Td || n.DataAtom == atom.Th)
		}
	}
	walk(doc)
}

func unwrapNode(n *html.Node, prependBreak bool) {
	parent := n.Parent
	if prependBreak && n.FirstChild != nil {
		br := &html.Node{Type: html.ElementNode, DataAtom: atom.Br, Data: "br"}
		parent.InsertBefore(br, n)
	}
	for n.FirstChild != nil {
		child := n.FirstChild
		n.RemoveChild(child)
		parent.InsertBefore(child, n)
	}
	parent.RemoveChild(n)
}

func hasImageDescendant(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Img {
			return true
		}
		if hasImageDescendant(c) {
			return true
		}
	}
	return false
}

// collapseEmptyContainers removes p/div/span that hold nothing but
// whitespace and normalizes non-breaking spaces.
func collapseEmptyContainers(doc *html.Node) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		c := n.FirstChild
		for c != nil {
			next := c.NextSibling
			walk(c)
			c = next
		}
		if n.Type == html.TextNode {
			n.Data = strings.ReplaceAll(n.Data, "\u00a0", " ")
			return
		}
		if n.Type != html.ElementNode || n.Parent == nil {
			return
		}
		switch n.DataAtom {
		case atom.P, atom.Div, atom.Span:
		default:
			return
		}
		text := strings.TrimSpace(strings.ReplaceAll(flattenText(n), "\u00a0", " "))
		if text == "" && !hasImageDescendant(n) {
			detach(n)
		}
	}
	walk(doc)
}
