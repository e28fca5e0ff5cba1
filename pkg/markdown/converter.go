// Package markdown turns sanitized email HTML into the Markdown document
// that gets delivered to storage providers. Conversion degrades through
// three tiers: a pandoc subprocess, an embedded converter library, and a
// bare text extraction that can never fail.
package markdown

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

type Converter struct {
	logger     zerolog.Logger
	pandocPath string
	timeout    time.Duration
	embedded   *md.Converter
}

// NewConverter resolves the pandoc binary once at startup. A missing binary
// is not an error, it just disables the primary tier.
func NewConverter(logger zerolog.Logger, pandocPath string, timeout time.Duration) *Converter {
	logger = logger.With().Str("component", "markdown").Logger()
	if pandocPath == "" {
		if found, err := exec.LookPath("pandoc"); err == nil {
			pandocPath = found
		}
	} else if _, err := os.Stat(pandocPath); err != nil {
		logger.Warn().Str("path", pandocPath).Msg("configured pandoc binary not found, using embedded converter")
		pandocPath = ""
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	embedded := md.NewConverter("", true, &md.Options{})
	embedded.Use(plugin.GitHubFlavored())
	embedded.Keep("br")

	return &Converter{
		logger:     logger,
		pandocPath: pandocPath,
		timeout:    timeout,
		embedded:   embedded,
	}
}

// Convert produces Markdown from sanitized HTML. It never returns an error:
// each tier that fails hands over to the next, and the last tier is plain
// text extraction.
func (c *Converter) Convert(ctx context.Context, htmlContent string) string {
	if c.pandocPath != "" {
		out, err := c.convertWithPandoc(ctx, htmlContent)
		if err == nil && strings.TrimSpace(out) != "" {
			return PostProcess(out)
		}
		if err != nil {
			c.logger.Warn().Err(err).Msg("pandoc conversion failed, falling back to embedded converter")
		}
	}

	out, err := c.convertEmbedded(htmlContent)
	if err == nil && strings.TrimSpace(out) != "" {
		return PostProcess(out)
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("embedded conversion failed, falling back to text extraction")
	}

	return extractText(htmlContent)
}

// convertWithPandoc shells out to pandoc with native div/span and raw HTML
// stripping and no line wrapping. Temp artifacts are removed on every exit
// path, including timeout.
func (c *Converter) convertWithPandoc(ctx context.Context, htmlContent string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	in, err := os.CreateTemp("", "mail2md-*.html")
	if err != nil {
		return "", fmt.Errorf("create temp input: %w", err)
	}
	defer os.Remove(in.Name())

	if _, err := in.WriteString(htmlContent); err != nil {
		in.Close()
		return "", fmt.Errorf("write temp input: %w", err)
	}
	if err := in.Close(); err != nil {
		return "", fmt.Errorf("close temp input: %w", err)
	}

	out, err := os.CreateTemp("", "mail2md-*.md")
	if err != nil {
		return "", fmt.Errorf("create temp output: %w", err)
	}
	outName := out.Name()
	out.Close()
	defer os.Remove(outName)

	cmd := exec.CommandContext(ctx, c.pandocPath,
		"-f", "html-native_divs-native_spans",
		"-t", "gfm-raw_html",
		"--wrap=none",
		"-o", outName,
		in.Name(),
	)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pandoc: %w", err)
	}

	converted, err := os.ReadFile(outName)
	if err != nil {
		return "", fmt.Errorf("read pandoc output: %w", err)
	}
	return string(converted), nil
}

func (c *Converter) convertEmbedded(htmlContent string) (out string, err error) {
	// the embedded converter panics on some malformed trees
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("embedded converter panicked: %v", r)
		}
	}()
	return c.embedded.ConvertString(htmlContent)
}

// extractText is the last-resort tier: strip all tags, collapse whitespace.
func extractText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return strings.TrimSpace(htmlContent)
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return strings.Join(strings.Fields(sb.String()), " ")
}
