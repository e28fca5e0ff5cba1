package markdown

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// ConvertedDocument is the deliverable produced from one inbound email.
type ConvertedDocument struct {
	Content     []byte
	FileName    string
	SenderName  string
	SenderEmail string
	ReceivedAt  time.Time
}

// ConvertToMarkdownBytes converts the body and wraps it with the fixed
// document header. It never fails; the converter guarantees a body.
func (c *Converter) ConvertToMarkdownBytes(ctx context.Context, subject, senderName, senderEmail string, receivedAt time.Time, htmlContent string) []byte {
	body := c.Convert(ctx, htmlContent)
	doc := fmt.Sprintf("# %s\n\n**From:** %s <%s>\n**Received:** %s\n\n---\n\n%s\n",
		subject,
		senderName,
		senderEmail,
		receivedAt.UTC().Format("2006-01-02 15:04:05"),
		body,
	)
	return []byte(doc)
}

const maxNameComponentLen = 50

var invalidFileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// GenerateFileName builds the destination file name. The format is part of
// the compatibility contract: {yyyy-MM-dd}-{sender}-{subject}.md with each
// of the two name components sanitized and capped at 50 characters
// independently.
func GenerateFileName(date time.Time, senderName, subject string) string {
	return fmt.Sprintf("%s-%s-%s.md",
		date.UTC().Format("2006-01-02"),
		sanitizeFileComponent(senderName),
		sanitizeFileComponent(subject),
	)
}

func sanitizeFileComponent(s string) string {
	cleaned := invalidFileChars.ReplaceAllString(s, "")
	if cleaned == "" {
		cleaned = "unknown"
	}
	if len(cleaned) > maxNameComponentLen {
		cleaned = cleaned[:maxNameComponentLen]
	}
	return cleaned
}
