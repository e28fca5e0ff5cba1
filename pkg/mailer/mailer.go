// Package mailer sends notification emails through an HTTP mail API.
package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Sender delivers a notification email, optionally carrying the converted
// document as an attachment. Implementations retry transient rate limiting
// internally.
type Sender interface {
	SendWithAttachment(ctx context.Context, toEmail, toName, subject, body, fileName string, attachment []byte) bool
}

type Client struct {
	apiKey    string
	baseURL   string
	fromEmail string
	fromName  string
	http      *http.Client
	logger    zerolog.Logger
}

func NewClient(logger zerolog.Logger, apiKey, baseURL, fromEmail, fromName string) *Client {
	return &Client{
		apiKey:    apiKey,
		baseURL:   baseURL,
		fromEmail: fromEmail,
		fromName:  fromName,
		http:      &http.Client{Timeout: 20 * time.Second},
		logger:    logger.With().Str("component", "mailer").Logger(),
	}
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type attachmentPayload struct {
	Content     string `json:"content"`
	Type        string `json:"type"`
	Filename    string `json:"filename"`
	Disposition string `json:"disposition"`
}

type sendRequest struct {
	Personalizations []struct {
		To []address `json:"to"`
	} `json:"personalizations"`
	From        address             `json:"from"`
	Subject     string              `json:"subject"`
	Content     []map[string]string `json:"content"`
	Attachments []attachmentPayload `json:"attachments,omitempty"`
}

const maxSendAttempts = 3

// SendWithAttachment posts the message to the mail API. HTTP 429 is retried
// with exponential backoff; any other failure is final.
func (c *Client) SendWithAttachment(ctx context.Context, toEmail, toName, subject, body, fileName string, attachment []byte) bool {
	req := sendRequest{
		From:    address{Email: c.fromEmail, Name: c.fromName},
		Subject: subject,
		Content: []map[string]string{{"type": "text/plain", "value": body}},
	}
	req.Personalizations = make([]struct {
		To []address `json:"to"`
	}, 1)
	req.Personalizations[0].To = []address{{Email: toEmail, Name: toName}}
	if len(attachment) > 0 {
		req.Attachments = []attachmentPayload{{
			Content:     base64.StdEncoding.EncodeToString(attachment),
			Type:        "text/markdown",
			Filename:    fileName,
			Disposition: "attachment",
		}}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal mail payload")
		return false
	}

	backoff := time.Second
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		status, err := c.post(ctx, payload)
		if err != nil {
			c.logger.Error().Err(err).Int("attempt", attempt).Msg("mail send failed")
			return false
		}
		if status < 300 {
			return true
		}
		if status != http.StatusTooManyRequests {
			c.logger.Error().Int("status", status).Str("to", toEmail).Msg("mail API rejected message")
			return false
		}
		c.logger.Warn().Int("attempt", attempt).Msg("mail API rate limited, backing off")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false
		}
		backoff *= 2
	}
	return false
}

func (c *Client) post(ctx context.Context, payload []byte) (int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/mail/send", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("mail API request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
