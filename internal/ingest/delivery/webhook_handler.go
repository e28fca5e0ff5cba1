package delivery

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"mail2md-backend/internal/ingest/usecase"
)

// WebhookHandler receives inbound-email webhook calls. The multipart/MIME
// unpacking is the mail provider's job; by the time the request lands here
// it is form fields.
type WebhookHandler struct {
	ingest usecase.IngestUsecase
	logger zerolog.Logger
}

func NewWebhookHandler(ingest usecase.IngestUsecase, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingest: ingest,
		logger: logger.With().Str("component", "webhook").Logger(),
	}
}

func (h *WebhookHandler) HandleInbound(c *gin.Context) {
	from := c.PostForm("from")
	subject := c.PostForm("subject")
	html := c.PostForm("html")
	if html == "" {
		// plain-text fallback for senders without an HTML part
		html = c.PostForm("text")
	}

	if from == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing sender"})
		return
	}

	summary, err := h.ingest.ProcessInboundEmail(c.Request.Context(), from, subject, html)
	if err != nil {
		h.logger.Error().Err(err).Msg("inbound processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Always 200: the webhook caller must not retry delivery problems the
	// user has to fix themselves. The body carries the real status.
	c.JSON(http.StatusOK, summary)
}
