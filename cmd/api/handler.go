package api

import (
	"github.com/gin-gonic/gin"

	ingestDelivery "mail2md-backend/internal/ingest/delivery"
	storageDelivery "mail2md-backend/internal/storage/delivery"
	tokenDelivery "mail2md-backend/internal/token/delivery"
)

type Handler struct {
	webhookHandler    *ingestDelivery.WebhookHandler
	connectionHandler *storageDelivery.ConnectionHandler
	authHandler       *tokenDelivery.AuthHandler
}

func NewHandler(webhookHandler *ingestDelivery.WebhookHandler, connectionHandler *storageDelivery.ConnectionHandler, authHandler *tokenDelivery.AuthHandler) *Handler {
	return &Handler{
		webhookHandler:    webhookHandler,
		connectionHandler: connectionHandler,
		authHandler:       authHandler,
	}
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// CORS middleware for the registration frontend
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	SetupRoutes(r, h.webhookHandler, h.connectionHandler, h.authHandler)
	return r.Run(addr)
}
