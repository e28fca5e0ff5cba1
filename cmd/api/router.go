package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ingestDelivery "mail2md-backend/internal/ingest/delivery"
	storageDelivery "mail2md-backend/internal/storage/delivery"
	tokenDelivery "mail2md-backend/internal/token/delivery"
)

func SetupRoutes(r *gin.Engine, webhookHandler *ingestDelivery.WebhookHandler, connectionHandler *storageDelivery.ConnectionHandler, authHandler *tokenDelivery.AuthHandler) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Inbound email webhook
		api.POST("/webhook/inbound", webhookHandler.HandleInbound)

		// OAuth routes
		auth := api.Group("/auth")
		{
			auth.POST("/:provider/exchange", authHandler.Exchange)
			auth.DELETE("/:provider", authHandler.Revoke)
		}

		// Storage connection routes
		connections := api.Group("/connections")
		{
			connections.POST("", connectionHandler.Register)
			connections.GET("", connectionHandler.List)
			connections.DELETE("/:provider", connectionHandler.Disconnect)
		}

		// Provider folder browsing for the registration UI
		api.GET("/providers/:provider/folders", connectionHandler.ListFolders)

		// Identity linking
		api.POST("/identities/link", connectionHandler.LinkIdentities)
	}
}
