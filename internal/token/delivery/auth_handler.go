package delivery

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mail2md-backend/internal/token/domain"
	"mail2md-backend/internal/token/usecase"
)

// AuthHandler completes OAuth flows started by the registration frontend.
type AuthHandler struct {
	tokens usecase.TokenStore
}

func NewAuthHandler(tokens usecase.TokenStore) *AuthHandler {
	return &AuthHandler{tokens: tokens}
}

type exchangeRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Code         string `json:"code" binding:"required"`
	CodeVerifier string `json:"codeVerifier" binding:"required"`
	RedirectURI  string `json:"redirectUri" binding:"required"`
}

func (h *AuthHandler) Exchange(c *gin.Context) {
	provider, err := domain.ParseProvider(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.tokens.ExchangeCodeForTokens(c.Request.Context(), provider, req.Email, req.Code, req.CodeVerifier, req.RedirectURI); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "authorized"})
}

func (h *AuthHandler) Revoke(c *gin.Context) {
	provider, err := domain.ParseProvider(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing email"})
		return
	}
	if err := h.tokens.RevokeTokens(provider, email); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}
