package delivery

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	identityusecase "mail2md-backend/internal/identity/usecase"
	"mail2md-backend/internal/storage/domain"
	"mail2md-backend/internal/storage/provider"
	"mail2md-backend/internal/storage/repository"
	tokendomain "mail2md-backend/internal/token/domain"
)

// ConnectionHandler exposes the endpoints the registration frontend calls
// to manage storage connections.
type ConnectionHandler struct {
	connections repository.ConnectionRepository
	router      *provider.Router
	identity    identityusecase.IdentityLinkGraph
}

func NewConnectionHandler(connections repository.ConnectionRepository, router *provider.Router, identity identityusecase.IdentityLinkGraph) *ConnectionHandler {
	return &ConnectionHandler{connections: connections, router: router, identity: identity}
}

type registerConnectionRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Provider   string `json:"provider" binding:"required"`
	RootFolder string `json:"rootFolder"`
	DriveID    string `json:"driveId"`
	FolderID   string `json:"folderId"`
}

func (h *ConnectionHandler) Register(c *gin.Context) {
	var req registerConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	providerID, err := tokendomain.ParseProvider(req.Provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.RootFolder == "" {
		req.RootFolder = "EmailArchive"
	}

	conn := &domain.StorageConnection{
		Email:            req.Email,
		Provider:         string(providerID),
		RootFolder:       req.RootFolder,
		DriveID:          req.DriveID,
		FolderID:         req.FolderID,
		ConsentGrantedAt: time.Now(),
		IsActive:         true,
	}
	if err := h.connections.Upsert(conn); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conn)
}

func (h *ConnectionHandler) List(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing email"})
		return
	}
	conns, err := h.connections.FindActiveByEmail(email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": conns})
}

func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	email := c.Query("email")
	providerName := c.Param("provider")
	providerID, err := tokendomain.ParseProvider(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing email"})
		return
	}
	if c.Query("hard") == "true" {
		err = h.connections.Delete(email, string(providerID))
	} else {
		err = h.connections.Deactivate(email, string(providerID))
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

func (h *ConnectionHandler) ListFolders(c *gin.Context) {
	email := c.Query("email")
	parent := c.Query("parent")
	p, err := h.router.GetProvider(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	folders, err := p.ListFolders(c.Request.Context(), email, parent)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": folders})
}

type linkIdentitiesRequest struct {
	Email       string `json:"email" binding:"required,email"`
	LinkedEmail string `json:"linkedEmail" binding:"required,email"`
	Provider    string `json:"provider" binding:"required"`
}

func (h *ConnectionHandler) LinkIdentities(c *gin.Context) {
	var req linkIdentitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.identity.LinkIdentities(req.Email, req.LinkedEmail, req.Provider); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "linked"})
}
