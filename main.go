package main

import (
	"log"
	"os"

	"github.com/rs/zerolog"

	api "mail2md-backend/cmd/api"
	identitydomain "mail2md-backend/internal/identity/domain"
	identityRepo "mail2md-backend/internal/identity/repository"
	identityUsecase "mail2md-backend/internal/identity/usecase"
	ingestDelivery "mail2md-backend/internal/ingest/delivery"
	ingestUsecase "mail2md-backend/internal/ingest/usecase"
	prefsdomain "mail2md-backend/internal/prefs/domain"
	prefsRepo "mail2md-backend/internal/prefs/repository"
	storageDelivery "mail2md-backend/internal/storage/delivery"
	storagedomain "mail2md-backend/internal/storage/domain"
	storageProvider "mail2md-backend/internal/storage/provider"
	storageRepo "mail2md-backend/internal/storage/repository"
	tokenDelivery "mail2md-backend/internal/token/delivery"
	tokendomain "mail2md-backend/internal/token/domain"
	tokenRepo "mail2md-backend/internal/token/repository"
	tokenUsecase "mail2md-backend/internal/token/usecase"
	"mail2md-backend/pkg/config"
	"mail2md-backend/pkg/crypto"
	"mail2md-backend/pkg/database"
	"mail2md-backend/pkg/htmlclean"
	"mail2md-backend/pkg/mailer"
	"mail2md-backend/pkg/markdown"
)

func main() {
	// Load configuration
	cfg := config.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&tokendomain.StoredToken{},
		&storagedomain.StorageConnection{},
		&identitydomain.IdentityLink{},
		&prefsdomain.UserPreferences{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Token encryption
	if cfg.TokenEncryptionSecret == "" {
		log.Fatal("TOKEN_ENCRYPTION_SECRET must be configured")
	}
	tokenCipher, err := crypto.NewAESCipher(cfg.TokenEncryptionSecret)
	if err != nil {
		log.Fatal("Failed to initialize token cipher:", err)
	}

	// Initialize repositories (dependency injection)
	tokenRepository := tokenRepo.NewTokenRepository(db)
	connectionRepository := storageRepo.NewConnectionRepository(db)
	linkRepository := identityRepo.NewLinkRepository(db)
	preferencesRepository := prefsRepo.NewPreferencesRepository(db)

	// Token store and storage providers
	tokenStore := tokenUsecase.NewTokenStore(tokenRepository, tokenCipher, cfg, logger)
	router := storageProvider.NewRouter(
		storageProvider.NewOneDriveProvider(tokenStore, logger),
		storageProvider.NewGoogleDriveProvider(tokenStore, logger),
	)

	// Conversion pipeline
	sanitizer := htmlclean.NewSanitizer(logger, cfg.HeaderDominanceRatio, cfg.ContentLossRatio)
	converter := markdown.NewConverter(logger, cfg.PandocPath, cfg.ConvertTimeout)

	// Identity graph and notification mailer
	identityGraph := identityUsecase.NewIdentityLinkGraph(linkRepository, logger)
	mailClient := mailer.NewClient(logger, cfg.MailAPIKey, cfg.MailAPIBaseURL, cfg.MailFromEmail, cfg.MailFromName)

	// Orchestrator
	ingest := ingestUsecase.NewIngestUsecase(
		sanitizer,
		converter,
		identityGraph,
		connectionRepository,
		router,
		preferencesRepository,
		mailClient,
		logger,
	)

	// HTTP handlers
	webhookHandler := ingestDelivery.NewWebhookHandler(ingest, logger)
	connectionHandler := storageDelivery.NewConnectionHandler(connectionRepository, router, identityGraph)
	authHandler := tokenDelivery.NewAuthHandler(tokenStore)
	handler := api.NewHandler(webhookHandler, connectionHandler, authHandler)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	log.Printf("Server starting on port %s", port)
	if err := handler.Start(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
