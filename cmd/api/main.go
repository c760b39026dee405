package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/machinebox/graphql"

	"bazaarchat/internal/adapter/api"
	"bazaarchat/internal/adapter/api/handler"
	apimiddleware "bazaarchat/internal/adapter/api/middleware"
	"bazaarchat/internal/adapter/api/router"
	"bazaarchat/internal/adapter/repository"
	domainrepo "bazaarchat/internal/domain/repository"
	"bazaarchat/internal/infrastructure/firebase"
	"bazaarchat/internal/infrastructure/ratelimit"
	"bazaarchat/internal/infrastructure/realtime"
	"bazaarchat/internal/infrastructure/websocket"
	"bazaarchat/internal/usecase"
	"bazaarchat/pkg/config"
	"bazaarchat/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	ctx := context.Background()

	var (
		convRepo  domainrepo.ConversationRepository
		notifRepo domainrepo.NotificationRepository
		verifier  apimiddleware.TokenVerifier
	)

	switch cfg.StoreDriver {
	case config.StoreFirestore:
		clients, err := firebase.NewClients(ctx, firebase.Credentials{
			ProjectID: cfg.FirebaseProject,
			JSON:      cfg.FirebaseServiceAccountJSON,
			Path:      cfg.FirebaseServiceAccountPath,
		})
		if err != nil {
			logger.Fatal("Failed to initialize Firebase: %v", err)
		}
		defer clients.Close()

		convRepo = repository.NewFirestoreConversationRepository(clients.Firestore)
		notifRepo = repository.NewFirestoreNotificationRepository(clients.Firestore)
		verifier = clients.Auth

	case config.StoreMemory:
		logger.Warn("Using the in-memory store; data is lost on restart")
		convRepo = repository.NewMemoryConversationRepository()
		notifRepo = repository.NewMemoryNotificationRepository()

	default:
		logger.Fatal("Unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.SubgraphURL == "" {
		logger.Fatal("SUBGRAPH_URL is required")
	}
	subgraph := graphql.NewClient(cfg.SubgraphURL)
	itemRepo := repository.NewSubgraphItemRepository(subgraph)
	profileRepo, err := repository.NewCachedProfileRepository(
		repository.NewSubgraphProfileRepository(subgraph),
		cfg.ProfileCacheSize,
	)
	if err != nil {
		logger.Fatal("Failed to create profile cache: %v", err)
	}

	stopCleanup := make(chan struct{})
	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine(5*time.Minute, stopCleanup)
	defer close(stopCleanup)

	wsManager := websocket.NewManager()
	channel := realtime.NewChannel(convRepo, cfg.MessageWindow, cfg.DeliveryRetryBase, cfg.DeliveryRetryMax)

	upgradeUseCase := usecase.NewConversationUpgradeUseCase(convRepo)
	notificationUseCase := usecase.NewNotificationUseCase(notifRepo, itemRepo, wsManager, cfg.FanoutRetryMax)
	chatUseCase := usecase.NewChatUseCase(
		convRepo,
		itemRepo,
		profileRepo,
		upgradeUseCase,
		notificationUseCase,
		channel,
		rateLimiter,
		cfg.MessageWindow,
	)

	handler.Setup(chatUseCase, notificationUseCase, wsManager, cfg.StoreDriver)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(verifier, cfg.IsDevelopment())
	router.Setup(e, authMiddleware, rateLimiter)

	go func() {
		logger.Info("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
}
