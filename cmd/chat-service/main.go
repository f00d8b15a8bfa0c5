package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"caixinha-backend/internal/config"
	"caixinha-backend/internal/database"
	chatHandler "caixinha-backend/internal/handler/http/chat"
	wsHandler "caixinha-backend/internal/handler/ws"
	"caixinha-backend/internal/llm"
	"caixinha-backend/internal/middleware"
	fsRepo "caixinha-backend/internal/repository/firestore"
	redisRepo "caixinha-backend/internal/repository/redis"
	agentService "caixinha-backend/internal/service/agent"
	chatService "caixinha-backend/internal/service/chat"
	supportService "caixinha-backend/internal/service/support"
	"caixinha-backend/pkg/logger"
	"caixinha-backend/pkg/metrics"
	"caixinha-backend/pkg/push"
)

func main() {
	// 1. Load configuration and logger
	cfg := config.Load()
	if err := logger.Init(&logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	// 2. Connect to Firebase (Firestore, Auth, Messaging)
	fb, err := database.NewFirebase(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize firebase", zap.Error(err))
	}
	defer fb.Close()
	logger.Info("connected to firestore", zap.String("project", cfg.FirebaseProjectID))
	if fb.Messaging == nil {
		logger.Warn("messaging client unavailable, push notifications disabled")
	}

	// 3. Connect to Redis (pub/sub fanout and presence)
	redisClient, err := database.NewRedisClient(&database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("connected to redis", zap.String("host", cfg.RedisHost))

	// 4. Initialize repositories
	conversationRepo := fsRepo.NewConversationRepository(fb.Firestore)
	legacyRepo := fsRepo.NewLegacyMessageRepository(fb.Firestore)
	userRepo := fsRepo.NewUserRepository(fb.Firestore)
	ticketRepo := fsRepo.NewTicketRepository(fb.Firestore)
	presenceRepo := redisRepo.NewPresenceRepository(redisClient)

	// 5. Initialize metrics
	appMetrics := metrics.NewMetrics("chat-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 6. Initialize services
	pushProvider := push.NewFCMProvider(fb.Messaging)
	publisher := &chatService.RedisAdapter{Client: redisClient}
	chatSvc := chatService.NewService(
		conversationRepo,
		legacyRepo,
		userRepo,
		publisher,
		presenceRepo,
		pushProvider,
		appMetrics,
		cfg.AgentUserID,
	)
	supportSvc := supportService.NewService(ticketRepo, appMetrics)

	var completions llm.Client
	if cfg.LLMAPIKey != "" {
		completions, err = llm.NewClient(llm.Provider(cfg.LLMProvider), cfg.LLMAPIKey)
		if err != nil {
			logger.Fatal("failed to initialize completion provider", zap.Error(err))
		}
		logger.Info("completion provider ready", zap.String("provider", completions.Name()))
	} else {
		logger.Warn("no completion provider configured, assistant uses canned responses only")
	}

	agentSvc := agentService.NewService(
		&agentService.ChatAdapter{Chat: chatSvc},
		userRepo,
		&agentService.SupportAdapter{Support: supportSvc},
		completions,
		appMetrics,
		cfg.AgentUserID,
		cfg.AgentHistoryLimit,
		cfg.ProviderTimeout,
	)
	if cfg.LLMModel != "" {
		agentSvc.SetModel(cfg.LLMModel)
	}

	// 7. Initialize handlers
	chatHdlr := chatHandler.NewHandler(chatSvc, agentSvc)
	chatHub := wsHandler.NewChatHub(redisClient, chatSvc, presenceRepo, appMetrics)

	// 8. Setup Gin router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))
	router.Use(prometheusMiddleware.Handler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "chat-service",
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler())

	// 9. Authenticated routes
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(fb.Auth))
	{
		chatHdlr.RegisterRoutes(v1)
		v1.GET("/ws/chat", chatHub.ServeWS)
	}

	// 10. Start server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.Info("chat service starting", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// 11. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
