package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"freecord/internal/auth"
	"freecord/internal/config"
	"freecord/internal/crypto"
	"freecord/internal/database"
	"freecord/internal/handlers"
	"freecord/internal/metrics"
	"freecord/internal/redis"
	"freecord/internal/services"
	"freecord/internal/websocket"
	"freecord/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.SetGlobalLogger(logger.New(cfg.Log.Mode))
	defer logger.GlobalLogger.Sync()

	// Initialize database
	db, err := database.NewPostgresDB(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to migrate database: %v", err)
		}
	}

	// Status records go to Postgres, and to Redis when configured
	statusRecorders := websocket.StatusRecorders{db}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(cfg.Redis)
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("Failed to connect to redis: %v", err)
		}
		statusRecorders = append(statusRecorders, redis.NewStatusStore(rdb))
		logger.Info("Mirroring user status to redis at %s", cfg.Redis.Addr)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize services
	authService := auth.NewService(db, cfg)
	cryptoClient := crypto.NewClient(cfg.Crypto.URL, cfg.Crypto.Timeout, m)

	// Initialize WebSocket core
	hub := websocket.NewHub(websocket.NewRegistry(), websocket.NewPresence(), m)
	router := websocket.NewRouter(hub, authService, cryptoClient, db, statusRecorders, m)
	messageService := services.NewMessageService(db, cryptoClient, authService, hub)

	// Initialize handlers
	wsHandlers := handlers.NewWebSocketHandlers(router, handlers.NewOriginPolicy(cfg.Server.AllowedOrigins))
	messageHandlers := handlers.NewMessageHandlers(messageService)

	// Setup routes
	if cfg.Log.Mode == logger.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), handlers.LoggingMiddleware(logger.L()), handlers.CORSMiddleware())
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	handlers.SetupRoutes(r, authService, wsHandlers, messageHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("🚀 Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("📡 WebSocket endpoints: ws://localhost%s/ws/{channel_id}, ws://localhost%s/ws/dm/{conversation_id}", cfg.Server.Port, cfg.Server.Port)
	printAPIEndpoints()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error: %v", err)
	}
}

func printAPIEndpoints() {
	logger.Info("🔗 API endpoints:")
	logger.Info("   GET    /api/{channels|conversations}/{id}/messages")
	logger.Info("   GET    /api/{channels|conversations}/{id}/messages/search?q=")
	logger.Info("   PUT    /api/{channels|conversations}/{id}/messages/{message_id}")
	logger.Info("   DELETE /api/{channels|conversations}/{id}/messages/{message_id}")
	logger.Info("   POST   /api/{channels|conversations}/{id}/messages/{message_id}/reactions?emoji=")
	logger.Info("   POST   /api/{channels|conversations}/{id}/messages/{message_id}/pin")
	logger.Info("   DELETE /api/{channels|conversations}/{id}/messages/{message_id}/pin")
	logger.Info("   GET    /metrics")
}
