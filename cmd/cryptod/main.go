package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"freecord/internal/config"
	"freecord/internal/crypto"
	"freecord/internal/handlers"
	"freecord/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadKeyService()
	logger.SetGlobalLogger(logger.New(cfg.Log.Mode))
	defer logger.GlobalLogger.Sync()

	if cfg.Log.Mode == logger.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), handlers.LoggingMiddleware(logger.L()))
	crypto.NewKeyService(cfg.MasterSecret).RegisterRoutes(r)

	server := &http.Server{
		Addr:              cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("🔐 Key service listening on %s", cfg.Port)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Key service shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error: %v", err)
	}
}
