package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sentinelshield/realtime/api/handlers"
	"github.com/sentinelshield/realtime/internal/config"
	"github.com/sentinelshield/realtime/internal/db"
	"github.com/sentinelshield/realtime/internal/gateway"
	"github.com/sentinelshield/realtime/internal/logger"
	"github.com/sentinelshield/realtime/internal/repository"
)

func main() {
	log := logger.New(os.Getenv("GATEWAY_DEBUG") != "")
	defer log.Sync()

	var cfg config.Gateway
	if err := config.Parse(&cfg); err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	// Ensure the data directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		log.Fatal("failed to create database directory", zap.Error(err))
	}

	// Initialize database
	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.CloseDB()

	// Initialize repository and realtime hub
	eventRepo := repository.NewThreatEventRepository(database)
	hub := gateway.NewHub(log)
	defer hub.Close()

	auth := gateway.NewTokenAuthority([]byte(cfg.JWTSecret), cfg.TokenTTL)
	stream := gateway.NewHandler(hub, auth, cfg.HeartbeatInterval, log)

	// Initialize handlers
	threatHandler := handlers.NewThreatHandler(eventRepo, hub, log)
	adminHandler := handlers.NewAdminHandler(hub, log)
	wsHandler := handlers.NewWebSocketHandler(stream)

	// Initialize Gin router
	r := gin.Default()

	// Enable CORS for development
	r.Use(corsMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// API routes
	api := r.Group("/api/v1")
	{
		// WebSocket connect authenticates via its token query parameter.
		wsHandler.RegisterRoutes(api)

		// REST routes authenticate via bearer tokens.
		authed := api.Group("", handlers.RequireToken(auth))
		threatHandler.RegisterRoutes(authed)
		adminHandler.RegisterRoutes(authed)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down gateway")
		hub.Close()
		db.CloseDB()
		os.Exit(0)
	}()

	// Start server
	log.Info("starting gateway", zap.String("addr", cfg.Addr))
	if err := r.Run(cfg.Addr); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
