package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/last-emo-boy/infra-core/pkg/api/handlers"
	"github.com/last-emo-boy/infra-core/pkg/api/middleware"
	"github.com/last-emo-boy/infra-core/pkg/config"
	"github.com/last-emo-boy/infra-core/pkg/orchestrator"
)

func main() {
	log.Println("🔍 Starting InfraCore Checker...")

	environment := os.Getenv("CHECKER_ENV")
	if environment == "" {
		environment = "development"
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	log.Printf("📋 Environment: %s", environment)

	registry := orchestrator.New(cfg)
	if err := registry.Start(); err != nil {
		log.Fatalf("❌ Failed to start registry: %v", err)
	}

	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"tasks":     registry.GetStatus(),
			"timestamp": time.Now().Unix(),
		})
	})

	taskHandlers := handlers.NewTaskHandlers(registry)
	api := r.Group("/api/v1")
	{
		tasks := api.Group("/tasks")
		{
			tasks.GET("", taskHandlers.ListTasks)
			tasks.GET("/:id", taskHandlers.GetTask)
			tasks.POST("/:id/pause", taskHandlers.PauseTask)
			tasks.POST("/:id/resume", taskHandlers.ResumeTask)
		}
	}

	port := cfg.Admin.Port
	if port == 0 {
		port = 8090
	}

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Admin.Host, port),
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("🚀 Admin API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down checker...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}

	registry.Stop()

	log.Println("✅ Checker shutdown complete")
}
