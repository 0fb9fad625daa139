package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inventory-detection-service/config"
	"inventory-detection-service/detector"
	"inventory-detection-service/handlers"
	"inventory-detection-service/metrics"
	"inventory-detection-service/middleware"
	"inventory-detection-service/opencv"
	"inventory-detection-service/stubdetect"
	"inventory-detection-service/vision"
	"inventory-detection-service/yolo"
)

func main() {
	// Load configuration
	cfg := config.Load()

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	log.Infof("Starting %s, backend: %s", handlers.ServiceName, cfg.Backend)

	// Construct the detection backend once; it is passed by handle into
	// the request path. A failed load leaves it not-ready rather than
	// crashing, and /health reports the degraded state.
	det := newDetector(cfg)
	defer det.Close()

	metrics.Register()

	// Initialize handlers
	h := handlers.New(cfg, det)

	// Setup HTTP server
	router := gin.Default()
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.RequestID())

	router.GET("/health", h.Health)
	router.GET("/version", h.Version)
	router.GET("/classes", h.Classes)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limited := router.Group("/")
	limited.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	{
		limited.POST("/detect", h.Detect)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start HTTP server in a goroutine
	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}

// newDetector selects the backend from configuration.
func newDetector(cfg *config.Config) detector.Detector {
	switch cfg.Backend {
	case "onnx":
		return yolo.New(cfg)
	case "opencv":
		return opencv.New(cfg)
	case "stub":
		return stubdetect.New(cfg.MaxImageSize)
	case "vision":
		return vision.New(cfg)
	default:
		log.Warnf("Unknown backend %q, falling back to vision", cfg.Backend)
		return vision.New(cfg)
	}
}
