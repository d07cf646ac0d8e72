package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ocellus/visionpipe/internal/config"
	"github.com/ocellus/visionpipe/internal/logger"
	"github.com/ocellus/visionpipe/internal/pipeline"
	"github.com/ocellus/visionpipe/internal/registry"
	"github.com/ocellus/visionpipe/internal/server"
	"github.com/ocellus/visionpipe/internal/source"
	"github.com/ocellus/visionpipe/internal/vision"
	"github.com/ocellus/visionpipe/pkg/version"
)

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "configs/default.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	// Show version and exit if requested
	if showVersion {
		fmt.Println(version.GetInfo().String())
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logrusLog, err := logger.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewLogrusAdapter(logrus.NewEntry(logrusLog))

	// Log startup information
	log.WithField("version", version.GetInfo().Short()).Info("Starting Visionpipe frame processing server")
	log.WithField("config_path", configPath).Debug("Configuration loaded")

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addresses[0],
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	log.Info("Connected to Redis successfully")

	// Verify Redis is writable
	testKey := "visionpipe:startup:test"
	if err := redisClient.Set(ctx, testKey, "1", 0).Err(); err != nil {
		log.WithError(err).Fatal("Redis is not writable")
	}
	redisClient.Del(ctx, testKey)

	// Start metrics server if enabled
	if cfg.Metrics.Enabled {
		go startMetricsServer(cfg.Metrics, log)
	}

	// Pipeline registry
	var reg registry.Registry
	if cfg.Registry.Enabled {
		reg = registry.NewRedisRegistry(redisClient, logrusLog, cfg.Registry.TTL)
	}

	// Vision manager
	manager := vision.NewManager(cfg.Pipeline, reg, log)
	manager.Start()

	// Boot-time pipelines from config
	if err := startConfiguredPipelines(ctx, manager, cfg, log); err != nil {
		log.WithError(err).Fatal("Failed to start configured pipelines")
	}

	// Create server and wire the pipeline API
	srv := server.New(&cfg.Server, logrusLog, redisClient)
	srv.RegisterPipelineAPI(manager)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	// Start server
	if err := srv.Start(ctx); err != nil {
		log.WithError(err).Fatal("Server error")
	}

	// Cleanup
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	manager.Shutdown(shutdownCtx)

	if err := redisClient.Close(); err != nil {
		log.WithError(err).Error("Failed to close Redis connection")
	}

	log.Info("Server shutdown complete")
}

// startConfiguredPipelines creates the pipelines declared in the sources
// section, so a bare deployment has something to look at.
func startConfiguredPipelines(ctx context.Context, manager *vision.Manager, cfg *config.Config, log logger.Logger) error {
	pattern := cfg.Sources.Pattern
	if !pattern.Enabled {
		return nil
	}

	format, err := pipeline.ParsePixelFormat(pattern.PixelFormat)
	if err != nil {
		return err
	}

	src, err := source.NewPattern(source.PatternConfig{
		Width:       pattern.Width,
		Height:      pattern.Height,
		FrameRate:   pattern.FrameRate,
		PixelFormat: format,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	p, err := manager.Create(ctx, vision.CreateOptions{
		Detector:  pattern.Detector,
		Source:    src,
		Width:     pattern.Width,
		Height:    pattern.Height,
		FrameRate: pattern.FrameRate,
	})
	if err != nil {
		return err
	}

	log.WithField("pipeline_id", p.ID).Info("Configured pattern pipeline started")
	return nil
}

// startMetricsServer starts the Prometheus metrics server
func startMetricsServer(cfg config.MetricsConfig, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.WithField("addr", addr).Info("Starting metrics server")

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("Metrics server error")
	}
}
