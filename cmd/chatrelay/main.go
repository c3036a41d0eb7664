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
	"golang.org/x/sync/errgroup"

	"github.com/chatrelay/chatrelay/internal/common/config"
	"github.com/chatrelay/chatrelay/internal/common/httpmw"
	"github.com/chatrelay/chatrelay/internal/common/logger"
	"github.com/chatrelay/chatrelay/internal/message"
	"github.com/chatrelay/chatrelay/internal/queue"
	"github.com/chatrelay/chatrelay/internal/relay/api"
	"github.com/chatrelay/chatrelay/internal/relay/service"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting chatrelay service...")

	// 3. Create context cancelled on shutdown signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Start the broker publisher. Connection runs in the background with
	// a flat retry delay so request handling never waits on the broker.
	publisher := queue.NewPublisher(cfg.Broker, log)
	go publisher.Connect(ctx)
	defer publisher.Close()

	// 5. Correlation store, with optional TTL-based eviction
	store := message.NewStore(cfg.Store.TTL, log)
	if cfg.Store.TTL > 0 {
		go store.Janitor(ctx, cfg.Store.SweepInterval)
		log.Info("Store eviction enabled",
			zap.Duration("ttl", cfg.Store.TTL),
			zap.Duration("sweep_interval", cfg.Store.SweepInterval),
		)
	} else {
		log.Info("Store eviction disabled, entries kept for process lifetime")
	}

	// 6. Relay service
	svc := service.NewService(store, publisher, cfg.BaseURL(), log)

	// 7. Setup HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		httpmw.RequestID(),
		httpmw.RequestLogger(log, "chatrelay"),
		httpmw.Recovery(log),
		httpmw.CORS(),
		httpmw.Metrics(),
	)
	router.MaxMultipartMemory = service.MaxImageSize

	api.SetupRoutes(router, svc, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// 8. Serve until signalled, then shut down gracefully
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server listening",
			zap.String("addr", server.Addr),
			zap.String("webhook_base", cfg.BaseURL()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		log.Info("Shutting down chatrelay service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server error", zap.Error(err))
		os.Exit(1)
	}

	log.Info("chatrelay service stopped")
}
