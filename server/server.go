package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"soundvault/config"
	"soundvault/core/media"
	"soundvault/db"
	"soundvault/kv"
	"soundvault/logger"
	"soundvault/repository"
	"soundvault/storage"
	"soundvault/tracing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogOutputPath,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	})
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TracingEnabled {
		shutdown, err := tracing.InitTracer(cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", logger.ErrorField(err))
		}
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("Error shutting down tracer", logger.ErrorField(err))
			}
		}()
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize blob storage", logger.ErrorField(err))
	}

	store, closeStore, err := newKVStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize KV store", logger.ErrorField(err))
	}
	defer closeStore()

	audioRepo := repository.NewKVAudioRepository(store)
	projectRepo := repository.NewKVProjectRepository(store)
	extractor := media.NewTagExtractor()

	apiHandler := NewAPIHandler(audioRepo, projectRepo, blobs, extractor, cfg)

	router := mux.NewRouter()
	router.Use(corsMiddleware)
	apiHandler.RegisterRoutes(router)

	// Pick up LOG_LEVEL edits without a restart.
	if err := config.Watch(ctx, func(next *config.Config) {
		logger.SetLevel(logger.LogLevel(next.LogLevel))
		logger.Info("Configuration reloaded", logger.String("logLevel", next.LogLevel))
	}); err != nil {
		logger.Warn("Config watcher unavailable", logger.ErrorField(err))
	}

	var handler http.Handler = router
	if cfg.TracingEnabled {
		handler = otelhttp.NewHandler(router, "soundvault-http")
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting",
			logger.String("port", cfg.ServerPort),
			logger.String("blobBackend", cfg.BlobBackend),
			logger.String("kvBackend", cfg.KVBackend),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("Shutting down server")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}

// newBlobStore builds the configured blob backend.
func newBlobStore(cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.BlobBackend {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "minio", "":
		return storage.NewMinioStore(
			cfg.MinioEndpoint,
			cfg.MinioAccessKey,
			cfg.MinioSecretKey,
			cfg.MinioBucket,
			cfg.MinioRegion,
			cfg.MinioUseSSL,
		)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

// newKVStore builds the configured KV backend and returns a close func.
func newKVStore(cfg *config.Config) (kv.Store, func(), error) {
	switch cfg.KVBackend {
	case "memory":
		return kv.NewMemoryStore(), func() {}, nil
	case "mysql":
		gormDB, err := db.ConnectGorm(cfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := kv.NewMySQLStore(gormDB)
		if err != nil {
			db.CloseGorm(gormDB)
			return nil, nil, err
		}
		return store, func() { db.CloseGorm(gormDB) }, nil
	case "redis", "":
		client, err := db.ConnectRedis(cfg)
		if err != nil {
			return nil, nil, err
		}
		return kv.NewRedisStore(client), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown kv backend %q", cfg.KVBackend)
	}
}
