package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"prizedraw/internal/config"
	"prizedraw/internal/handlers"
	"prizedraw/internal/services"
	"prizedraw/internal/storage"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Without a log file, info and warnings go to the console.
	var logOut io.Writer = io.Discard
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	defer logger.Init("prizedraw", cfg.Verbose || cfg.LogFile == "", false, logOut).Close()
	for _, w := range cfg.Warnings {
		logger.Warningf("config: %s", w)
	}

	if err := run(cfg); err != nil {
		logger.Errorf("prizedraw: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open durable storage
	kv, err := openKV(ctx, cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	// 3. Rehydrate the store and build the engine
	store, err := services.Open(ctx, kv, services.WithKey(cfg.StateKey))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	src, err := services.NewRandomSource()
	if err != nil {
		return fmt.Errorf("seed random source: %w", err)
	}
	engine := services.NewEngine(store, src)

	// 4. Live feed for the event screen
	hub := handlers.NewHub()
	go hub.Run(ctx)
	unsubscribe := store.Subscribe(hub.Observe(engine))
	defer unsubscribe()
	go hub.Roll(ctx, store, engine, cfg.RollInterval)

	// 5. Set up the Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger())
	handlers.NewHTTPHandler(store, engine, hub).RegisterRoutes(r)

	// 6. Run the server until a signal arrives
	srv := &http.Server{Addr: cfg.Addr(), Handler: r}
	errc := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on http://localhost%s (%s storage)", cfg.Addr(), cfg.StorageDriver)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := engine.Cancel(); err == nil {
		logger.Warning("Pending draw discarded at shutdown")
	}
	return nil
}

func openKV(ctx context.Context, cfg *config.Config) (storage.KV, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		logger.Warning("Using in-memory storage; nothing survives a restart")
		return storage.NewMemory(), nil
	case config.DriverPostgres:
		pg, err := storage.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return pg, nil
	default:
		db, err := storage.OpenSQLite(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.StoragePath, err)
		}
		return db, nil
	}
}
