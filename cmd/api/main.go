package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"parlor/api/internal/access"
	"parlor/api/internal/app"
	"parlor/api/internal/cache"
	"parlor/api/internal/config"
	"parlor/api/internal/groups"
	"parlor/api/internal/notify"
	"parlor/api/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	resolver := groups.NewResolver(dataStore, cfg.MissingMemberFallback, logger)
	evaluator := access.NewEvaluator(dataStore, cfg.AccessFailOpen, logger)

	// Optional collaborators stay nil when unconfigured so the service
	// skips them instead of calling dead clients.
	var boardCache app.ListingCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		bc, err := cache.New(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer bc.Close()
		logger.Info("board listing cache enabled")
		boardCache = bc
	}

	var notifyService app.Notifier
	ns := notify.NewService(notify.Config{
		Host:           cfg.SMTPHost,
		Port:           cfg.SMTPPort,
		Username:       cfg.SMTPUsername,
		Password:       cfg.SMTPPassword,
		From:           cfg.SMTPFrom,
		FromName:       cfg.SMTPFromName,
		ModeratorInbox: cfg.ModeratorInbox,
	})
	if ns.IsConfigured() {
		notifyService = ns
	} else {
		logger.Info("moderation notifications disabled")
	}

	service := app.New(cfg, dataStore, resolver, evaluator, boardCache, notifyService, logger)

	if cfg.RepairInterval > 0 {
		go runRepairLoop(ctx, service, cfg.RepairInterval, logger)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("parlor api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func runRepairLoop(ctx context.Context, service *app.Service, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := service.RepairPointers(ctx); err != nil {
				logger.Error("scheduled pointer repair failed", "error", err)
			}
		}
	}
}
