package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/memberqr/internal/config"
	"github.com/dukerupert/memberqr/internal/database"
	"github.com/dukerupert/memberqr/internal/logging"
	"github.com/dukerupert/memberqr/internal/server"
	"github.com/dukerupert/memberqr/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("error", "text").Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	created, err := store.NewAdminStore(db).EnsureDefault(ctx, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		logger.Error("ensure admin user", "error", err)
		os.Exit(1)
	}
	if created {
		logger.Warn("created default admin user; change its password", "username", cfg.AdminUsername)
	}

	srv, err := server.New(db, cfg, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}
	if !srv.BackupManager().Enabled() {
		logger.Info("backups disabled; set S3 credentials and a backup passphrase to enable")
	}

	if cfg.SeedXLSX != "" {
		seedRoster(ctx, srv, cfg.SeedXLSX, logger)
	}

	stopCleanup := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-stopCleanup:
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("memberqr listening", "addr", httpServer.Addr, "base_url", cfg.BaseURL, "env", cfg.Env)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	close(stopCleanup)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
