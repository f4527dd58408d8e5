package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Avanquish/DoughNation-sub000/internal/backend"
	"github.com/Avanquish/DoughNation-sub000/internal/config"
	"github.com/Avanquish/DoughNation-sub000/internal/domain"
	"github.com/Avanquish/DoughNation-sub000/internal/security"
	"github.com/Avanquish/DoughNation-sub000/internal/store/postgres"
	"github.com/Avanquish/DoughNation-sub000/internal/store/sqlite"
)

type repositories struct {
	users     domain.UserRepository
	messages  domain.MessageRepository
	inventory domain.InventoryRepository
}

func openStore(cfg *config.BackendConfig) (*sql.DB, repositories, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, repositories{}, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, repositories{}, err
		}
		return db, repositories{
			users:     postgres.NewUserRepo(db),
			messages:  postgres.NewMessageRepo(db),
			inventory: postgres.NewInventoryRepo(db),
		}, nil
	default:
		db, err := sqlite.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, repositories{}, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, repositories{}, err
		}
		return db, repositories{
			users:     sqlite.NewUserRepo(db),
			messages:  sqlite.NewMessageRepo(db),
			inventory: sqlite.NewInventoryRepo(db),
		}, nil
	}
}

func main() {
	cfg, err := config.LoadBackend()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	db, repos, err := openStore(cfg)
	if err != nil {
		log.Error("failed to open database", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyEncryptionKeys)
	if err != nil {
		log.Error("failed to initialize encryptor", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Error("failed to create upload dir", "dir", cfg.UploadDir, "error", err)
		os.Exit(1)
	}
	tokens := security.NewTokenService(cfg.JWTSecret, 24*time.Hour)

	svc := backend.NewService(repos.users, repos.messages, repos.inventory, encryptor, log)

	srv := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: backend.NewRouter(svc, tokens, backend.Options{
			CORSOrigins: cfg.CORSOrigins,
			Logger:      log,
			UploadDir:   cfg.UploadDir,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting backend", "app", cfg.AppName, "env", cfg.Env, "addr", cfg.HTTPAddr(), "driver", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down backend")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown failed", "error", err)
	}
}
