package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Avanquish/DoughNation-sub000/internal/config"
	"github.com/Avanquish/DoughNation-sub000/internal/httpserver"
	"github.com/Avanquish/DoughNation-sub000/internal/metrics"
	"github.com/Avanquish/DoughNation-sub000/internal/security"
	"github.com/Avanquish/DoughNation-sub000/internal/service"
	"github.com/Avanquish/DoughNation-sub000/internal/transport"
	"github.com/Avanquish/DoughNation-sub000/internal/ws"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	self, err := security.IdentityFromToken(cfg.AccessToken)
	if err != nil {
		log.Error("ACCESS_TOKEN carries no usable identity", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	client := transport.New(cfg.BackendURL, cfg.AccessToken, transport.Options{
		Timeout: cfg.RequestTimeout,
		RPS:     cfg.BackendRPS,
		Burst:   cfg.BackendBurst,
		Metrics: m,
	})

	session := service.NewSession(self, client, service.Options{
		ChatsInterval:     cfg.ChatsPollInterval,
		HistoryInterval:   cfg.HistoryPollInterval,
		InventoryInterval: cfg.InventoryPollInterval,
		PageSize:          cfg.PageSize,
		Logger:            log,
		Metrics:           m,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := ws.NewHub(log)
	eventsCh, unsubscribe := session.Bus().Subscribe(256)
	go hub.Run(ctx, eventsCh)

	session.Start()

	srv := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: httpserver.NewRouter(session, hub, httpserver.Options{
			CORSOrigins: cfg.CORSOrigins,
			Metrics:     m,
			Logger:      log,
		}),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("starting sync daemon", "addr", cfg.HTTPAddr(), "user_id", self.UserID, "role", self.Role)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", "error", err)
	}
	session.Close()
	unsubscribe()
	cancel()
}
