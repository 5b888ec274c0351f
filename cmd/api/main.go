package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/timebank/internal/app"
	"github.com/MrJamesThe3rd/timebank/internal/config"
	timebankHttp "github.com/MrJamesThe3rd/timebank/internal/http"
	analyticsHandler "github.com/MrJamesThe3rd/timebank/internal/http/analytics"
	"github.com/MrJamesThe3rd/timebank/internal/http/auth"
	exchangeHandler "github.com/MrJamesThe3rd/timebank/internal/http/exchange"
	ledgerHandler "github.com/MrJamesThe3rd/timebank/internal/http/timebank"
)

// expireInterval is how often postings past their deadline are expired.
const expireInterval = time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Auth.JWTSecret == "" {
		slog.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	router := timebankHttp.New(
		timebankHttp.Options{
			Auth:           auth.New(cfg.Auth.JWTSecret),
			AllowedOrigins: cfg.Auth.CORSOrigins,
			Timeout:        cfg.Server.Timeout,
		},
		exchangeHandler.NewHandler(a.Engine),
		ledgerHandler.NewHandler(a.TimeBank),
		analyticsHandler.NewHandler(a.Analytics),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go expireLoop(ctx, a)

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()

	slog.Info("starting server", "app", cfg.App.Name, "addr", srv.Addr, "store", cfg.Store.Driver)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func expireLoop(ctx context.Context, a *app.App) {
	ticker := time.NewTicker(expireInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired, err := a.Engine.ExpireDue(ctx, now)
			if err != nil {
				slog.Error("expiring services", "error", err)
				continue
			}

			if len(expired) > 0 {
				slog.Info("expired services", "count", len(expired))
			}
		}
	}
}
