// Package app assembles the services for the configured store driver.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/MrJamesThe3rd/timebank/internal/analytics"
	"github.com/MrJamesThe3rd/timebank/internal/config"
	"github.com/MrJamesThe3rd/timebank/internal/database"
	"github.com/MrJamesThe3rd/timebank/internal/exchange"
	exchangeStore "github.com/MrJamesThe3rd/timebank/internal/exchange/store"
	"github.com/MrJamesThe3rd/timebank/internal/memstore"
	"github.com/MrJamesThe3rd/timebank/internal/timebank"
	timebankStore "github.com/MrJamesThe3rd/timebank/internal/timebank/store"
)

type App struct {
	Engine    *exchange.Engine
	TimeBank  *timebank.Service
	Analytics *analytics.Service

	db *sql.DB
}

// New opens the store and migrates it when it is Postgres.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	var (
		exchangeRepo exchange.Repository
		ledgerRepo   timebank.Repository
		failures     analytics.FailureReader
		db           *sql.DB
	)

	switch cfg.Store.Driver {
	case config.DriverMemory:
		slog.Warn("using in-memory store, data is lost on exit")

		store := memstore.New()
		exchangeRepo, ledgerRepo, failures = store, store, store
	default:
		var err error

		db, err = database.New(cfg.ConnectionString())
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}

		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}

		tb := timebankStore.New(db)
		exchangeRepo, ledgerRepo, failures = exchangeStore.New(db), tb, tb
	}

	ledger := timebank.NewLedger(cfg.TimeBank.MaxBalance)

	return &App{
		Engine:    exchange.NewEngine(exchangeRepo, ledger, exchange.WithCancelWindow(cfg.TimeBank.CancelWindow)),
		TimeBank:  timebank.NewService(ledgerRepo, cfg.TimeBank.StartingBalance, timebank.WithMaxBalance(cfg.TimeBank.MaxBalance)),
		Analytics: analytics.NewService(exchangeRepo, failures),
		db:        db,
	}, nil
}

func (a *App) Close() error {
	if a.db == nil {
		return nil
	}

	return a.db.Close()
}
