package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

// DefaultCancelWindow is how long after creation an owner may cancel.
const DefaultCancelWindow = 24 * time.Hour

// Engine runs the posting lifecycle, the join request workflow and the
// settlement protocol. Every mutating call is one unit of work.
type Engine struct {
	repo         Repository
	ledger       *timebank.Ledger
	cancelWindow time.Duration
	now          func() time.Time
}

type Option func(*Engine)

func WithCancelWindow(d time.Duration) Option {
	return func(e *Engine) { e.cancelWindow = d }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(repo Repository, ledger *timebank.Ledger, opts ...Option) *Engine {
	e := &Engine{
		repo:         repo,
		ledger:       ledger,
		cancelWindow: DefaultCancelWindow,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// inTx runs fn in a unit of work and commits when fn returns nil.
func (e *Engine) inTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := e.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}

	return nil
}
