package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const selectAccountColumns = `user_id, balance, created_at, updated_at`

func scanAccount(s scanner) (*timebank.Account, error) {
	var acc timebank.Account
	if err := s.Scan(&acc.UserID, &acc.Balance, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		return nil, err
	}

	return &acc, nil
}

const selectEntryColumns = `id, user_id, amount, description, service_id, created_at`

func scanEntry(s scanner) (*timebank.Entry, error) {
	var e timebank.Entry
	if err := s.Scan(&e.ID, &e.UserID, &e.Amount, &e.Description, &e.ServiceID, &e.CreatedAt); err != nil {
		return nil, err
	}

	return &e, nil
}

const selectFailureColumns = `
	id, user_id, amount, description, reason, balance_at_failure,
	service_id, error_message, created_at
`

func scanFailure(s scanner) (*timebank.Failure, error) {
	var (
		f      timebank.Failure
		reason string
	)

	if err := s.Scan(
		&f.ID, &f.UserID, &f.Amount, &f.Description, &reason, &f.BalanceAtFailure,
		&f.ServiceID, &f.ErrorMessage, &f.CreatedAt,
	); err != nil {
		return nil, err
	}

	f.Reason = timebank.FailureReason(reason)

	return &f, nil
}

func (s *Store) GetAccount(ctx context.Context, userID uuid.UUID) (*timebank.Account, error) {
	query := `SELECT ` + selectAccountColumns + ` FROM accounts WHERE user_id = $1`

	acc, err := scanAccount(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, timebank.ErrAccountNotFound
		}

		return nil, fmt.Errorf("getting account: %w", err)
	}

	return acc, nil
}

// CreateAccount inserts the account and its opening entry atomically.
func (s *Store) CreateAccount(ctx context.Context, acc *timebank.Account, opening *timebank.Entry) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := `
		INSERT INTO accounts (user_id, balance, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err = dbTx.QueryRowContext(ctx, query, acc.UserID, acc.Balance).Scan(&acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return timebank.ErrAccountExists
		}

		return fmt.Errorf("creating account: %w", err)
	}

	if opening != nil {
		if err := insertEntry(ctx, dbTx, opening); err != nil {
			return err
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *Store) ListEntries(ctx context.Context, filter timebank.EntryFilter) ([]*timebank.Entry, error) {
	query := `SELECT ` + selectEntryColumns + ` FROM timebank_transactions WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)

		args = append(args, *filter.UserID)
		argIdx++
	}

	if filter.ServiceID != nil {
		query += fmt.Sprintf(" AND service_id = $%d", argIdx)

		args = append(args, *filter.ServiceID)
		argIdx++
	}

	query += " ORDER BY created_at DESC, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)

		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var entries []*timebank.Entry

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}

	return entries, nil
}

func (s *Store) ListFailures(ctx context.Context, filter timebank.FailureFilter) ([]*timebank.Failure, error) {
	query := `SELECT ` + selectFailureColumns + ` FROM failed_transactions WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)

		args = append(args, *filter.UserID)
		argIdx++
	}

	if filter.Reason != nil {
		query += fmt.Sprintf(" AND reason = $%d", argIdx)

		args = append(args, *filter.Reason)
		argIdx++
	}

	query += " ORDER BY created_at DESC, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)

		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing failures: %w", err)
	}
	defer rows.Close()

	var failures []*timebank.Failure

	for rows.Next() {
		f, err := scanFailure(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning failure: %w", err)
		}

		failures = append(failures, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating failures: %w", err)
	}

	return failures, nil
}

func insertEntry(ctx context.Context, q querier, e *timebank.Entry) error {
	query := `
		INSERT INTO timebank_transactions (user_id, amount, description, service_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`

	err := q.QueryRowContext(ctx, query, e.UserID, e.Amount, e.Description, e.ServiceID).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending entry: %w", err)
	}

	return nil
}

// Tx is the ledger's view of an open database transaction. The exchange
// store embeds it so settlement runs in the caller's unit of work.
type Tx struct {
	tx *sql.Tx
}

func NewTx(tx *sql.Tx) *Tx {
	return &Tx{tx: tx}
}

func (t *Tx) LockAccount(ctx context.Context, userID uuid.UUID) (*timebank.Account, error) {
	query := `SELECT ` + selectAccountColumns + ` FROM accounts WHERE user_id = $1 FOR UPDATE`

	acc, err := scanAccount(t.tx.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, timebank.ErrAccountNotFound
		}

		return nil, fmt.Errorf("locking account: %w", err)
	}

	return acc, nil
}

func (t *Tx) UpdateBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error {
	query := `UPDATE accounts SET balance = $1, updated_at = NOW() WHERE user_id = $2`

	res, err := t.tx.ExecContext(ctx, query, balance, userID)
	if err != nil {
		return fmt.Errorf("updating balance: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating balance: %w", err)
	}

	if n == 0 {
		return timebank.ErrAccountNotFound
	}

	return nil
}

func (t *Tx) AppendEntry(ctx context.Context, e *timebank.Entry) error {
	return insertEntry(ctx, t.tx, e)
}

func (t *Tx) AppendFailure(ctx context.Context, f *timebank.Failure) error {
	query := `
		INSERT INTO failed_transactions
			(user_id, amount, description, reason, balance_at_failure, service_id, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at
	`

	err := t.tx.QueryRowContext(ctx, query,
		f.UserID,
		f.Amount,
		f.Description,
		f.Reason,
		f.BalanceAtFailure,
		f.ServiceID,
		f.ErrorMessage,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording failed transaction: %w", err)
	}

	return nil
}
