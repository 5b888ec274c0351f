package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrJamesThe3rd/timebank/internal/exchange"
	tbstore "github.com/MrJamesThe3rd/timebank/internal/timebank/store"
)

const uniqueViolation = "23505"

// unitOfWork wraps one database transaction. Ledger writes go through the
// embedded timebank Tx so settlement commits or rolls back with the rest.
type unitOfWork struct {
	*tbstore.Tx
	tx *sql.Tx
}

func newUnitOfWork(tx *sql.Tx) *unitOfWork {
	return &unitOfWork{Tx: tbstore.NewTx(tx), tx: tx}
}

func (u *unitOfWork) Commit() error   { return u.tx.Commit() }
func (u *unitOfWork) Rollback() error { return u.tx.Rollback() }

func (u *unitOfWork) LockService(ctx context.Context, id uuid.UUID) (*exchange.Service, error) {
	return getService(ctx, u.tx, id, true)
}

func (u *unitOfWork) CreateService(ctx context.Context, svc *exchange.Service) error {
	tags, err := encodeTags(svc.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO services (
			owner_id, title, description, category, tags, location, type, status,
			max_participants, provider_confirmed, estimated_duration, deadline, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err = u.tx.QueryRowContext(ctx, query,
		svc.OwnerID,
		svc.Title,
		svc.Description,
		svc.Category,
		tags,
		svc.Location,
		string(svc.Type),
		string(svc.Status),
		svc.MaxParticipants,
		svc.ProviderConfirmed,
		svc.EstimatedDuration,
		svc.Deadline,
	).Scan(&svc.ID, &svc.CreatedAt, &svc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	return nil
}

// UpdateService stores the scalar fields of svc. Participants change only
// through AddParticipant and ConfirmParticipant.
func (u *unitOfWork) UpdateService(ctx context.Context, svc *exchange.Service) error {
	tags, err := encodeTags(svc.Tags)
	if err != nil {
		return err
	}

	query := `
		UPDATE services
		SET title = $1, description = $2, category = $3, tags = $4::jsonb, location = $5,
			status = $6, max_participants = $7, provider_confirmed = $8,
			estimated_duration = $9, deadline = $10, updated_at = NOW()
		WHERE id = $11
		RETURNING updated_at
	`

	err = u.tx.QueryRowContext(ctx, query,
		svc.Title,
		svc.Description,
		svc.Category,
		tags,
		svc.Location,
		string(svc.Status),
		svc.MaxParticipants,
		svc.ProviderConfirmed,
		svc.EstimatedDuration,
		svc.Deadline,
		svc.ID,
	).Scan(&svc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return exchange.ErrNotFound
		}

		return fmt.Errorf("updating service: %w", err)
	}

	return nil
}

// DeleteService removes the service. Participants and join requests go with
// it through ON DELETE CASCADE.
func (u *unitOfWork) DeleteService(ctx context.Context, id uuid.UUID) error {
	res, err := u.tx.ExecContext(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting service: %w", err)
	}

	return expectRow(res, exchange.ErrNotFound)
}

func (u *unitOfWork) AddParticipant(ctx context.Context, serviceID, userID uuid.UUID) error {
	query := `
		INSERT INTO service_participants (service_id, user_id, receipt_confirmed, matched_at)
		VALUES ($1, $2, FALSE, NOW())
	`

	if _, err := u.tx.ExecContext(ctx, query, serviceID, userID); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s already matched", exchange.ErrConflict, userID)
		}

		return fmt.Errorf("adding participant: %w", err)
	}

	return nil
}

func (u *unitOfWork) ConfirmParticipant(ctx context.Context, serviceID, userID uuid.UUID) error {
	query := `
		UPDATE service_participants
		SET receipt_confirmed = TRUE
		WHERE service_id = $1 AND user_id = $2
	`

	res, err := u.tx.ExecContext(ctx, query, serviceID, userID)
	if err != nil {
		return fmt.Errorf("confirming participant: %w", err)
	}

	return expectRow(res, fmt.Errorf("user %s is not a participant", userID))
}

func (u *unitOfWork) LockJoinRequest(ctx context.Context, id uuid.UUID) (*exchange.JoinRequest, error) {
	return getJoinRequest(ctx, u.tx, id, true)
}

func (u *unitOfWork) HasPendingJoinRequest(ctx context.Context, serviceID, requesterID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM join_requests
			WHERE service_id = $1 AND requester_id = $2 AND status = 'pending'
		)
	`

	var exists bool
	if err := u.tx.QueryRowContext(ctx, query, serviceID, requesterID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking pending join request: %w", err)
	}

	return exists, nil
}

func (u *unitOfWork) CreateJoinRequest(ctx context.Context, jr *exchange.JoinRequest) error {
	query := `
		INSERT INTO join_requests (service_id, requester_id, status, message, response, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := u.tx.QueryRowContext(ctx, query,
		jr.ServiceID,
		jr.RequesterID,
		string(jr.Status),
		jr.Message,
		jr.Response,
	).Scan(&jr.ID, &jr.CreatedAt, &jr.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: a pending join request already exists", exchange.ErrConflict)
		}

		return fmt.Errorf("creating join request: %w", err)
	}

	return nil
}

func (u *unitOfWork) UpdateJoinRequest(ctx context.Context, jr *exchange.JoinRequest) error {
	query := `
		UPDATE join_requests
		SET status = $1, message = $2, response = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`

	err := u.tx.QueryRowContext(ctx, query, string(jr.Status), jr.Message, jr.Response, jr.ID).
		Scan(&jr.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return exchange.ErrNotFound
		}

		return fmt.Errorf("updating join request: %w", err)
	}

	return nil
}

func (u *unitOfWork) RejectPendingJoinRequests(ctx context.Context, serviceID uuid.UUID, response string) error {
	query := `
		UPDATE join_requests
		SET status = 'rejected', response = $1, updated_at = NOW()
		WHERE service_id = $2 AND status = 'pending'
	`

	if _, err := u.tx.ExecContext(ctx, query, response, serviceID); err != nil {
		return fmt.Errorf("rejecting pending join requests: %w", err)
	}

	return nil
}

func (u *unitOfWork) LockTransaction(ctx context.Context, id uuid.UUID) (*exchange.Transaction, error) {
	return getTransaction(ctx, u.tx, id, true)
}

func (u *unitOfWork) LockServiceTransactions(ctx context.Context, serviceID uuid.UUID) ([]*exchange.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + `
		FROM transactions
		WHERE service_id = $1
		ORDER BY created_at, id
		FOR UPDATE`

	return listTransactions(ctx, u.tx, query, serviceID)
}

func (u *unitOfWork) CreateTransaction(ctx context.Context, t *exchange.Transaction) error {
	query := `
		INSERT INTO transactions (
			service_id, provider_id, requester_id, hours, status,
			provider_confirmed, requester_confirmed, completion_notes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := u.tx.QueryRowContext(ctx, query,
		t.ServiceID,
		t.ProviderID,
		t.RequesterID,
		t.Hours,
		string(t.Status),
		t.ProviderConfirmed,
		t.RequesterConfirmed,
		t.CompletionNotes,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating transaction: %w", err)
	}

	return nil
}

func (u *unitOfWork) UpdateTransaction(ctx context.Context, t *exchange.Transaction) error {
	query := `
		UPDATE transactions
		SET status = $1, provider_confirmed = $2, requester_confirmed = $3,
			completion_notes = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`

	err := u.tx.QueryRowContext(ctx, query,
		string(t.Status),
		t.ProviderConfirmed,
		t.RequesterConfirmed,
		t.CompletionNotes,
		t.ID,
	).Scan(&t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return exchange.ErrNotFound
		}

		return fmt.Errorf("updating transaction: %w", err)
	}

	return nil
}

// CompleteTransaction flips a pending transaction to completed and reports
// whether this call did it.
func (u *unitOfWork) CompleteTransaction(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE transactions
		SET status = 'completed', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	res, err := u.tx.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("completing transaction: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("completing transaction: %w", err)
	}

	return n == 1, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}

	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}

	return string(b), nil
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}

	if n == 0 {
		return notFound
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
