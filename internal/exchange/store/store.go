package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/timebank/internal/exchange"
)

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

const selectServiceColumns = `
	id, owner_id, title, description, category, tags, location, type, status,
	max_participants, provider_confirmed, estimated_duration, deadline, created_at, updated_at
`

// scanService reads a service row without its participants; see loadParticipants.
func scanService(s scanner) (*exchange.Service, error) {
	var (
		svc         exchange.Service
		tags        []byte
		typ, status string
	)

	if err := s.Scan(
		&svc.ID, &svc.OwnerID, &svc.Title, &svc.Description, &svc.Category, &tags, &svc.Location,
		&typ, &status, &svc.MaxParticipants, &svc.ProviderConfirmed, &svc.EstimatedDuration,
		&svc.Deadline, &svc.CreatedAt, &svc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(tags, &svc.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}

	svc.Type = exchange.ServiceType(typ)
	svc.Status = exchange.ServiceStatus(status)

	return &svc, nil
}

const selectJoinRequestColumns = `
	id, service_id, requester_id, status, message, response, created_at, updated_at
`

func scanJoinRequest(s scanner) (*exchange.JoinRequest, error) {
	var (
		jr     exchange.JoinRequest
		status string
	)

	if err := s.Scan(
		&jr.ID, &jr.ServiceID, &jr.RequesterID, &status, &jr.Message, &jr.Response,
		&jr.CreatedAt, &jr.UpdatedAt,
	); err != nil {
		return nil, err
	}

	jr.Status = exchange.JoinRequestStatus(status)

	return &jr, nil
}

const selectTransactionColumns = `
	id, service_id, provider_id, requester_id, hours, status,
	provider_confirmed, requester_confirmed, completion_notes, created_at, updated_at
`

func scanTransaction(s scanner) (*exchange.Transaction, error) {
	var (
		t      exchange.Transaction
		status string
	)

	if err := s.Scan(
		&t.ID, &t.ServiceID, &t.ProviderID, &t.RequesterID, &t.Hours, &status,
		&t.ProviderConfirmed, &t.RequesterConfirmed, &t.CompletionNotes, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	t.Status = exchange.TransactionStatus(status)

	return &t, nil
}

// conditions accumulates AND clauses with positional arguments.
type conditions struct {
	clauses []string
	args    []any
}

// add appends clause, replacing every ? with the next placeholder.
func (c *conditions) add(clause string, arg any) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(c.args))))
}

// in appends "column IN (...)" for the given values.
func (c *conditions) in(column string, values []any) {
	placeholders := make([]string, len(values))
	for i, v := range values {
		c.args = append(c.args, v)
		placeholders[i] = fmt.Sprintf("$%d", len(c.args))
	}

	c.clauses = append(c.clauses, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}

	return " WHERE " + strings.Join(c.clauses, " AND ")
}

func (s *Store) GetService(ctx context.Context, id uuid.UUID) (*exchange.Service, error) {
	return getService(ctx, s.db, id, false)
}

func getService(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*exchange.Service, error) {
	query := `SELECT ` + selectServiceColumns + ` FROM services WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	svc, err := scanService(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, exchange.ErrNotFound
		}

		return nil, fmt.Errorf("getting service: %w", err)
	}

	if err := loadParticipants(ctx, q, svc); err != nil {
		return nil, err
	}

	return svc, nil
}

func (s *Store) ListServices(ctx context.Context, filter exchange.ServiceFilter) ([]*exchange.Service, error) {
	var c conditions

	if filter.OwnerID != nil {
		c.add("owner_id = ?", *filter.OwnerID)
	}

	if len(filter.Statuses) > 0 {
		values := make([]any, len(filter.Statuses))
		for i, st := range filter.Statuses {
			values[i] = string(st)
		}

		c.in("status", values)
	}

	if filter.Type != nil {
		c.add("type = ?", string(*filter.Type))
	}

	if filter.Tag != nil {
		tag, err := json.Marshal([]string{*filter.Tag})
		if err != nil {
			return nil, fmt.Errorf("encoding tag filter: %w", err)
		}

		c.add("tags @> ?::jsonb", string(tag))
	}

	if filter.Location != nil {
		c.add("location = ?", *filter.Location)
	}

	if filter.Category != nil {
		c.add("category = ?", *filter.Category)
	}

	if filter.DeadlineBefore != nil {
		c.add("deadline < ?", *filter.DeadlineBefore)
	}

	query := `SELECT ` + selectServiceColumns + ` FROM services` + c.where() + ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}
	defer rows.Close()

	var services []*exchange.Service

	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning service: %w", err)
		}

		services = append(services, svc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating services: %w", err)
	}

	if err := loadParticipants(ctx, s.db, services...); err != nil {
		return nil, err
	}

	return services, nil
}

// loadParticipants fills MatchedUserIDs and ReceiverConfirmedIDs in match order.
func loadParticipants(ctx context.Context, q querier, services ...*exchange.Service) error {
	if len(services) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*exchange.Service, len(services))
	ids := make([]any, 0, len(services))

	for _, svc := range services {
		byID[svc.ID] = svc
		ids = append(ids, svc.ID)
	}

	var c conditions
	c.in("service_id", ids)

	query := `SELECT service_id, user_id, receipt_confirmed FROM service_participants` +
		c.where() + ` ORDER BY matched_at, user_id`

	rows, err := q.QueryContext(ctx, query, c.args...)
	if err != nil {
		return fmt.Errorf("loading participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			serviceID, userID uuid.UUID
			confirmed         bool
		)

		if err := rows.Scan(&serviceID, &userID, &confirmed); err != nil {
			return fmt.Errorf("scanning participant: %w", err)
		}

		svc := byID[serviceID]
		svc.MatchedUserIDs = append(svc.MatchedUserIDs, userID)

		if confirmed {
			svc.ReceiverConfirmedIDs = append(svc.ReceiverConfirmedIDs, userID)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating participants: %w", err)
	}

	return nil
}

func (s *Store) GetJoinRequest(ctx context.Context, id uuid.UUID) (*exchange.JoinRequest, error) {
	return getJoinRequest(ctx, s.db, id, false)
}

func getJoinRequest(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*exchange.JoinRequest, error) {
	query := `SELECT ` + selectJoinRequestColumns + ` FROM join_requests WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	jr, err := scanJoinRequest(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, exchange.ErrNotFound
		}

		return nil, fmt.Errorf("getting join request: %w", err)
	}

	return jr, nil
}

func (s *Store) ListJoinRequests(ctx context.Context, filter exchange.JoinRequestFilter) ([]*exchange.JoinRequest, error) {
	var c conditions

	if filter.ServiceID != nil {
		c.add("service_id = ?", *filter.ServiceID)
	}

	if filter.RequesterID != nil {
		c.add("requester_id = ?", *filter.RequesterID)
	}

	if filter.Status != nil {
		c.add("status = ?", string(*filter.Status))
	}

	query := `SELECT ` + selectJoinRequestColumns + ` FROM join_requests` + c.where() + ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("listing join requests: %w", err)
	}
	defer rows.Close()

	var out []*exchange.JoinRequest

	for rows.Next() {
		jr, err := scanJoinRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning join request: %w", err)
		}

		out = append(out, jr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating join requests: %w", err)
	}

	return out, nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*exchange.Transaction, error) {
	return getTransaction(ctx, s.db, id, false)
}

func getTransaction(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*exchange.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	t, err := scanTransaction(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, exchange.ErrNotFound
		}

		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter exchange.TransactionFilter) ([]*exchange.Transaction, error) {
	var c conditions

	if filter.ServiceID != nil {
		c.add("service_id = ?", *filter.ServiceID)
	}

	if filter.ParticipantID != nil {
		c.add("(provider_id = ? OR requester_id = ?)", *filter.ParticipantID)
	}

	if filter.Status != nil {
		c.add("status = ?", string(*filter.Status))
	}

	query := `SELECT ` + selectTransactionColumns + ` FROM transactions` + c.where() + ` ORDER BY created_at DESC, id`

	return listTransactions(ctx, s.db, query, c.args...)
}

func listTransactions(ctx context.Context, q querier, query string, args ...any) ([]*exchange.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var out []*exchange.Transaction

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}

	return out, nil
}

// Begin opens a unit of work. Row locks taken through it are held until
// Commit or Rollback.
func (s *Store) Begin(ctx context.Context) (exchange.Tx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	return newUnitOfWork(dbTx), nil
}
