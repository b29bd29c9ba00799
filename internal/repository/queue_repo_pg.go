package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CallNextParams struct {
	LocationID   string
	ResourceID   string
	CounterLabel string
	// Since bounds the live queue to tickets issued on the current day.
	Since time.Time
	At    time.Time
}

type QueueRepository interface {
	Create(ctx context.Context, t *domain.QueueTicket) error
	Get(ctx context.Context, id string) (*domain.QueueTicket, error)
	// CountActive counts WAITING and CALLED tickets of a service issued since the given instant.
	CountActive(ctx context.Context, locationID, serviceID string, since time.Time) (int, error)
	// CallNext atomically selects the next eligible WAITING ticket for the
	// resource and calls it. Tickets still CALLED on the resource are demoted
	// to NO_SHOW in the same transaction. Nothing changes when no ticket is
	// eligible, and called is nil.
	CallNext(ctx context.Context, p CallNextParams) (called *domain.QueueTicket, noShows []domain.QueueTicket, err error)
	// Transition moves the ticket to `to` only if its status is one of from.
	Transition(ctx context.Context, id string, from []domain.TicketStatus, to domain.TicketStatus, at time.Time) (*domain.QueueTicket, error)
	ListSince(ctx context.Context, locationID string, since time.Time) ([]domain.QueueTicket, error)
}

type PGQueueRepository struct {
	db *pgxpool.Pool
}

func NewQueueRepository(db *pgxpool.Pool) QueueRepository {
	return &PGQueueRepository{db: db}
}

const ticketColumns = `id, location_id, service_id, ticket_number, prefix, sequence, priority, status, citizen_name,
	estimated_wait_minutes, COALESCE(serving_resource_id, ''), counter_label, issued_at, called_at, served_at, completed_at`

func (r *PGQueueRepository) Create(ctx context.Context, t *domain.QueueTicket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx, `INSERT INTO queue_tickets (id, location_id, service_id, ticket_number, prefix, sequence, priority,
			status, citizen_name, estimated_wait_minutes, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.LocationID, t.ServiceID, t.TicketNumber, t.Prefix, t.Sequence, t.Priority,
		t.Status, t.CitizenName, t.EstimatedWaitMinutes, t.IssuedAt)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (r *PGQueueRepository) Get(ctx context.Context, id string) (*domain.QueueTicket, error) {
	return scanTicket(r.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM queue_tickets WHERE id=$1`, id))
}

func (r *PGQueueRepository) CountActive(ctx context.Context, locationID, serviceID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM queue_tickets
		WHERE location_id=$1 AND service_id=$2 AND status IN ('WAITING', 'CALLED') AND issued_at >= $3`,
		locationID, serviceID, since).Scan(&n)
	return n, err
}

func (r *PGQueueRepository) CallNext(ctx context.Context, p CallNextParams) (*domain.QueueTicket, []domain.QueueTicket, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	// Serializes calls on one resource so two counters sharing it cannot
	// both hold a CALLED ticket.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, p.ResourceID); err != nil {
		return nil, nil, fmt.Errorf("lock resource: %w", err)
	}

	var candidateID string
	err = tx.QueryRow(ctx, `
		SELECT t.id FROM queue_tickets t
		WHERE t.location_id = $1 AND t.status = 'WAITING' AND t.issued_at >= $3
		  AND t.service_id IN (SELECT service_id FROM resource_services WHERE resource_id = $2)
		ORDER BY t.priority DESC, t.issued_at ASC, t.id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, p.LocationID, p.ResourceID, p.Since).Scan(&candidateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, tx.Commit(ctx)
		}
		return nil, nil, fmt.Errorf("select next ticket: %w", err)
	}

	rows, err := tx.Query(ctx, `UPDATE queue_tickets SET status='NO_SHOW'
		WHERE serving_resource_id=$1 AND status='CALLED'
		RETURNING `+ticketColumns, p.ResourceID)
	if err != nil {
		return nil, nil, fmt.Errorf("demote called tickets: %w", err)
	}
	noShows, err := collectTickets(rows)
	if err != nil {
		return nil, nil, err
	}

	called, err := scanTicket(tx.QueryRow(ctx, `UPDATE queue_tickets
		SET status='CALLED', called_at=$2, serving_resource_id=$3, counter_label=$4
		WHERE id=$1 AND status='WAITING'
		RETURNING `+ticketColumns, candidateID, p.At, p.ResourceID, p.CounterLabel))
	if err != nil {
		return nil, nil, fmt.Errorf("call ticket: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return called, noShows, nil
}

func (r *PGQueueRepository) Transition(ctx context.Context, id string, from []domain.TicketStatus, to domain.TicketStatus, at time.Time) (*domain.QueueTicket, error) {
	t, err := scanTicket(r.db.QueryRow(ctx, `UPDATE queue_tickets SET status=$2,
			served_at    = CASE WHEN $2 = 'IN_SERVICE' THEN $3 ELSE served_at END,
			completed_at = CASE WHEN $2 = 'COMPLETED' THEN $3 ELSE completed_at END
		WHERE id=$1 AND status = ANY($4)
		RETURNING `+ticketColumns, id, string(to), at, toStrings(from)))
	if err == nil {
		return t, nil
	}
	if !domain.IsNotFound(err) {
		return nil, err
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("ticket %s is %s, cannot move to %s: %w", current.TicketNumber, current.Status, to, domain.ErrInvalidTransition)
}

func (r *PGQueueRepository) ListSince(ctx context.Context, locationID string, since time.Time) ([]domain.QueueTicket, error) {
	rows, err := r.db.Query(ctx, `SELECT `+ticketColumns+` FROM queue_tickets
		WHERE location_id=$1 AND issued_at >= $2
		ORDER BY priority DESC, issued_at ASC, id ASC`, locationID, since)
	if err != nil {
		return nil, err
	}
	return collectTickets(rows)
}

func collectTickets(rows pgx.Rows) ([]domain.QueueTicket, error) {
	defer rows.Close()

	tickets := make([]domain.QueueTicket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.QueueTicket, error) {
	var t domain.QueueTicket
	if err := row.Scan(&t.ID, &t.LocationID, &t.ServiceID, &t.TicketNumber, &t.Prefix, &t.Sequence, &t.Priority,
		&t.Status, &t.CitizenName, &t.EstimatedWaitMinutes, &t.ServingResourceID, &t.CounterLabel,
		&t.IssuedAt, &t.CalledAt, &t.ServedAt, &t.CompletedAt); err != nil {
		return nil, notFound(err, "ticket")
	}
	return &t, nil
}

var _ QueueRepository = (*PGQueueRepository)(nil)
