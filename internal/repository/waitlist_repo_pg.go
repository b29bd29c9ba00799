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

type WaitlistRepository interface {
	Create(ctx context.Context, e *domain.WaitlistEntry) error
	// Position is the 1-based FIFO rank of a WAITING entry within its service.
	Position(ctx context.Context, e *domain.WaitlistEntry) (int, error)
	Get(ctx context.Context, id string) (*domain.WaitlistEntry, error)
	GetByToken(ctx context.Context, token string) (*domain.WaitlistEntry, error)
	// OfferNext moves the oldest matching WAITING entry to OFFERED for the
	// slot. It returns nil when nobody is waiting, the slot already has an
	// open offer, or live appointments fill the service's parallel capacity.
	OfferNext(ctx context.Context, slot domain.FreedSlot, offeredAt, expiresAt time.Time) (*domain.WaitlistEntry, error)
	// RevertOffer puts an OFFERED entry back to WAITING and clears the offer.
	RevertOffer(ctx context.Context, id string, at time.Time) error
	Transition(ctx context.Context, id string, from []domain.WaitlistStatus, to domain.WaitlistStatus, at time.Time) (*domain.WaitlistEntry, error)
	// Confirm moves an OFFERED entry to CONFIRMED and stores the appointment
	// it turned into, atomically.
	Confirm(ctx context.Context, id string, at time.Time, appt *domain.Appointment) (*domain.WaitlistEntry, error)
}

type PGWaitlistRepository struct {
	db *pgxpool.Pool
}

func NewWaitlistRepository(db *pgxpool.Pool) WaitlistRepository {
	return &PGWaitlistRepository{db: db}
}

const entryColumns = `id, service_id, location_id, name, phone, email, status, token, offered_location_id,
	offered_slot_start, offered_slot_end, offered_at, expires_at, confirmed_at, declined_at, created_at, updated_at`

func (r *PGWaitlistRepository) Create(ctx context.Context, e *domain.WaitlistEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx, `INSERT INTO waitlist_entries (id, service_id, location_id, name, phone, email, status, token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.ServiceID, e.LocationID, e.Name, e.Phone, e.Email, e.Status, e.Token, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

func (r *PGWaitlistRepository) Position(ctx context.Context, e *domain.WaitlistEntry) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM waitlist_entries
		WHERE service_id=$1 AND status='WAITING' AND (created_at < $2 OR (created_at = $2 AND id <= $3))`,
		e.ServiceID, e.CreatedAt, e.ID).Scan(&n)
	return n, err
}

func (r *PGWaitlistRepository) Get(ctx context.Context, id string) (*domain.WaitlistEntry, error) {
	return scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM waitlist_entries WHERE id=$1`, id))
}

func (r *PGWaitlistRepository) GetByToken(ctx context.Context, token string) (*domain.WaitlistEntry, error) {
	return scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM waitlist_entries WHERE token=$1`, token))
}

func (r *PGWaitlistRepository) OfferNext(ctx context.Context, slot domain.FreedSlot, offeredAt, expiresAt time.Time) (*domain.WaitlistEntry, error) {
	e, err := scanEntry(r.db.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status='OFFERED', offered_location_id=$2, offered_slot_start=$3, offered_slot_end=$4,
			offered_at=$5, expires_at=$6, updated_at=$5
		WHERE id = (
			SELECT id FROM waitlist_entries
			WHERE service_id=$1 AND status='WAITING' AND (location_id IS NULL OR location_id = $2)
			ORDER BY created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND NOT EXISTS (
			SELECT 1 FROM waitlist_entries
			WHERE status='OFFERED' AND service_id=$1
			  AND COALESCE(offered_location_id, '') = COALESCE($2, '') AND offered_slot_start=$3
		)
		AND (
			SELECT count(*) FROM appointments
			WHERE service_id=$1 AND location_id=$2 AND start_time=$3
			  AND status NOT IN ('CANCELLED', 'NO_SHOW')
		) < (SELECT GREATEST(max_parallel_bookings, 1) FROM services WHERE id=$1)
		RETURNING `+entryColumns,
		slot.ServiceID, slot.LocationID, slot.Start, slot.End, offeredAt, expiresAt))
	if err != nil {
		// Nobody waiting, or a concurrent matcher won the unique offer index.
		if domain.IsNotFound(err) || isUniqueViolation(err, "waitlist_entries_one_offer_idx") {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func (r *PGWaitlistRepository) RevertOffer(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE waitlist_entries
		SET status='WAITING', offered_location_id=NULL, offered_slot_start=NULL, offered_slot_end=NULL,
			offered_at=NULL, expires_at=NULL, updated_at=$2
		WHERE id=$1 AND status='OFFERED'`, id, at)
	return err
}

func (r *PGWaitlistRepository) Transition(ctx context.Context, id string, from []domain.WaitlistStatus, to domain.WaitlistStatus, at time.Time) (*domain.WaitlistEntry, error) {
	e, err := scanEntry(r.db.QueryRow(ctx, `UPDATE waitlist_entries SET status=$2, updated_at=$3,
			declined_at = CASE WHEN $2 = 'DECLINED' THEN $3 ELSE declined_at END
		WHERE id=$1 AND status = ANY($4)
		RETURNING `+entryColumns, id, string(to), at, toStrings(from)))
	if err == nil {
		return e, nil
	}
	if !domain.IsNotFound(err) {
		return nil, err
	}
	return nil, r.classify(ctx, r.db, id, to)
}

func (r *PGWaitlistRepository) Confirm(ctx context.Context, id string, at time.Time, appt *domain.Appointment) (*domain.WaitlistEntry, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	e, err := scanEntry(tx.QueryRow(ctx, `UPDATE waitlist_entries SET status='CONFIRMED', confirmed_at=$2, updated_at=$2
		WHERE id=$1 AND status='OFFERED'
		RETURNING `+entryColumns, id, at))
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, r.classify(ctx, tx, id, domain.WaitlistStatusConfirmed)
		}
		return nil, err
	}

	if err := insertAppointment(ctx, tx, appt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *PGWaitlistRepository) classify(ctx context.Context, q querier, id string, to domain.WaitlistStatus) error {
	var status domain.WaitlistStatus
	if err := q.QueryRow(ctx, `SELECT status FROM waitlist_entries WHERE id=$1`, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("waitlist entry %s: %w", id, domain.ErrNotFound)
		}
		return err
	}
	return fmt.Errorf("waitlist entry is %s, cannot move to %s: %w", status, to, domain.ErrInvalidTransition)
}

func scanEntry(row pgx.Row) (*domain.WaitlistEntry, error) {
	var e domain.WaitlistEntry
	if err := row.Scan(&e.ID, &e.ServiceID, &e.LocationID, &e.Name, &e.Phone, &e.Email, &e.Status, &e.Token,
		&e.OfferedLocationID, &e.OfferedSlotStart, &e.OfferedSlotEnd, &e.OfferedAt, &e.ExpiresAt,
		&e.ConfirmedAt, &e.DeclinedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, notFound(err, "waitlist entry")
	}
	return &e, nil
}

var _ WaitlistRepository = (*PGWaitlistRepository)(nil)
