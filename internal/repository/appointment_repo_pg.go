package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AppointmentRepository interface {
	// Create stores the appointment together with its time-slot row in one
	// transaction. A clashing booking code yields domain.ErrDuplicateBookingCode.
	Create(ctx context.Context, appt *domain.Appointment) error
	GetByCode(ctx context.Context, code string) (*domain.Appointment, error)
	// BookedStarts lists the starts in [from, to) that hold capacity of the
	// service at the location: live appointments and open waitlist offers.
	BookedStarts(ctx context.Context, locationID, serviceID string, from, to time.Time) ([]time.Time, error)
	Cancel(ctx context.Context, code, reason string, at time.Time) (*domain.Appointment, error)
	CheckIn(ctx context.Context, code string, at time.Time) (*domain.Appointment, error)
}

type PGAppointmentRepository struct {
	db *pgxpool.Pool
}

func NewAppointmentRepository(db *pgxpool.Pool) AppointmentRepository {
	return &PGAppointmentRepository{db: db}
}

const appointmentColumns = `id, location_id, service_id, resource_id, booking_code, start_time, end_time, status, source,
	citizen_name, citizen_email, citizen_phone, notes, cancel_reason, cancelled_at, checked_in_at, created_at, updated_at`

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PGAppointmentRepository) Create(ctx context.Context, appt *domain.Appointment) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertAppointment(ctx, tx, appt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// insertAppointment reserves the resource's time slot and inserts the
// appointment on q, which is expected to be inside a transaction.
func insertAppointment(ctx context.Context, q querier, appt *domain.Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	slotID := uuid.NewString()

	if _, err := q.Exec(ctx, `INSERT INTO time_slots (id, resource_id, location_id, service_id, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'BOOKED')`,
		slotID, appt.ResourceID, appt.LocationID, appt.ServiceID, appt.StartTime, appt.EndTime); err != nil {
		return fmt.Errorf("insert time slot: %w", err)
	}

	err := q.QueryRow(ctx, `INSERT INTO appointments (id, location_id, service_id, resource_id, time_slot_id, booking_code,
			start_time, end_time, status, source, citizen_name, citizen_email, citizen_phone, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		appt.ID, appt.LocationID, appt.ServiceID, appt.ResourceID, slotID, appt.BookingCode,
		appt.StartTime, appt.EndTime, appt.Status, appt.Source, appt.CitizenName, appt.CitizenEmail, appt.CitizenPhone, appt.Notes).
		Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "appointments_booking_code_key") {
			return domain.ErrDuplicateBookingCode
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PGAppointmentRepository) GetByCode(ctx context.Context, code string) (*domain.Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE booking_code=$1`, code)
	return scanAppointment(row)
}

func (r *PGAppointmentRepository) BookedStarts(ctx context.Context, locationID, serviceID string, from, to time.Time) ([]time.Time, error) {
	rows, err := r.db.Query(ctx, `
		SELECT start_time FROM appointments
		WHERE location_id = $1 AND service_id = $2 AND start_time >= $3 AND start_time < $4
		  AND status NOT IN ('CANCELLED', 'NO_SHOW')
		UNION ALL
		SELECT offered_slot_start FROM waitlist_entries
		WHERE status = 'OFFERED' AND service_id = $2 AND offered_location_id = $1
		  AND offered_slot_start >= $3 AND offered_slot_start < $4
		ORDER BY 1`,
		locationID, serviceID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	starts := make([]time.Time, 0)
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		starts = append(starts, t)
	}
	return starts, rows.Err()
}

func (r *PGAppointmentRepository) Cancel(ctx context.Context, code, reason string, at time.Time) (*domain.Appointment, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	appt, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments SET status='CANCELLED', cancel_reason=$2, cancelled_at=$3, updated_at=$3
		WHERE booking_code=$1 AND status NOT IN ('CANCELLED', 'COMPLETED', 'IN_PROGRESS', 'NO_SHOW')
		RETURNING `+appointmentColumns, code, reason, at))
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, r.classify(ctx, tx, code, domain.ErrAlreadyTerminal)
		}
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE time_slots SET status='FREE', updated_at=$2
		WHERE id = (SELECT time_slot_id FROM appointments WHERE id=$1)`, appt.ID, at); err != nil {
		return nil, fmt.Errorf("free time slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return appt, nil
}

func (r *PGAppointmentRepository) CheckIn(ctx context.Context, code string, at time.Time) (*domain.Appointment, error) {
	appt, err := scanAppointment(r.db.QueryRow(ctx, `
		UPDATE appointments SET status='CHECKED_IN', checked_in_at=$2, updated_at=$2
		WHERE booking_code=$1 AND status IN ('BOOKED', 'CONFIRMED')
		RETURNING `+appointmentColumns, code, at))
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, r.classify(ctx, r.db, code, domain.ErrInvalidTransition)
		}
		return nil, err
	}
	return appt, nil
}

// classify explains why a conditional update matched no row: the code is
// unknown, or the appointment is in a state the transition does not accept.
func (r *PGAppointmentRepository) classify(ctx context.Context, q querier, code string, transitionErr error) error {
	var status domain.AppointmentStatus
	if err := q.QueryRow(ctx, `SELECT status FROM appointments WHERE booking_code=$1`, code).Scan(&status); err != nil {
		return notFound(err, "appointment "+code)
	}
	return fmt.Errorf("appointment %s is %s: %w", code, status, transitionErr)
}

func scanAppointment(row pgx.Row) (*domain.Appointment, error) {
	var a domain.Appointment
	if err := row.Scan(&a.ID, &a.LocationID, &a.ServiceID, &a.ResourceID, &a.BookingCode, &a.StartTime, &a.EndTime,
		&a.Status, &a.Source, &a.CitizenName, &a.CitizenEmail, &a.CitizenPhone, &a.Notes, &a.CancelReason,
		&a.CancelledAt, &a.CheckedInAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, notFound(err, "appointment")
	}
	return &a, nil
}

var _ AppointmentRepository = (*PGAppointmentRepository)(nil)
