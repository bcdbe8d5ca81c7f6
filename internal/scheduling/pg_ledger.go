package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caredesk/provider-scheduling/internal/availability"
)

type PgLedger struct {
	pool *pgxpool.Pool
}

func NewPgLedger(pool *pgxpool.Pool) *PgLedger {
	return &PgLedger{pool: pool}
}

const appointmentColumns = `id, provider_id, subject_id, day, start_min, end_min,
	status, type, reason, notes, cancel_reason, created_at, updated_at`

// Helpers

func scanSubject(row pgx.Row) (*Subject, error) {
	var s Subject
	var email *string

	err := row.Scan(
		&s.ID,
		&s.Name,
		&email,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubjectNotFound
		}
		return nil, err
	}

	s.Email = email
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.SubjectID,
		&a.Day,
		&a.StartMin,
		&a.EndMin,
		&a.Status,
		&a.Type,
		&a.Reason,
		&a.Notes,
		&a.CancelReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Day = availability.Day(a.Day)
	return &a, nil
}

// Interface methods

func (r *PgLedger) GetSubjectByID(ctx context.Context, id uuid.UUID) (*Subject, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM subjects
		WHERE id = $1
	`, id)
	return scanSubject(row)
}

func (r *PgLedger) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgLedger) ListForDay(ctx context.Context, providerID uuid.UUID, day time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND day = $2
		  AND status <> 'cancelled'
		ORDER BY start_min
	`, providerID, availability.Day(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgLedger) ListBySubject(ctx context.Context, subjectID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE subject_id = $1
		ORDER BY day DESC, start_min DESC
		LIMIT $2 OFFSET $3
	`, subjectID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

// Reserve checks for an overlapping non-cancelled appointment and
// inserts in a single transaction. The scheduler additionally holds the
// provider timeline lock around this call, so the check cannot race
// with another reservation for the same provider and date.
func (r *PgLedger) Reserve(ctx context.Context, appt *Appointment) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	taken, err := intervalTaken(ctx, tx, appt.ProviderID, appt.Day, appt.StartMin, appt.EndMin, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrSlotTaken
	}

	id := appt.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, provider_id, subject_id, day, start_min, end_min, status, type, reason, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, appt.ProviderID, appt.SubjectID, availability.Day(appt.Day),
		appt.StartMin, appt.EndMin, appt.Status, appt.Type, appt.Reason, appt.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

// Move shifts an appointment to a new interval. Release of the old
// interval and reservation of the new one happen in one transaction,
// so the timeline is never observed with zero or two active intervals
// for this appointment.
func (r *PgLedger) Move(ctx context.Context, id uuid.UUID, newDay time.Time, newStart, newEnd int) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cur, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, err
	}

	// The scheduler checks status before taking the timeline lock, but a
	// cancel or completion can land in between. The row is locked now,
	// so this check is the authoritative one.
	if cur.Status.Terminal() {
		return nil, ErrInvalidTransition
	}

	taken, err := intervalTaken(ctx, tx, cur.ProviderID, newDay, newStart, newEnd, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrSlotTaken
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET day = $2,
		    start_min = $3,
		    end_min = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, availability.Day(newDay), newStart, newEnd)

	moved, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("move appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return moved, nil
}

func (r *PgLedger) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, cancelReason *string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancel_reason = COALESCE($4, cancel_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from, cancelReason)

	return scanAppointment(row)
}

func (r *PgLedger) FindOverdue(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('scheduled', 'confirmed')
		  AND day + (start_min * interval '1 minute') < $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgLedger) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func intervalTaken(ctx context.Context, tx pgx.Tx, providerID uuid.UUID, day time.Time, start, end int, excludeID uuid.UUID) (bool, error) {
	var taken bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE provider_id = $1
			  AND day = $2
			  AND status <> 'cancelled'
			  AND id <> $5
			  AND start_min < $4
			  AND $3 < end_min
		)
	`, providerID, availability.Day(day), start, end, excludeID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check overlap: %w", err)
	}
	return taken, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
