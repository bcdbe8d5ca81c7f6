package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSubjectNotFound     = errors.New("subject not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken means the requested interval is no longer free.
	// Recoverable: the caller should re-fetch slots and resubmit.
	ErrSlotTaken = errors.New("interval already booked")
)

// Ledger is the authoritative set of appointments per provider. It is
// the sole writer of appointment records; slot generation only reads
// it. Reserve and Move are single atomic operations so a failure leaves
// the ledger exactly as it was.
type Ledger interface {
	GetSubjectByID(ctx context.Context, id uuid.UUID) (*Subject, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListForDay returns the provider's non-cancelled appointments on
	// a date, ordered by start.
	ListForDay(ctx context.Context, providerID uuid.UUID, day time.Time) ([]Appointment, error)

	ListBySubject(ctx context.Context, subjectID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Reserve inserts the appointment unless a non-cancelled one
	// overlaps the same provider timeline; then it returns ErrSlotTaken
	// and writes nothing.
	Reserve(ctx context.Context, appt *Appointment) (*Appointment, error)

	// Move releases the appointment's current interval and reserves
	// the new one as one unit. On ErrSlotTaken the original interval
	// is untouched. An appointment that is terminal at move time is
	// rejected with ErrInvalidTransition.
	Move(ctx context.Context, id uuid.UUID, newDay time.Time, newStart, newEnd int) (*Appointment, error)

	// UpdateStatus is a compare-and-swap on status; it fails with
	// ErrAppointmentNotFound if the row is not in the from status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, cancelReason *string) (*Appointment, error)

	// FindOverdue returns scheduled or confirmed appointments whose
	// start instant is before cutoff.
	FindOverdue(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
