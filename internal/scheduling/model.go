package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusCheckedIn  Status = "checked_in"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// Terminal reports whether no further transition can leave the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionCheckIn  Action = "check_in"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	ActionNoShow   Action = "no_show"
)

// Subject is the party booking time with a provider.
type Subject struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment occupies [StartMin, EndMin) minutes of the provider's
// timeline on Day (a UTC calendar date). Once the status is terminal
// the record is immutable.
type Appointment struct {
	ID           uuid.UUID
	ProviderID   uuid.UUID
	SubjectID    uuid.UUID
	Day          time.Time
	StartMin     int
	EndMin       int
	Status       Status
	Type         string
	Reason       *string
	Notes        *string
	CancelReason *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StartAt is the appointment's absolute start instant.
func (a *Appointment) StartAt() time.Time {
	return a.Day.Add(time.Duration(a.StartMin) * time.Minute)
}

// EndAt is the appointment's absolute end instant.
func (a *Appointment) EndAt() time.Time {
	return a.Day.Add(time.Duration(a.EndMin) * time.Minute)
}

// Slot is a duration-sized candidate interval offered for booking,
// in minutes from midnight.
type Slot struct {
	Start int
	End   int
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// overlaps reports whether the half-open intervals [s1,e1) and [s2,e2)
// intersect.
func overlaps(s1, e1, s2, e2 int) bool {
	return s1 < e2 && s2 < e1
}
