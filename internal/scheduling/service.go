package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caredesk/provider-scheduling/internal/availability"
	"github.com/caredesk/provider-scheduling/internal/config"
	redisclient "github.com/caredesk/provider-scheduling/internal/redis"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentTransition  = "APPOINTMENT_TRANSITION"
	EventAppointmentAutoNoShow  = "APPOINTMENT_AUTO_NO_SHOW"
)

var (
	ErrPastTime            = errors.New("interval is in the past")
	ErrOutsideAvailability = errors.New("interval is outside provider availability")
	ErrBadInterval         = errors.New("start must be before end")
	ErrBadDuration         = errors.New("slot duration out of range")

	// ErrTimelineBusy means another reservation holds the provider's
	// timeline lock; the caller should retry shortly.
	ErrTimelineBusy = errors.New("timeline is currently being booked, please retry")
)

// Service orchestrates slot queries and appointment lifecycle. Slot
// output is a snapshot, not a hold: availability and occupancy are
// re-validated at commit time inside the timeline lock.
type Service struct {
	ledger Ledger
	avail  availability.Store
	locker redisclient.Locker
	cfg    config.Config
	log    zerolog.Logger

	now func() time.Time
}

func NewService(ledger Ledger, avail availability.Store, locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		ledger: ledger,
		avail:  avail,
		locker: locker,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

type BookRequest struct {
	ProviderID uuid.UUID
	SubjectID  uuid.UUID
	Day        time.Time
	StartMin   int
	EndMin     int
	Type       string
	Reason     *string
	Notes      *string
}

// Slots returns the ordered free duration-sized intervals for a
// provider and date. An empty result is not an error. Nothing is
// reserved; the snapshot may be stale by the time a caller books.
func (s *Service) Slots(ctx context.Context, providerID uuid.UUID, day time.Time, durationMin int) ([]Slot, error) {
	if durationMin < s.cfg.MinSlotMinutes || durationMin > s.cfg.MaxSlotMinutes {
		return nil, ErrBadDuration
	}

	windows, err := availability.EffectiveWindows(ctx, s.avail, providerID, day)
	if err != nil {
		return nil, err
	}

	busy, err := s.busyIntervals(ctx, providerID, day)
	if err != nil {
		return nil, err
	}

	return BuildSlots(windows, busy, durationMin, day, s.now()), nil
}

// Book validates the interval against the clock and the provider's
// effective availability, then reserves it under the timeline lock.
// Exactly one of two concurrent attempts for overlapping intervals
// succeeds; the other gets ErrSlotTaken synchronously and nothing is
// retried here.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if err := s.validateInterval(ctx, req.ProviderID, req.Day, req.StartMin, req.EndMin); err != nil {
		return nil, err
	}

	if _, err := s.ledger.GetSubjectByID(ctx, req.SubjectID); err != nil {
		if errors.Is(err, ErrSubjectNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load subject: %w", err)
	}

	appt := &Appointment{
		ProviderID: req.ProviderID,
		SubjectID:  req.SubjectID,
		Day:        availability.Day(req.Day),
		StartMin:   req.StartMin,
		EndMin:     req.EndMin,
		Status:     StatusScheduled,
		Type:       req.Type,
		Reason:     req.Reason,
		Notes:      req.Notes,
	}

	var created *Appointment

	err := s.locker.WithTimelineLock(ctx, req.ProviderID, appt.Day, func(lockCtx context.Context) error {
		reserved, err := s.ledger.Reserve(lockCtx, appt)
		if err != nil {
			return err
		}
		created = reserved

		s.logEvent(lockCtx, reserved.ID, EventAppointmentBooked, map[string]any{
			"provider_id": req.ProviderID.String(),
			"subject_id":  req.SubjectID.String(),
			"day":         appt.Day.Format("2006-01-02"),
			"start":       availability.FormatClock(req.StartMin),
			"end":         availability.FormatClock(req.EndMin),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrTimelineBusy
		}
		return nil, err
	}

	return created, nil
}

// Reschedule moves a non-terminal appointment to a new interval. The
// new interval is validated exactly like a fresh booking; release of
// the old interval and reservation of the new one are one atomic unit,
// so a conflict leaves the original booking intact.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDay time.Time, newStart, newEnd int) (*Appointment, error) {
	cur, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status.Terminal() {
		return nil, ErrInvalidTransition
	}

	if err := s.validateInterval(ctx, cur.ProviderID, newDay, newStart, newEnd); err != nil {
		return nil, err
	}

	// Optional policy knob; zero means no minimum notice.
	if s.cfg.RescheduleMinNotice > 0 {
		newStartAt := availability.Day(newDay).Add(time.Duration(newStart) * time.Minute)
		if newStartAt.Before(s.now().Add(s.cfg.RescheduleMinNotice)) {
			return nil, ErrPastTime
		}
	}

	var moved *Appointment

	// Only the destination timeline is locked: freeing the old
	// interval cannot create a conflict.
	err = s.locker.WithTimelineLock(ctx, cur.ProviderID, availability.Day(newDay), func(lockCtx context.Context) error {
		m, err := s.ledger.Move(lockCtx, id, newDay, newStart, newEnd)
		if err != nil {
			return err
		}
		moved = m

		s.logEvent(lockCtx, id, EventAppointmentRescheduled, map[string]any{
			"day":   availability.Day(newDay).Format("2006-01-02"),
			"start": availability.FormatClock(newStart),
			"end":   availability.FormatClock(newEnd),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrTimelineBusy
		}
		return nil, err
	}

	return moved, nil
}

// Cancel transitions the appointment to cancelled, freeing its
// interval. Allowed from any non-terminal status.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	cur, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := NextStatus(cur.Status, ActionCancel, s.now(), cur.StartAt())
	if err != nil {
		return nil, err
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}

	updated, err := s.ledger.UpdateStatus(ctx, id, cur.Status, next, reasonPtr)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Status changed between load and swap.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, id, EventAppointmentCancelled, map[string]any{"reason": reason})

	return updated, nil
}

// Transition applies a lifecycle action (confirm, check-in, start,
// complete, no-show). The state machine decides legality; the write is
// a compare-and-swap so a concurrent transition loses cleanly.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, action Action) (*Appointment, error) {
	if action == ActionCancel {
		return s.Cancel(ctx, id, "")
	}

	cur, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := NextStatus(cur.Status, action, s.now(), cur.StartAt())
	if err != nil {
		return nil, err
	}

	updated, err := s.ledger.UpdateStatus(ctx, id, cur.Status, next, nil)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("apply transition: %w", err)
	}

	s.logEvent(ctx, id, EventAppointmentTransition, map[string]any{
		"action": string(action),
		"from":   string(cur.Status),
		"to":     string(next),
	})

	return updated, nil
}

// Get retrieves one appointment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.ledger.GetByID(ctx, id)
}

// ListBySubject returns a subject's appointments, newest first.
func (s *Service) ListBySubject(ctx context.Context, subjectID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.ledger.ListBySubject(ctx, subjectID, limit, offset)
}

// MarkOverdueNoShows is called periodically by the worker. Scheduled or
// confirmed appointments whose start passed more than the grace period
// ago become no-shows.
func (s *Service) MarkOverdueNoShows(ctx context.Context) error {
	cutoff := s.now().Add(-s.cfg.NoShowGrace)

	overdue, err := s.ledger.FindOverdue(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find overdue appointments: %w", err)
	}

	for _, appt := range overdue {
		next, err := NextStatus(appt.Status, ActionNoShow, s.now(), appt.StartAt())
		if err != nil {
			continue
		}
		if _, err := s.ledger.UpdateStatus(ctx, appt.ID, appt.Status, next, nil); err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.log.Warn().Err(err).Stringer("appointment_id", appt.ID).Msg("failed to mark no-show")
			}
			continue
		}
		s.logEvent(ctx, appt.ID, EventAppointmentAutoNoShow, map[string]any{
			"scheduled_start": appt.StartAt().Format(time.RFC3339),
		})
	}

	return nil
}

// validateInterval enforces the commit-time checks shared by Book and
// Reschedule: well-formed, not elapsed, and fully inside the date's
// effective availability.
func (s *Service) validateInterval(ctx context.Context, providerID uuid.UUID, day time.Time, startMin, endMin int) error {
	if startMin >= endMin {
		return ErrBadInterval
	}

	startAt := availability.Day(day).Add(time.Duration(startMin) * time.Minute)
	if startAt.Before(s.now()) {
		return ErrPastTime
	}

	windows, err := availability.EffectiveWindows(ctx, s.avail, providerID, day)
	if err != nil {
		return err
	}
	for _, w := range windows {
		if startMin >= w.Start && endMin <= w.End {
			return nil
		}
	}
	return ErrOutsideAvailability
}

func (s *Service) busyIntervals(ctx context.Context, providerID uuid.UUID, day time.Time) ([]Slot, error) {
	appts, err := s.ledger.ListForDay(ctx, providerID, day)
	if err != nil {
		return nil, err
	}
	busy := make([]Slot, 0, len(appts))
	for _, a := range appts {
		busy = append(busy, Slot{Start: a.StartMin, End: a.EndMin})
	}
	return busy, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.ledger.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Stringer("appointment_id", appointmentID).Msg("failed to insert event log")
	}
}
