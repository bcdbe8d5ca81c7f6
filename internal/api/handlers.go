package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/caredesk/provider-scheduling/internal/availability"
	redisclient "github.com/caredesk/provider-scheduling/internal/redis"
	"github.com/caredesk/provider-scheduling/internal/scheduling"
)

// SchedulerService is the slice of the scheduling service the handlers
// need.
type SchedulerService interface {
	Slots(ctx context.Context, providerID uuid.UUID, day time.Time, durationMin int) ([]scheduling.Slot, error)
	Book(ctx context.Context, req scheduling.BookRequest) (*scheduling.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, newDay time.Time, newStart, newEnd int) (*scheduling.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*scheduling.Appointment, error)
	Transition(ctx context.Context, id uuid.UUID, action scheduling.Action) (*scheduling.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
	ListBySubject(ctx context.Context, subjectID uuid.UUID, limit, offset int) ([]scheduling.Appointment, error)
}

func slotsHandler(svc SchedulerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		day, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		duration, err := strconv.Atoi(r.URL.Query().Get("duration"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be minutes")
			return
		}

		slots, err := svc.Slots(r.Context(), providerID, day, duration)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		views := make([]SlotView, 0, len(slots))
		for _, s := range slots {
			views = append(views, SlotView{
				Start: availability.FormatClock(s.Start),
				End:   availability.FormatClock(s.End),
			})
		}

		writeJSON(w, http.StatusOK, SlotsResponse{
			ProviderID: providerID,
			Date:       day.Format("2006-01-02"),
			Duration:   duration,
			Slots:      views,
		})
	}
}

func bookAppointmentHandler(svc SchedulerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		subjectID, err := uuid.Parse(req.SubjectID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_subject_id", "subject_id must be a valid UUID")
			return
		}

		day, startMin, endMin, ok := parseInterval(w, req.Date, req.Start, req.End)
		if !ok {
			return
		}

		appt, err := svc.Book(r.Context(), scheduling.BookRequest{
			ProviderID: providerID,
			SubjectID:  subjectID,
			Day:        day,
			StartMin:   startMin,
			EndMin:     endMin,
			Type:       req.Type,
			Reason:     req.Reason,
			Notes:      req.Notes,
		})
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appointmentView(appt))
	}
}

func getAppointmentHandler(svc SchedulerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentView(appt))
	}
}

func listAppointmentsHandler(svc SchedulerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subjectID, err := uuid.Parse(r.URL.Query().Get("subject_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_subject_id", "subject_id must be a valid UUID")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appts, err := svc.ListBySubject(r.Context(), subjectID, limit, offset)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		views := make([]AppointmentView, 0, len(appts))
		for i := range appts {
			views = append(views, appointmentView(&appts[i]))
		}

		writeJSON(w, http.StatusOK, map[string]any{"appointments": views})
	}
}

func transitionHandler(svc SchedulerService, action scheduling.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Transition(r.Context(), id, action)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentView(appt))
	}
}

func cancelAppointmentHandler(svc SchedulerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req CancelRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		appt, err := svc.Cancel(r.Context(), id, req.Reason)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentView(appt))
	}
}

func rescheduleAppointmentHandler(svc SchedulerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		day, startMin, endMin, ok := parseInterval(w, req.Date, req.Start, req.End)
		if !ok {
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, day, startMin, endMin)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentView(appt))
	}
}

func setWindowsHandler(store availability.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		wd, err := strconv.Atoi(chi.URLParam(r, "weekday"))
		if err != nil || wd < 0 || wd > 6 {
			writeError(w, http.StatusBadRequest, "invalid_weekday", "weekday must be 0 (Sunday) through 6 (Saturday)")
			return
		}

		var req SetWindowsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		windows := make([]availability.Window, 0, len(req.Windows))
		for _, wv := range req.Windows {
			start, err := availability.ParseClock(wv.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start", err.Error())
				return
			}
			end, err := availability.ParseClock(wv.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_end", err.Error())
				return
			}
			windows = append(windows, availability.Window{
				ProviderID: providerID,
				Weekday:    time.Weekday(wd),
				Start:      start,
				End:        end,
			})
		}

		if err := store.SetWindows(r.Context(), providerID, time.Weekday(wd), windows); err != nil {
			handleAvailabilityError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func setExceptionHandler(store availability.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		date, err := time.Parse("2006-01-02", chi.URLParam(r, "date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		var req SetExceptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		exc := availability.Exception{
			ProviderID: providerID,
			Date:       date,
			Closed:     req.Closed,
		}
		if !req.Closed {
			exc.Start, err = availability.ParseClock(req.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start", err.Error())
				return
			}
			exc.End, err = availability.ParseClock(req.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_end", err.Error())
				return
			}
		}

		if err := store.SetException(r.Context(), exc); err != nil {
			handleAvailabilityError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func parseInterval(w http.ResponseWriter, dateStr, startStr, endStr string) (day time.Time, startMin, endMin int, ok bool) {
	day, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return time.Time{}, 0, 0, false
	}
	startMin, err = availability.ParseClock(startStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start", err.Error())
		return time.Time{}, 0, 0, false
	}
	endMin, err = availability.ParseClock(endStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end", err.Error())
		return time.Time{}, 0, 0, false
	}
	return day, startMin, endMin, true
}

func handleSchedulingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, availability.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSubjectNotFound):
		writeError(w, http.StatusNotFound, "subject_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, scheduling.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, scheduling.ErrTimelineBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "timeline_busy", "timeline is currently being booked, please retry shortly")
	case errors.Is(err, scheduling.ErrPastTime):
		writeError(w, http.StatusUnprocessableEntity, "past_time", err.Error())
	case errors.Is(err, scheduling.ErrOutsideAvailability):
		writeError(w, http.StatusUnprocessableEntity, "outside_availability", err.Error())
	case errors.Is(err, scheduling.ErrBadInterval),
		errors.Is(err, scheduling.ErrBadDuration):
		writeError(w, http.StatusUnprocessableEntity, "invalid_interval", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleAvailabilityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, availability.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, availability.ErrWindowOrder),
		errors.Is(err, availability.ErrWindowOverlap):
		writeError(w, http.StatusUnprocessableEntity, "invalid_windows", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
