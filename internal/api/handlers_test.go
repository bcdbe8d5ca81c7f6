package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caredesk/provider-scheduling/internal/availability"
	"github.com/caredesk/provider-scheduling/internal/scheduling"
)

// fakeService implements SchedulerService through per-test function
// fields.
type fakeService struct {
	slots      func(ctx context.Context, providerID uuid.UUID, day time.Time, durationMin int) ([]scheduling.Slot, error)
	book       func(ctx context.Context, req scheduling.BookRequest) (*scheduling.Appointment, error)
	reschedule func(ctx context.Context, id uuid.UUID, newDay time.Time, newStart, newEnd int) (*scheduling.Appointment, error)
	cancel     func(ctx context.Context, id uuid.UUID, reason string) (*scheduling.Appointment, error)
	transition func(ctx context.Context, id uuid.UUID, action scheduling.Action) (*scheduling.Appointment, error)
	get        func(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
	list       func(ctx context.Context, subjectID uuid.UUID, limit, offset int) ([]scheduling.Appointment, error)
}

func (f *fakeService) Slots(ctx context.Context, providerID uuid.UUID, day time.Time, durationMin int) ([]scheduling.Slot, error) {
	return f.slots(ctx, providerID, day, durationMin)
}

func (f *fakeService) Book(ctx context.Context, req scheduling.BookRequest) (*scheduling.Appointment, error) {
	return f.book(ctx, req)
}

func (f *fakeService) Reschedule(ctx context.Context, id uuid.UUID, newDay time.Time, newStart, newEnd int) (*scheduling.Appointment, error) {
	return f.reschedule(ctx, id, newDay, newStart, newEnd)
}

func (f *fakeService) Cancel(ctx context.Context, id uuid.UUID, reason string) (*scheduling.Appointment, error) {
	return f.cancel(ctx, id, reason)
}

func (f *fakeService) Transition(ctx context.Context, id uuid.UUID, action scheduling.Action) (*scheduling.Appointment, error) {
	return f.transition(ctx, id, action)
}

func (f *fakeService) Get(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	return f.get(ctx, id)
}

func (f *fakeService) ListBySubject(ctx context.Context, subjectID uuid.UUID, limit, offset int) ([]scheduling.Appointment, error) {
	return f.list(ctx, subjectID, limit, offset)
}

// fakeAvailStore records the last write for assertions.
type fakeAvailStore struct {
	windowsErr   error
	exceptionErr error
	lastWindows  []availability.Window
	lastWeekday  time.Weekday
	lastExc      *availability.Exception
}

func (f *fakeAvailStore) GetProviderByID(context.Context, uuid.UUID) (*availability.Provider, error) {
	return nil, availability.ErrProviderNotFound
}

func (f *fakeAvailStore) WindowsFor(context.Context, uuid.UUID, time.Weekday) ([]availability.Window, error) {
	return nil, nil
}

func (f *fakeAvailStore) ExceptionFor(context.Context, uuid.UUID, time.Time) (*availability.Exception, error) {
	return nil, nil
}

func (f *fakeAvailStore) SetWindows(_ context.Context, _ uuid.UUID, weekday time.Weekday, windows []availability.Window) error {
	if f.windowsErr != nil {
		return f.windowsErr
	}
	f.lastWeekday = weekday
	f.lastWindows = windows
	return nil
}

func (f *fakeAvailStore) SetException(_ context.Context, exc availability.Exception) error {
	if f.exceptionErr != nil {
		return f.exceptionErr
	}
	f.lastExc = &exc
	return nil
}

func newTestRouter(svc SchedulerService, store availability.Store) http.Handler {
	if store == nil {
		store = &fakeAvailStore{}
	}
	return NewRouter(RouterConfig{
		Service:      svc,
		Availability: store,
		Logger:       zerolog.Nop(),
		Env:          "test",
		Version:      "test",
	})
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func sampleAppointment() *scheduling.Appointment {
	return &scheduling.Appointment{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		SubjectID:  uuid.New(),
		Day:        time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		StartMin:   10 * 60,
		EndMin:     10*60 + 30,
		Status:     scheduling.StatusScheduled,
		Type:       "consultation",
	}
}

func TestSlotsEndpoint(t *testing.T) {
	providerID := uuid.New()
	svc := &fakeService{
		slots: func(_ context.Context, gotProvider uuid.UUID, day time.Time, durationMin int) ([]scheduling.Slot, error) {
			assert.Equal(t, providerID, gotProvider)
			assert.Equal(t, 30, durationMin)
			assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), day)
			return []scheduling.Slot{{Start: 9 * 60, End: 9*60 + 30}, {Start: 9*60 + 30, End: 10 * 60}}, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodGet, "/providers/"+providerID.String()+"/slots?date=2026-01-05&duration=30", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SlotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2026-01-05", resp.Date)
	require.Len(t, resp.Slots, 2)
	assert.Equal(t, SlotView{Start: "09:00", End: "09:30"}, resp.Slots[0])
}

func TestSlotsEndpointBadParams(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(svc, nil)
	providerID := uuid.New().String()

	tests := []struct {
		name string
		path string
		code string
	}{
		{"bad provider id", "/providers/not-a-uuid/slots?date=2026-01-05&duration=30", "invalid_provider_id"},
		{"missing date", "/providers/" + providerID + "/slots?duration=30", "invalid_date"},
		{"bad date", "/providers/" + providerID + "/slots?date=05-01-2026&duration=30", "invalid_date"},
		{"missing duration", "/providers/" + providerID + "/slots?date=2026-01-05", "invalid_duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodGet, tt.path, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Error)
		})
	}
}

func TestSlotsEndpointUnknownProvider(t *testing.T) {
	svc := &fakeService{
		slots: func(context.Context, uuid.UUID, time.Time, int) ([]scheduling.Slot, error) {
			return nil, availability.ErrProviderNotFound
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodGet, "/providers/"+uuid.NewString()+"/slots?date=2026-01-05&duration=30", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "provider_not_found", decodeError(t, rec).Error)
}

func TestBookEndpoint(t *testing.T) {
	appt := sampleAppointment()
	svc := &fakeService{
		book: func(_ context.Context, req scheduling.BookRequest) (*scheduling.Appointment, error) {
			assert.Equal(t, appt.ProviderID, req.ProviderID)
			assert.Equal(t, appt.SubjectID, req.SubjectID)
			assert.Equal(t, 10*60, req.StartMin)
			assert.Equal(t, 10*60+30, req.EndMin)
			return appt, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodPost, "/appointments", BookAppointmentRequest{
		ProviderID: appt.ProviderID.String(),
		SubjectID:  appt.SubjectID.String(),
		Date:       "2026-01-05",
		Start:      "10:00",
		End:        "10:30",
		Type:       "consultation",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var view AppointmentView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, appt.ID, view.ID)
	assert.Equal(t, "scheduled", view.Status)
	assert.Equal(t, "10:00", view.Start)
}

func TestBookEndpointErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"slot taken", scheduling.ErrSlotTaken, http.StatusConflict, "slot_taken"},
		{"timeline busy", scheduling.ErrTimelineBusy, http.StatusConflict, "timeline_busy"},
		{"past time", scheduling.ErrPastTime, http.StatusUnprocessableEntity, "past_time"},
		{"outside availability", scheduling.ErrOutsideAvailability, http.StatusUnprocessableEntity, "outside_availability"},
		{"bad interval", scheduling.ErrBadInterval, http.StatusUnprocessableEntity, "invalid_interval"},
		{"unknown subject", scheduling.ErrSubjectNotFound, http.StatusNotFound, "subject_not_found"},
		{"unknown provider", availability.ErrProviderNotFound, http.StatusNotFound, "provider_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{
				book: func(context.Context, scheduling.BookRequest) (*scheduling.Appointment, error) {
					return nil, tt.err
				},
			}
			router := newTestRouter(svc, nil)

			rec := doRequest(t, router, http.MethodPost, "/appointments", BookAppointmentRequest{
				ProviderID: uuid.NewString(),
				SubjectID:  uuid.NewString(),
				Date:       "2026-01-05",
				Start:      "10:00",
				End:        "10:30",
			})
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, decodeError(t, rec).Error)
		})
	}
}

func TestBookEndpointBadBody(t *testing.T) {
	router := newTestRouter(&fakeService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", decodeError(t, rec).Error)
}

func TestBookEndpointBadClock(t *testing.T) {
	router := newTestRouter(&fakeService{}, nil)

	rec := doRequest(t, router, http.MethodPost, "/appointments", BookAppointmentRequest{
		ProviderID: uuid.NewString(),
		SubjectID:  uuid.NewString(),
		Date:       "2026-01-05",
		Start:      "10am",
		End:        "10:30",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_start", decodeError(t, rec).Error)
}

func TestGetAppointmentEndpoint(t *testing.T) {
	appt := sampleAppointment()
	svc := &fakeService{
		get: func(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
			if id == appt.ID {
				return appt, nil
			}
			return nil, scheduling.ErrAppointmentNotFound
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodGet, "/appointments/"+appt.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "appointment_not_found", decodeError(t, rec).Error)
}

func TestTransitionEndpoints(t *testing.T) {
	appt := sampleAppointment()
	var gotAction scheduling.Action
	svc := &fakeService{
		transition: func(_ context.Context, _ uuid.UUID, action scheduling.Action) (*scheduling.Appointment, error) {
			gotAction = action
			return appt, nil
		},
	}
	router := newTestRouter(svc, nil)

	for path, want := range map[string]scheduling.Action{
		"confirm":  scheduling.ActionConfirm,
		"check-in": scheduling.ActionCheckIn,
		"start":    scheduling.ActionStart,
		"complete": scheduling.ActionComplete,
		"no-show":  scheduling.ActionNoShow,
	} {
		rec := doRequest(t, router, http.MethodPost, "/appointments/"+appt.ID.String()+"/"+path, nil)
		require.Equal(t, http.StatusOK, rec.Code, "path %s", path)
		assert.Equal(t, want, gotAction, "path %s", path)
	}
}

func TestTransitionEndpointInvalid(t *testing.T) {
	svc := &fakeService{
		transition: func(context.Context, uuid.UUID, scheduling.Action) (*scheduling.Appointment, error) {
			return nil, scheduling.ErrInvalidTransition
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodPost, "/appointments/"+uuid.NewString()+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeError(t, rec).Error)
}

func TestCancelEndpointPassesReason(t *testing.T) {
	appt := sampleAppointment()
	appt.Status = scheduling.StatusCancelled
	svc := &fakeService{
		cancel: func(_ context.Context, _ uuid.UUID, reason string) (*scheduling.Appointment, error) {
			assert.Equal(t, "patient request", reason)
			return appt, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", CancelRequest{Reason: "patient request"})
	require.Equal(t, http.StatusOK, rec.Code)

	var view AppointmentView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "cancelled", view.Status)
}

func TestRescheduleEndpoint(t *testing.T) {
	appt := sampleAppointment()
	svc := &fakeService{
		reschedule: func(_ context.Context, id uuid.UUID, newDay time.Time, newStart, newEnd int) (*scheduling.Appointment, error) {
			assert.Equal(t, appt.ID, id)
			assert.Equal(t, time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC), newDay)
			assert.Equal(t, 11*60, newStart)
			assert.Equal(t, 11*60+30, newEnd)
			return appt, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodPost, "/appointments/"+appt.ID.String()+"/reschedule", RescheduleRequest{
		Date:  "2026-01-06",
		Start: "11:00",
		End:   "11:30",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRescheduleEndpointConflict(t *testing.T) {
	svc := &fakeService{
		reschedule: func(context.Context, uuid.UUID, time.Time, int, int) (*scheduling.Appointment, error) {
			return nil, scheduling.ErrSlotTaken
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodPost, "/appointments/"+uuid.NewString()+"/reschedule", RescheduleRequest{
		Date:  "2026-01-06",
		Start: "11:00",
		End:   "11:30",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_taken", decodeError(t, rec).Error)
}

func TestSetWindowsEndpoint(t *testing.T) {
	store := &fakeAvailStore{}
	router := newTestRouter(&fakeService{}, store)
	providerID := uuid.New()

	rec := doRequest(t, router, http.MethodPut, "/providers/"+providerID.String()+"/availability/1", SetWindowsRequest{
		Windows: []WindowView{{Start: "09:00", End: "12:00"}, {Start: "13:00", End: "17:00"}},
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	assert.Equal(t, time.Monday, store.lastWeekday)
	require.Len(t, store.lastWindows, 2)
	assert.Equal(t, 9*60, store.lastWindows[0].Start)
	assert.Equal(t, 17*60, store.lastWindows[1].End)
}

func TestSetWindowsEndpointRejectsOverlap(t *testing.T) {
	store := &fakeAvailStore{windowsErr: availability.ErrWindowOverlap}
	router := newTestRouter(&fakeService{}, store)

	rec := doRequest(t, router, http.MethodPut, "/providers/"+uuid.NewString()+"/availability/1", SetWindowsRequest{
		Windows: []WindowView{{Start: "09:00", End: "12:00"}, {Start: "11:00", End: "14:00"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_windows", decodeError(t, rec).Error)
}

func TestSetWindowsEndpointBadWeekday(t *testing.T) {
	router := newTestRouter(&fakeService{}, nil)

	rec := doRequest(t, router, http.MethodPut, "/providers/"+uuid.NewString()+"/availability/7", SetWindowsRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_weekday", decodeError(t, rec).Error)
}

func TestSetExceptionEndpoint(t *testing.T) {
	store := &fakeAvailStore{}
	router := newTestRouter(&fakeService{}, store)
	providerID := uuid.New()

	rec := doRequest(t, router, http.MethodPut, "/providers/"+providerID.String()+"/exceptions/2026-01-05", SetExceptionRequest{
		Start: "10:00",
		End:   "14:00",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	require.NotNil(t, store.lastExc)
	assert.False(t, store.lastExc.Closed)
	assert.Equal(t, 10*60, store.lastExc.Start)
	assert.Equal(t, 14*60, store.lastExc.End)

	rec = doRequest(t, router, http.MethodPut, "/providers/"+providerID.String()+"/exceptions/2026-01-06", SetExceptionRequest{Closed: true})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, store.lastExc.Closed)
}
