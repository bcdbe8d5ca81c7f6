package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/caredesk/provider-scheduling/internal/availability"
	"github.com/caredesk/provider-scheduling/internal/scheduling"
)

type SlotView struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type SlotsResponse struct {
	ProviderID uuid.UUID  `json:"provider_id"`
	Date       string     `json:"date"`
	Duration   int        `json:"duration_minutes"`
	Slots      []SlotView `json:"slots"`
}

type BookAppointmentRequest struct {
	ProviderID string  `json:"provider_id"`
	SubjectID  string  `json:"subject_id"`
	Date       string  `json:"date"`
	Start      string  `json:"start"`
	End        string  `json:"end"`
	Type       string  `json:"type"`
	Reason     *string `json:"reason,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

type RescheduleRequest struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type WindowView struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type SetWindowsRequest struct {
	Windows []WindowView `json:"windows"`
}

type SetExceptionRequest struct {
	Closed bool   `json:"closed"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
}

type AppointmentView struct {
	ID           uuid.UUID `json:"id"`
	ProviderID   uuid.UUID `json:"provider_id"`
	SubjectID    uuid.UUID `json:"subject_id"`
	Date         string    `json:"date"`
	Start        string    `json:"start"`
	End          string    `json:"end"`
	Status       string    `json:"status"`
	Type         string    `json:"type,omitempty"`
	Reason       *string   `json:"reason,omitempty"`
	Notes        *string   `json:"notes,omitempty"`
	CancelReason *string   `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func appointmentView(a *scheduling.Appointment) AppointmentView {
	return AppointmentView{
		ID:           a.ID,
		ProviderID:   a.ProviderID,
		SubjectID:    a.SubjectID,
		Date:         a.Day.Format("2006-01-02"),
		Start:        availability.FormatClock(a.StartMin),
		End:          availability.FormatClock(a.EndMin),
		Status:       string(a.Status),
		Type:         a.Type,
		Reason:       a.Reason,
		Notes:        a.Notes,
		CancelReason: a.CancelReason,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}
