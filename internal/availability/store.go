package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store holds each provider's recurring weekly windows and
// date-specific exceptions. Administrative writes are last-write-wins;
// these records are not contended on the hot path.
type Store interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)

	WindowsFor(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) ([]Window, error)
	ExceptionFor(ctx context.Context, providerID uuid.UUID, date time.Time) (*Exception, error)

	SetWindows(ctx context.Context, providerID uuid.UUID, weekday time.Weekday, windows []Window) error
	SetException(ctx context.Context, exc Exception) error
}

// EffectiveWindows resolves the windows open on date, applying any
// exception over the recurring ones. The provider is verified first:
// an unknown provider is ErrProviderNotFound, never an empty schedule.
func EffectiveWindows(ctx context.Context, s Store, providerID uuid.UUID, date time.Time) ([]Window, error) {
	if _, err := s.GetProviderByID(ctx, providerID); err != nil {
		return nil, err
	}

	exc, err := s.ExceptionFor(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return Effective(nil, exc), nil
	}
	recurring, err := s.WindowsFor(ctx, providerID, date.Weekday())
	if err != nil {
		return nil, err
	}
	return Effective(recurring, nil), nil
}
