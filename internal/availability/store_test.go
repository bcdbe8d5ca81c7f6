package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sparseStore behaves like the Postgres store: reads for a provider that
// does not exist come back empty without an error, and only the provider
// lookup itself can say the provider is unknown.
type sparseStore struct {
	known     uuid.UUID
	windows   []Window
	exception *Exception
}

func (s *sparseStore) GetProviderByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	if id != s.known {
		return nil, ErrProviderNotFound
	}
	return &Provider{ID: id, Name: "Dr. Test"}, nil
}

func (s *sparseStore) WindowsFor(context.Context, uuid.UUID, time.Weekday) ([]Window, error) {
	return s.windows, nil
}

func (s *sparseStore) ExceptionFor(context.Context, uuid.UUID, time.Time) (*Exception, error) {
	return s.exception, nil
}

func (s *sparseStore) SetWindows(context.Context, uuid.UUID, time.Weekday, []Window) error {
	return nil
}

func (s *sparseStore) SetException(context.Context, Exception) error {
	return nil
}

func TestEffectiveWindowsUnknownProvider(t *testing.T) {
	store := &sparseStore{known: uuid.New()}
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	// The store yields empty reads for any id; the provider check must
	// still surface not-found instead of an empty schedule.
	_, err := EffectiveWindows(context.Background(), store, uuid.New(), monday)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestEffectiveWindowsKnownProvider(t *testing.T) {
	pid := uuid.New()
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	store := &sparseStore{
		known: pid,
		windows: []Window{
			{ProviderID: pid, Weekday: time.Monday, Start: 9 * 60, End: 12 * 60},
		},
	}

	got, err := EffectiveWindows(context.Background(), store, pid, monday)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 9*60, got[0].Start)
}

func TestEffectiveWindowsExceptionWins(t *testing.T) {
	pid := uuid.New()
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	store := &sparseStore{
		known: pid,
		windows: []Window{
			{ProviderID: pid, Weekday: time.Monday, Start: 9 * 60, End: 12 * 60},
		},
		exception: &Exception{ProviderID: pid, Date: monday, Start: 14 * 60, End: 16 * 60},
	}

	got, err := EffectiveWindows(context.Background(), store, pid, monday)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 14*60, got[0].Start)
	assert.Equal(t, 16*60, got[0].End)
}
