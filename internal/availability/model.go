package availability

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrBadClock         = errors.New("clock value must be HH:MM")
	ErrWindowOrder      = errors.New("window start must be before end")
	ErrWindowOverlap    = errors.New("windows for the same day must not overlap")
)

// Provider is the resource being scheduled against.
type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Window is a recurring open interval for one day of the week.
// Start and End are minutes from midnight, half-open [Start, End).
type Window struct {
	ProviderID uuid.UUID
	Weekday    time.Weekday
	Start      int
	End        int
}

// Exception replaces a provider's recurring windows on a single date.
// Either the date is closed outright, or Start/End describe the one
// window that is open instead of the weekly ones.
type Exception struct {
	ProviderID uuid.UUID
	Date       time.Time
	Closed     bool
	Start      int
	End        int
}

// ParseClock converts "HH:MM" to minutes from midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes from midnight as "HH:MM".
func FormatClock(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidateWindows checks ordering and pairwise non-overlap for one
// provider+day. The input is sorted in place by start.
func ValidateWindows(windows []Window) error {
	for _, w := range windows {
		if w.Start >= w.End {
			return ErrWindowOrder
		}
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].Start < windows[j].Start })
	for i := 1; i < len(windows); i++ {
		if windows[i].Start < windows[i-1].End {
			return ErrWindowOverlap
		}
	}
	return nil
}

// Effective resolves the windows that actually apply on a date: an
// exception fully replaces the recurring windows, a Closed exception
// leaves nothing open. The result is sorted by start.
func Effective(recurring []Window, exc *Exception) []Window {
	if exc != nil {
		if exc.Closed {
			return nil
		}
		return []Window{{ProviderID: exc.ProviderID, Weekday: exc.Date.Weekday(), Start: exc.Start, End: exc.End}}
	}
	out := make([]Window, len(recurring))
	copy(out, recurring)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
