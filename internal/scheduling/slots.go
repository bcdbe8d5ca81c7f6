package scheduling

import (
	"time"

	"github.com/caredesk/provider-scheduling/internal/availability"
)

// BuildSlots sweeps the effective windows of one date and cuts the free
// time into consecutive duration-sized slots. busy must be the date's
// non-cancelled intervals sorted by start; windows must be sorted and
// non-overlapping (the availability store guarantees both).
//
// The sweep starts at each window's start, jumps past any booked
// interval that overlaps the free pointer, and discards remaining spans
// shorter than the duration. Past dates yield nothing; on the current
// date, slots whose start has already elapsed are dropped.
func BuildSlots(windows []availability.Window, busy []Slot, durationMin int, day, now time.Time) []Slot {
	if durationMin <= 0 {
		return nil
	}

	today := availability.Day(now)
	day = availability.Day(day)
	if day.Before(today) {
		return nil
	}

	nowMin := -1
	if day.Equal(today) {
		nowMin = now.UTC().Hour()*60 + now.UTC().Minute()
	}

	slots := make([]Slot, 0)
	for _, w := range windows {
		cur := w.Start
		for cur+durationMin <= w.End {
			if b, ok := firstConflict(busy, cur, cur+durationMin); ok {
				cur = b.End
				continue
			}
			if cur >= nowMin {
				slots = append(slots, Slot{Start: cur, End: cur + durationMin})
			}
			cur += durationMin
		}
	}

	return slots
}

// firstConflict returns the earliest busy interval overlapping
// [start, end), relying on busy being sorted by start.
func firstConflict(busy []Slot, start, end int) (Slot, bool) {
	for _, b := range busy {
		if b.Start >= end {
			break
		}
		if overlaps(start, end, b.Start, b.End) {
			return b, true
		}
	}
	return Slot{}, false
}
