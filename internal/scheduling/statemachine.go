package scheduling

import (
	"errors"
	"time"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// transitions is the complete table of legal status changes. Any
// (status, action) pair not listed is rejected. Cancel is legal from
// every non-terminal status; no-show additionally requires the
// scheduled start to have passed.
var transitions = map[Status]map[Action]Status{
	StatusScheduled: {
		ActionConfirm: StatusConfirmed,
		ActionCheckIn: StatusCheckedIn,
		ActionCancel:  StatusCancelled,
		ActionNoShow:  StatusNoShow,
	},
	StatusConfirmed: {
		ActionCheckIn: StatusCheckedIn,
		ActionCancel:  StatusCancelled,
		ActionNoShow:  StatusNoShow,
	},
	StatusCheckedIn: {
		ActionStart:  StatusInProgress,
		ActionCancel: StatusCancelled,
	},
	StatusInProgress: {
		ActionComplete: StatusCompleted,
		ActionCancel:   StatusCancelled,
	},
}

// NextStatus applies action to the current status. It is a pure
// function: the clock and scheduled start come in as arguments and no
// I/O happens here.
func NextStatus(current Status, action Action, now, scheduledStart time.Time) (Status, error) {
	next, ok := transitions[current][action]
	if !ok {
		return "", ErrInvalidTransition
	}
	if action == ActionNoShow && now.Before(scheduledStart) {
		return "", ErrInvalidTransition
	}
	return next, nil
}
