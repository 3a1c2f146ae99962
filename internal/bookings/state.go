package bookings

import (
	"fmt"

	"github.com/expertrait/expertrait-backend/pkg/enums"
	pkgerrors "github.com/expertrait/expertrait-backend/pkg/errors"
)

// Action names a lifecycle operation a caller can attempt on a booking.
type Action string

const (
	ActionAssign   Action = "assign"
	ActionCancel   Action = "cancel"
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
)

// allowedTransitions maps each action to the statuses it may start from
// and the status it lands on. Cancellation is only possible before work
// starts; nothing leaves a terminal status.
var allowedTransitions = map[Action]struct {
	from []enums.BookingStatus
	to   enums.BookingStatus
}{
	ActionAssign:   {from: []enums.BookingStatus{enums.BookingStatusPending}, to: enums.BookingStatusAccepted},
	ActionCancel:   {from: []enums.BookingStatus{enums.BookingStatusPending, enums.BookingStatusAccepted}, to: enums.BookingStatusCancelled},
	ActionCheckIn:  {from: []enums.BookingStatus{enums.BookingStatusAccepted}, to: enums.BookingStatusInProgress},
	ActionCheckOut: {from: []enums.BookingStatus{enums.BookingStatusInProgress}, to: enums.BookingStatusCompleted},
}

// nextStatus resolves the status an action moves a booking to, or a
// state conflict error naming the current status and the action.
func nextStatus(current enums.BookingStatus, action Action) (enums.BookingStatus, error) {
	rule, ok := allowedTransitions[action]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown booking action %q", action))
	}
	for _, from := range rule.from {
		if from == current {
			return rule.to, nil
		}
	}
	return "", pkgerrors.New(
		pkgerrors.CodeStateConflict,
		fmt.Sprintf("booking in status %s cannot %s", current, action),
	)
}
