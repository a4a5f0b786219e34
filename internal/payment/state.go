package payment

import "github.com/nyumbahub/rentals/pkg/apperr"

// Transition validates a status change. Only pending payments move, and only
// to a settled state.
func Transition(from, to Status) (Status, error) {
	if from != StatusPending {
		return from, apperr.InvalidState("payment is already " + string(from))
	}
	switch to {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return to, nil
	}
	return from, apperr.Validationf("cannot move a pending payment to %q", to)
}
