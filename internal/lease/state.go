package lease

import (
	"time"

	"github.com/nyumbahub/rentals/pkg/apperr"
	"github.com/nyumbahub/rentals/pkg/dates"
)

// Action names a lifecycle transition
type Action string

const (
	ActionActivate  Action = "activate"
	ActionTerminate Action = "terminate"
	ActionRenew     Action = "renew"
	ActionExpire    Action = "expire"
)

// Command is a requested transition and the facts its guards need
type Command struct {
	Action Action
	// At is the evaluation date for expire and renew, and the termination date
	// for terminate
	At time.Time
	// Override lets an admin activate without a paid deposit
	Override bool
	// RenewalWindowDays limits how early renew is allowed; negative disables it
	RenewalWindowDays int
}

// Transition is the single authority on lease status changes. It returns the
// status l moves to, or a classified error leaving l untouched. Expiring a
// lease that is already terminal returns its current status.
func Transition(l *Lease, cmd Command) (Status, error) {
	switch cmd.Action {
	case ActionActivate:
		if l.Status != StatusDraft {
			return l.Status, apperr.InvalidState("only draft leases can be activated, lease is " + string(l.Status))
		}
		if !l.DepositPaid && !cmd.Override {
			return l.Status, apperr.Precondition("deposit must be paid before activation")
		}
		return StatusActive, nil

	case ActionTerminate:
		if l.Status != StatusActive && l.Status != StatusDraft {
			return l.Status, apperr.InvalidState("only draft or active leases can be terminated, lease is " + string(l.Status))
		}
		if dates.Day(cmd.At).Before(dates.Day(l.StartDate)) {
			return l.Status, apperr.Validation("termination date cannot be before the lease start date")
		}
		return StatusTerminated, nil

	case ActionRenew:
		if l.Status != StatusActive {
			return l.Status, apperr.InvalidState("only active leases can be renewed, lease is " + string(l.Status))
		}
		if cmd.RenewalWindowDays >= 0 {
			remaining := dates.DaysBetween(cmd.At, l.EndDate)
			if remaining > cmd.RenewalWindowDays {
				return l.Status, apperr.Precondition("lease is not yet within the renewal window")
			}
		}
		return StatusRenewed, nil

	case ActionExpire:
		if l.Status.Terminal() {
			return l.Status, nil
		}
		if l.Status != StatusActive {
			return l.Status, apperr.InvalidState("only active leases can expire, lease is " + string(l.Status))
		}
		if !dates.Day(l.EndDate).Before(dates.Day(cmd.At)) {
			return l.Status, apperr.Precondition("lease has not reached its end date")
		}
		return StatusExpired, nil
	}

	return l.Status, apperr.Validationf("unknown lease action %q", cmd.Action)
}
