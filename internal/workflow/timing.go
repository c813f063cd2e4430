package workflow

import (
	"time"

	"expense-approval/internal/apperror"
	"expense-approval/internal/model"
)

// ProcessingTime is the time from the first submission to the entry that made the
// application terminal. ok is false while the application is still in flight.
func ProcessingTime(app *model.Application, history []model.ApprovalLog) (time.Duration, bool) {
	var start, end *time.Time
	for i := range history {
		e := &history[i]
		if start == nil && e.Action == model.ActionSubmit {
			start = &e.CreatedAt
		}
		if e.StatusAfter.IsTerminal() {
			end = &e.CreatedAt
		}
	}
	if start == nil {
		start = app.SubmittedAt
	}
	if end == nil && app.Status == model.StatusApproved {
		end = app.ApprovedAt
	}
	if start == nil || end == nil || end.Before(*start) {
		return 0, false
	}
	return end.Sub(*start), true
}

// AverageProcessingTime returns the mean of durations, or zero for none.
func AverageProcessingTime(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return sum / time.Duration(len(durations))
}

// DaysWaiting is the number of whole days an application awaiting a decision has
// spent in its current state.
func DaysWaiting(app *model.Application, history []model.ApprovalLog, now time.Time) (int, bool) {
	if !app.Status.AwaitingDecision() {
		return 0, false
	}
	var since *time.Time
	if n := len(history); n > 0 && history[n-1].StatusAfter == app.Status {
		since = &history[n-1].CreatedAt
	}
	if since == nil {
		since = app.StatusChangedAt
	}
	if since == nil {
		since = app.SubmittedAt
	}
	if since == nil || now.Before(*since) {
		return 0, true
	}
	return int(now.Sub(*since) / (24 * time.Hour)), true
}

// ValidateWalk checks that ordered history is a legal walk of the state machine.
func ValidateWalk(history []model.ApprovalLog) error {
	for i, e := range history {
		if i > 0 && e.StatusBefore != history[i-1].StatusAfter {
			return apperror.Validation("entry %d starts in %q but the previous entry ended in %q",
				e.Sequence, e.StatusBefore, history[i-1].StatusAfter)
		}
		if !legalOutcome(e.StatusBefore, e.Action, e.StatusAfter) {
			return apperror.Validation("entry %d: %q from %q to %q is not a legal transition",
				e.Sequence, e.Action, e.StatusBefore, e.StatusAfter)
		}
	}
	return nil
}

// An approve that leaves steps to go stays in pending.
func legalOutcome(before model.Status, action model.Action, after model.Status) bool {
	to, err := Transition(before, action)
	if err != nil {
		return false
	}
	return to == after || (action == model.ActionApprove && after == model.StatusPending)
}
