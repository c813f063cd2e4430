// Package workflow holds the approval state machine, route resolution and
// audit-walk rules. It has no storage dependencies.
package workflow

import (
	"expense-approval/internal/apperror"
	"expense-approval/internal/model"
)

type rule struct {
	from []model.Status
	to   model.Status
}

// Delegate keeps the status; its target is filled in by Transition.
var transitions = map[model.Action]rule{
	model.ActionApprove:  {from: []model.Status{model.StatusPending, model.StatusSubmitted}, to: model.StatusApproved},
	model.ActionReject:   {from: []model.Status{model.StatusPending, model.StatusSubmitted}, to: model.StatusRejected},
	model.ActionReturn:   {from: []model.Status{model.StatusPending, model.StatusSubmitted}, to: model.StatusReturned},
	model.ActionHold:     {from: []model.Status{model.StatusPending, model.StatusSubmitted}, to: model.StatusOnHold},
	model.ActionDelegate: {from: []model.Status{model.StatusPending, model.StatusSubmitted}, to: model.StatusPending},
	model.ActionSubmit:   {from: []model.Status{model.StatusDraft}, to: model.StatusPending},
	model.ActionResubmit: {from: []model.Status{model.StatusReturned}, to: model.StatusPending},
	model.ActionResume:   {from: []model.Status{model.StatusOnHold}, to: model.StatusPending},
}

// Actions lists every action the state machine knows.
var Actions = []model.Action{
	model.ActionApprove, model.ActionReject, model.ActionReturn, model.ActionHold,
	model.ActionDelegate, model.ActionSubmit, model.ActionResubmit, model.ActionResume,
}

// ValidAction reports whether a is a known action.
func ValidAction(a model.Action) bool {
	_, ok := transitions[a]
	return ok
}

// Transition returns the status an application moves to when action is applied in status from.
// An approve that leaves further steps is turned into a stay in pending by the processor.
func Transition(from model.Status, action model.Action) (model.Status, error) {
	r, ok := transitions[action]
	if !ok {
		return "", apperror.Validation("unknown action %q", action)
	}
	if from.IsTerminal() {
		return "", apperror.InvalidTransition(string(from), string(action))
	}
	for _, s := range r.from {
		if s == from {
			return r.to, nil
		}
	}
	return "", apperror.InvalidTransition(string(from), string(action))
}

// Allowed lists the actions that are legal in status s.
func Allowed(s model.Status) []model.Action {
	var out []model.Action
	for _, a := range Actions {
		if _, err := Transition(s, a); err == nil {
			out = append(out, a)
		}
	}
	return out
}

// RequiresCurrentApprover reports whether only the designated current approver may take action.
func RequiresCurrentApprover(a model.Action) bool {
	switch a {
	case model.ActionApprove, model.ActionReject, model.ActionReturn, model.ActionHold, model.ActionDelegate:
		return true
	}
	return false
}

// ApproverHeldIn reports whether current_approver_id may be non-nil in status s.
func ApproverHeldIn(s model.Status) bool {
	switch s {
	case model.StatusPending, model.StatusSubmitted, model.StatusOnHold, model.StatusReturned:
		return true
	}
	return false
}
