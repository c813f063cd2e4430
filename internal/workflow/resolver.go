package workflow

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"expense-approval/internal/apperror"
	"expense-approval/internal/model"
)

// Directory answers the identity questions route resolution needs.
type Directory interface {
	// FirstUserWithRole returns the first user (ordered by username) holding role.
	FirstUserWithRole(ctx context.Context, role string) (uuid.UUID, error)
	// DepartmentHead returns the head of the department.
	DepartmentHead(ctx context.Context, departmentID uuid.UUID) (uuid.UUID, error)
}

// StepApplies reports whether step applies to an application with the given total.
// A step with an amount range never applies to an application without a total.
func StepApplies(step model.ApprovalStep, total decimal.NullDecimal) bool {
	if !step.HasAmountRange() {
		return true
	}
	if !total.Valid {
		return false
	}
	if step.MinAmount.Valid && total.Decimal.LessThan(step.MinAmount.Decimal) {
		return false
	}
	if step.MaxAmount.Valid && total.Decimal.GreaterThan(step.MaxAmount.Decimal) {
		return false
	}
	return true
}

// SortSteps orders steps by step number in place.
func SortSteps(steps []model.ApprovalStep) {
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].StepNumber < steps[j].StepNumber })
}

// NextStep returns the first required step numbered after `after` that applies to total.
func NextStep(steps []model.ApprovalStep, total decimal.NullDecimal, after int) (model.ApprovalStep, bool) {
	ordered := make([]model.ApprovalStep, len(steps))
	copy(ordered, steps)
	SortSteps(ordered)
	for _, s := range ordered {
		if s.StepNumber <= after || !s.IsRequired {
			continue
		}
		if StepApplies(s, total) {
			return s, true
		}
	}
	return model.ApprovalStep{}, false
}

// FindStep returns the step with the given number.
func FindStep(steps []model.ApprovalStep, number int) (model.ApprovalStep, bool) {
	for _, s := range steps {
		if s.StepNumber == number {
			return s, true
		}
	}
	return model.ApprovalStep{}, false
}

// ResolveApprover turns a step into the user who must act on it for app.
func ResolveApprover(ctx context.Context, dir Directory, step model.ApprovalStep, app *model.Application) (uuid.UUID, error) {
	switch step.ApproverType {
	case model.ApproverTypeUser:
		if step.ApproverUserID == nil || *step.ApproverUserID == uuid.Nil {
			return uuid.Nil, apperror.Validation("step %d has no approver user", step.StepNumber)
		}
		return *step.ApproverUserID, nil
	case model.ApproverTypeRole:
		if step.RoleName == "" {
			return uuid.Nil, apperror.Validation("step %d has no role", step.StepNumber)
		}
		id, err := dir.FirstUserWithRole(ctx, step.RoleName)
		if err != nil {
			return uuid.Nil, unresolved(step, err)
		}
		return id, nil
	case model.ApproverTypeDepartmentHead:
		dept := app.DepartmentID
		if step.ApproverDepartmentID != nil {
			dept = *step.ApproverDepartmentID
		}
		id, err := dir.DepartmentHead(ctx, dept)
		if err != nil {
			return uuid.Nil, unresolved(step, err)
		}
		return id, nil
	}
	return uuid.Nil, apperror.Validation("step %d has unknown approver type %q", step.StepNumber, step.ApproverType)
}

// Lookups that find nobody are a route configuration problem; store failures stay as they are.
func unresolved(step model.ApprovalStep, err error) error {
	if apperror.KindOf(err) == apperror.KindNotFound {
		return apperror.Validation("step %d: no approver could be resolved: %v", step.StepNumber, err)
	}
	return err
}

// Resolution is the outcome of walking a route forward from a satisfied step.
type Resolution struct {
	// AutoApproved holds steps satisfied because their approver is the applicant.
	AutoApproved []model.ApprovalStep
	// Active is nil when the route is complete.
	Active     *model.ApprovalStep
	ApproverID uuid.UUID
}

// Complete reports whether no step is left to act on.
func (r Resolution) Complete() bool { return r.Active == nil }

// Advance walks steps after `after`, satisfying auto-approve steps, and stops at
// the first step that needs a human decision.
func Advance(ctx context.Context, dir Directory, steps []model.ApprovalStep, app *model.Application, after int) (Resolution, error) {
	var res Resolution
	for {
		step, ok := NextStep(steps, app.TotalAmount, after)
		if !ok {
			return res, nil
		}
		approver, err := ResolveApprover(ctx, dir, step, app)
		if err != nil {
			return Resolution{}, err
		}
		if step.AutoApproveIfSameUser && approver == app.ApplicantID {
			res.AutoApproved = append(res.AutoApproved, step)
			after = step.StepNumber
			continue
		}
		res.Active = &step
		res.ApproverID = approver
		return res, nil
	}
}

// ActiveRoute picks the route in effect among a department's active routes: the newest one.
func ActiveRoute(routes []model.ApprovalRoute) (model.ApprovalRoute, bool) {
	var best model.ApprovalRoute
	found := false
	for _, r := range routes {
		if !r.IsActive {
			continue
		}
		if !found || r.CreatedAt.After(best.CreatedAt) {
			best = r
			found = true
		}
	}
	return best, found
}
