package workflow

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"expense-approval/internal/apperror"
	"expense-approval/internal/model"
)

// RouteDraft is a route being edited before it is saved.
type RouteDraft struct {
	Name         string
	Description  string
	DepartmentID uuid.UUID
	IsActive     bool
	Steps        []model.ApprovalStep
}

// NewRouteDraft copies route into an editable draft.
func NewRouteDraft(route model.ApprovalRoute) *RouteDraft {
	d := &RouteDraft{
		Name:         route.Name,
		Description:  route.Description,
		DepartmentID: route.DepartmentID,
		IsActive:     route.IsActive,
		Steps:        make([]model.ApprovalStep, len(route.Steps)),
	}
	copy(d.Steps, route.Steps)
	d.Renumber()
	return d
}

// AddStep appends step as the last one.
func (d *RouteDraft) AddStep(step model.ApprovalStep) {
	step.StepNumber = len(d.Steps) + 1
	d.Steps = append(d.Steps, step)
}

// RemoveStep removes the step numbered n and renumbers the rest.
func (d *RouteDraft) RemoveStep(n int) error {
	idx := d.index(n)
	if idx < 0 {
		return apperror.Validation("step %d does not exist", n)
	}
	d.Steps = append(d.Steps[:idx], d.Steps[idx+1:]...)
	d.Renumber()
	return nil
}

// UpdateStepField sets one field of step n from its textual value.
// An empty value clears optional fields.
func (d *RouteDraft) UpdateStepField(n int, field, value string) error {
	idx := d.index(n)
	if idx < 0 {
		return apperror.Validation("step %d does not exist", n)
	}
	s := &d.Steps[idx]
	var err error
	switch field {
	case "approver_type":
		s.ApproverType = value
	case "role_name":
		s.RoleName = value
	case "approver_user_id":
		s.ApproverUserID, err = parseOptionalUUID(value)
	case "approver_department_id":
		s.ApproverDepartmentID, err = parseOptionalUUID(value)
	case "min_amount":
		s.MinAmount, err = parseOptionalAmount(value)
	case "max_amount":
		s.MaxAmount, err = parseOptionalAmount(value)
	case "is_required":
		s.IsRequired, err = strconv.ParseBool(value)
	case "can_delegate":
		s.CanDelegate, err = strconv.ParseBool(value)
	case "auto_approve_if_same_user":
		s.AutoApproveIfSameUser, err = strconv.ParseBool(value)
	default:
		return apperror.Validation("unknown step field %q", field)
	}
	if err != nil {
		return apperror.Validation("step %d: invalid %s %q", n, field, value)
	}
	return nil
}

// Renumber sorts steps by their current number and rewrites them as 1..N.
func (d *RouteDraft) Renumber() {
	SortSteps(d.Steps)
	for i := range d.Steps {
		d.Steps[i].StepNumber = i + 1
	}
}

// Validate checks the draft can be saved.
func (d *RouteDraft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return apperror.Validation("route name is required")
	}
	if d.DepartmentID == uuid.Nil {
		return apperror.Validation("department is required")
	}
	if len(d.Steps) == 0 {
		return apperror.Validation("route needs at least one step")
	}
	for i, s := range d.Steps {
		if s.StepNumber != i+1 {
			return apperror.Validation("step numbers must be contiguous from 1, got %d at position %d", s.StepNumber, i+1)
		}
		if err := ValidateStep(s); err != nil {
			return err
		}
	}
	return nil
}

// ValidateStep checks a single step is well formed.
func ValidateStep(s model.ApprovalStep) error {
	switch s.ApproverType {
	case model.ApproverTypeUser:
		if s.ApproverUserID == nil || *s.ApproverUserID == uuid.Nil {
			return apperror.Validation("step %d: approver_user_id is required for type user", s.StepNumber)
		}
	case model.ApproverTypeRole:
		if strings.TrimSpace(s.RoleName) == "" {
			return apperror.Validation("step %d: role_name is required for type role", s.StepNumber)
		}
	case model.ApproverTypeDepartmentHead:
	default:
		return apperror.Validation("step %d: unknown approver_type %q", s.StepNumber, s.ApproverType)
	}
	if s.MinAmount.Valid && s.MinAmount.Decimal.IsNegative() {
		return apperror.Validation("step %d: min_amount must not be negative", s.StepNumber)
	}
	if s.MinAmount.Valid && s.MaxAmount.Valid && s.MinAmount.Decimal.GreaterThan(s.MaxAmount.Decimal) {
		return apperror.Validation("step %d: min_amount is greater than max_amount", s.StepNumber)
	}
	return nil
}

func (d *RouteDraft) index(n int) int {
	for i, s := range d.Steps {
		if s.StepNumber == n {
			return i
		}
	}
	return -1
}

func parseOptionalUUID(v string) (*uuid.UUID, error) {
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseOptionalAmount(v string) (decimal.NullDecimal, error) {
	if v == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
