package workflow

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"expense-approval/internal/apperror"
	"expense-approval/internal/model"
)

func roleStep(role string) model.ApprovalStep {
	return model.ApprovalStep{ApproverType: model.ApproverTypeRole, RoleName: role, IsRequired: true}
}

func stepNumbers(steps []model.ApprovalStep) []int {
	out := make([]int, len(steps))
	for i, s := range steps {
		out[i] = s.StepNumber
	}
	return out
}

func TestRemoveMiddleStepRenumbers(t *testing.T) {
	d := &RouteDraft{Name: "travel", DepartmentID: uuid.New()}
	d.AddStep(roleStep("manager"))
	d.AddStep(roleStep("director"))
	d.AddStep(roleStep("finance"))

	require.NoError(t, d.RemoveStep(2))
	assert.Equal(t, []int{1, 2}, stepNumbers(d.Steps))
	assert.Equal(t, "manager", d.Steps[0].RoleName)
	assert.Equal(t, "finance", d.Steps[1].RoleName)
	assert.NoError(t, d.Validate())

	err := d.RemoveStep(7)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestRenumberAfterArbitraryEdits(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := &RouteDraft{Name: "r", DepartmentID: uuid.New()}
		ops := rapid.SliceOfN(rapid.IntRange(0, 9), 1, 40).Draw(t, "ops")
		for _, op := range ops {
			if op < 6 || len(d.Steps) == 0 {
				d.AddStep(roleStep("manager"))
				continue
			}
			n := rapid.IntRange(1, len(d.Steps)).Draw(t, "remove")
			if err := d.RemoveStep(n); err != nil {
				t.Fatalf("remove %d: %v", n, err)
			}
		}
		for i, s := range d.Steps {
			if s.StepNumber != i+1 {
				t.Fatalf("step at %d numbered %d", i, s.StepNumber)
			}
		}
	})
}

func TestUpdateStepField(t *testing.T) {
	d := &RouteDraft{Name: "r", DepartmentID: uuid.New()}
	d.AddStep(roleStep("manager"))

	user := uuid.New()
	require.NoError(t, d.UpdateStepField(1, "approver_type", model.ApproverTypeUser))
	require.NoError(t, d.UpdateStepField(1, "approver_user_id", user.String()))
	require.NoError(t, d.UpdateStepField(1, "min_amount", "100.50"))
	require.NoError(t, d.UpdateStepField(1, "can_delegate", "true"))
	assert.Equal(t, user, *d.Steps[0].ApproverUserID)
	assert.Equal(t, "100.5", d.Steps[0].MinAmount.Decimal.String())
	assert.True(t, d.Steps[0].CanDelegate)

	require.NoError(t, d.UpdateStepField(1, "min_amount", ""))
	assert.False(t, d.Steps[0].MinAmount.Valid)

	assert.True(t, errors.Is(d.UpdateStepField(1, "max_amount", "lots"), apperror.ErrValidation))
	assert.True(t, errors.Is(d.UpdateStepField(1, "colour", "red"), apperror.ErrValidation))
	assert.True(t, errors.Is(d.UpdateStepField(3, "role_name", "x"), apperror.ErrValidation))
}

func TestValidate(t *testing.T) {
	d := &RouteDraft{DepartmentID: uuid.New()}
	d.AddStep(roleStep("manager"))
	assert.True(t, errors.Is(d.Validate(), apperror.ErrValidation), "missing name")

	d.Name = "r"
	d.DepartmentID = uuid.Nil
	assert.True(t, errors.Is(d.Validate(), apperror.ErrValidation), "missing department")

	d.DepartmentID = uuid.New()
	require.NoError(t, d.Validate())

	d.Steps[0].MinAmount = amount(500)
	d.Steps[0].MaxAmount = amount(100)
	assert.True(t, errors.Is(d.Validate(), apperror.ErrValidation), "inverted range")

	d.Steps[0] = model.ApprovalStep{StepNumber: 1, ApproverType: model.ApproverTypeUser}
	assert.True(t, errors.Is(d.Validate(), apperror.ErrValidation), "user step without user")
}
