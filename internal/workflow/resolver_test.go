package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expense-approval/internal/apperror"
	"expense-approval/internal/model"
)

type fakeDirectory struct {
	roles map[string]uuid.UUID
	heads map[uuid.UUID]uuid.UUID
}

func (d fakeDirectory) FirstUserWithRole(_ context.Context, role string) (uuid.UUID, error) {
	if id, ok := d.roles[role]; ok {
		return id, nil
	}
	return uuid.Nil, apperror.NotFound("user with role", role)
}

func (d fakeDirectory) DepartmentHead(_ context.Context, dept uuid.UUID) (uuid.UUID, error) {
	if id, ok := d.heads[dept]; ok {
		return id, nil
	}
	return uuid.Nil, apperror.NotFound("department head", dept.String())
}

func amount(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func userStep(n int, user uuid.UUID) model.ApprovalStep {
	return model.ApprovalStep{StepNumber: n, ApproverType: model.ApproverTypeUser, ApproverUserID: &user, IsRequired: true}
}

func TestStepApplies(t *testing.T) {
	ranged := model.ApprovalStep{MinAmount: amount(100), MaxAmount: amount(200)}
	assert.True(t, StepApplies(ranged, amount(100)))
	assert.True(t, StepApplies(ranged, amount(200)))
	assert.False(t, StepApplies(ranged, amount(201)))
	assert.False(t, StepApplies(ranged, decimal.NullDecimal{}))

	openEnded := model.ApprovalStep{MinAmount: amount(1000)}
	assert.True(t, StepApplies(openEnded, amount(5000000)))
	assert.False(t, StepApplies(openEnded, amount(999)))

	assert.True(t, StepApplies(model.ApprovalStep{}, decimal.NullDecimal{}))
}

func TestNextStepSelectsByAmount(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	step1 := userStep(1, a)
	step1.MinAmount, step1.MaxAmount = amount(0), amount(50000)
	step2 := userStep(2, b)
	step2.MinAmount, step2.MaxAmount = amount(50001), amount(999999999)

	got, ok := NextStep([]model.ApprovalStep{step2, step1}, amount(60000), 0)
	require.True(t, ok)
	assert.Equal(t, 2, got.StepNumber)
	assert.Equal(t, b, *got.ApproverUserID)

	got, ok = NextStep([]model.ApprovalStep{step1, step2}, amount(100), 0)
	require.True(t, ok)
	assert.Equal(t, 1, got.StepNumber)

	_, ok = NextStep([]model.ApprovalStep{step1, step2}, amount(100), 1)
	assert.False(t, ok)
}

func TestNextStepSkipsOptionalSteps(t *testing.T) {
	optional := userStep(1, uuid.New())
	optional.IsRequired = false
	required := userStep(2, uuid.New())

	got, ok := NextStep([]model.ApprovalStep{optional, required}, decimal.NullDecimal{}, 0)
	require.True(t, ok)
	assert.Equal(t, 2, got.StepNumber)
}

func TestResolveApprover(t *testing.T) {
	ctx := context.Background()
	manager, head, otherHead := uuid.New(), uuid.New(), uuid.New()
	dept, otherDept := uuid.New(), uuid.New()
	dir := fakeDirectory{
		roles: map[string]uuid.UUID{"manager": manager},
		heads: map[uuid.UUID]uuid.UUID{dept: head, otherDept: otherHead},
	}
	app := &model.Application{DepartmentID: dept}

	id, err := ResolveApprover(ctx, dir, model.ApprovalStep{ApproverType: model.ApproverTypeRole, RoleName: "manager"}, app)
	require.NoError(t, err)
	assert.Equal(t, manager, id)

	id, err = ResolveApprover(ctx, dir, model.ApprovalStep{ApproverType: model.ApproverTypeDepartmentHead}, app)
	require.NoError(t, err)
	assert.Equal(t, head, id)

	id, err = ResolveApprover(ctx, dir, model.ApprovalStep{ApproverType: model.ApproverTypeDepartmentHead, ApproverDepartmentID: &otherDept}, app)
	require.NoError(t, err)
	assert.Equal(t, otherHead, id)

	_, err = ResolveApprover(ctx, dir, model.ApprovalStep{ApproverType: model.ApproverTypeRole, RoleName: "cfo"}, app)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = ResolveApprover(ctx, dir, model.ApprovalStep{ApproverType: model.ApproverTypeUser}, app)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestAdvanceAutoApprovesApplicantSteps(t *testing.T) {
	applicant, boss := uuid.New(), uuid.New()
	self := userStep(1, applicant)
	self.AutoApproveIfSameUser = true
	steps := []model.ApprovalStep{self, userStep(2, boss)}
	app := &model.Application{ApplicantID: applicant}

	res, err := Advance(context.Background(), fakeDirectory{}, steps, app, 0)
	require.NoError(t, err)
	require.Len(t, res.AutoApproved, 1)
	assert.Equal(t, 1, res.AutoApproved[0].StepNumber)
	require.NotNil(t, res.Active)
	assert.Equal(t, 2, res.Active.StepNumber)
	assert.Equal(t, boss, res.ApproverID)

	res, err = Advance(context.Background(), fakeDirectory{}, steps[:1], app, 0)
	require.NoError(t, err)
	assert.True(t, res.Complete())
	assert.Len(t, res.AutoApproved, 1)
}

func TestAdvanceWithoutAutoApproveKeepsApplicant(t *testing.T) {
	applicant := uuid.New()
	steps := []model.ApprovalStep{userStep(1, applicant)}
	res, err := Advance(context.Background(), fakeDirectory{}, steps, &model.Application{ApplicantID: applicant}, 0)
	require.NoError(t, err)
	require.NotNil(t, res.Active)
	assert.Equal(t, applicant, res.ApproverID)
	assert.Empty(t, res.AutoApproved)
}

func TestActiveRoutePrefersNewest(t *testing.T) {
	now := time.Now()
	older := model.ApprovalRoute{Name: "old", IsActive: true, CreatedAt: now.Add(-time.Hour)}
	newer := model.ApprovalRoute{Name: "new", IsActive: true, CreatedAt: now}
	inactive := model.ApprovalRoute{Name: "off", CreatedAt: now.Add(time.Hour)}

	got, ok := ActiveRoute([]model.ApprovalRoute{older, inactive, newer})
	require.True(t, ok)
	assert.Equal(t, "new", got.Name)

	_, ok = ActiveRoute([]model.ApprovalRoute{inactive})
	assert.False(t, ok)
}
