package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"expense-approval/internal/apperror"
	"expense-approval/internal/model"
	"expense-approval/internal/repository"
)

func TestCreateRouteNumbersSteps(t *testing.T) {
	f := newFixture(t)
	res := f.route(userStep(f.manager.ID), userStep(f.director.ID))

	require.Len(t, res.Steps, 2)
	assert.Equal(t, 1, res.Steps[0].StepNumber)
	assert.Equal(t, 2, res.Steps[1].StepNumber)
	assert.True(t, res.Steps[0].IsRequired)
	assert.True(t, res.IsActive)
	require.NotNil(t, res.CreatedBy)
	assert.Equal(t, f.admin.ID.String(), *res.CreatedBy)

	logs, total, err := f.audit.GetAuditLogs(f.ctx, AuditQuery{Action: model.ActionCreateApprovalRoute}, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, res.ID, logs[0].EntityID)
	assert.Equal(t, f.admin.Username, logs[0].Username)

	f.route(userStep(f.director.ID))
	_, total, err = f.audit.GetAuditLogs(f.ctx, AuditQuery{EntityID: res.ID}, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	_, total, err = f.audit.GetAuditLogs(f.ctx, AuditQuery{UserID: f.admin.ID.String()}, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	_, _, err = f.audit.GetAuditLogs(f.ctx, AuditQuery{UserID: "nobody"}, 1, 10)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestCreateRouteValidation(t *testing.T) {
	f := newFixture(t)
	bad := map[string]CreateRouteDTO{
		"no steps":        {Name: "r", DepartmentID: f.dept.ID.String()},
		"bad department":  {Name: "r", DepartmentID: "sales", Steps: []StepInput{userStep(f.manager.ID)}},
		"role without it": {Name: "r", DepartmentID: f.dept.ID.String(), Steps: []StepInput{{ApproverType: model.ApproverTypeRole}}},
		"inverted range":  {Name: "r", DepartmentID: f.dept.ID.String(), Steps: []StepInput{amountRange(userStep(f.manager.ID), 500, 100)}},
	}
	for name, dto := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := f.routes.CreateRoute(f.ctx, f.admin.ID, dto)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}

	routes, err := f.routes.ListRoutes(f.ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, routes)
}

func TestOnlyOneActiveRoutePerDepartment(t *testing.T) {
	f := newFixture(t)
	first := f.route(userStep(f.manager.ID))
	second := f.route(userStep(f.director.ID))

	got, err := f.routes.GetRoute(f.ctx, uuid.MustParse(first.ID))
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	active, err := f.routes.ActiveRouteFor(f.ctx, f.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID.String())

	// Reactivating the first turns the second off.
	on := true
	_, err = f.routes.UpdateRoute(f.ctx, f.admin.ID, uuid.MustParse(first.ID), UpdateRouteDTO{IsActive: &on})
	require.NoError(t, err)
	active, err = f.routes.ActiveRouteFor(f.ctx, f.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID.String())
}

func TestUpdateRouteRemovingMiddleStep(t *testing.T) {
	f := newFixture(t)
	created := f.route(
		userStep(f.manager.ID),
		userStep(f.outsider.ID),
		userStep(f.director.ID),
	)

	res, err := f.routes.UpdateRoute(f.ctx, f.admin.ID, uuid.MustParse(created.ID), UpdateRouteDTO{
		Steps: []StepInput{userStep(f.manager.ID), userStep(f.director.ID)},
	})
	require.NoError(t, err)

	require.Len(t, res.Steps, 2)
	assert.Equal(t, 1, res.Steps[0].StepNumber)
	assert.Equal(t, 2, res.Steps[1].StepNumber)
	assert.Equal(t, f.director.ID.String(), *res.Steps[1].ApproverUserID)
}

// failingSteps fails the step insert after the old steps were deleted.
type failingSteps struct {
	repository.RouteRepository
}

func (failingSteps) InsertSteps(context.Context, uuid.UUID, []model.ApprovalStep) error {
	return errors.New("disk full")
}

func TestUpdateRouteIsAtomic(t *testing.T) {
	f := newFixture(t)
	created := f.route(userStep(f.manager.ID), userStep(f.director.ID))
	routeID := uuid.MustParse(created.ID)

	svc := NewRouteService(f.txm, failingSteps{f.routeRepo}, f.auditRepo, zap.NewNop())
	name := "renamed"
	_, err := svc.UpdateRoute(f.ctx, f.admin.ID, routeID, UpdateRouteDTO{
		Name:  &name,
		Steps: []StepInput{userStep(f.outsider.ID)},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrPersistence)

	got, err := f.routes.GetRoute(f.ctx, routeID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, f.manager.ID.String(), *got.Steps[0].ApproverUserID)
	assert.Equal(t, f.director.ID.String(), *got.Steps[1].ApproverUserID)

	_, total, err := f.audit.GetAuditLogs(f.ctx, AuditQuery{Action: model.ActionUpdateApprovalRoute}, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestSubmittedApplicationKeepsItsRoute(t *testing.T) {
	f := newFixture(t)
	first := f.route(userStep(f.manager.ID), userStep(f.director.ID))
	id := f.submitted(1000)

	// A new route for the department does not move applications already in flight.
	f.route(userStep(f.outsider.ID))

	_, err := f.act(id, f.manager.ID, model.ActionApprove, nil)
	require.NoError(t, err)
	app := f.load(id)
	assert.Equal(t, first.ID, app.RouteID.String())
	assert.Equal(t, f.director.ID, *app.CurrentApproverID)
}

func TestDeleteRoute(t *testing.T) {
	f := newFixture(t)
	created := f.route(userStep(f.manager.ID))
	routeID := uuid.MustParse(created.ID)

	require.NoError(t, f.routes.DeleteRoute(f.ctx, f.admin.ID, routeID))
	_, err := f.routes.GetRoute(f.ctx, routeID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	err = f.routes.DeleteRoute(f.ctx, f.admin.ID, routeID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.routes.ActiveRouteFor(f.ctx, f.dept.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRouteInUseCannotLoseItsSteps(t *testing.T) {
	f := newFixture(t)
	created := f.route(userStep(f.manager.ID), userStep(f.director.ID), userStep(f.outsider.ID))
	routeID := uuid.MustParse(created.ID)
	id := f.submitted(1000)

	_, err := f.routes.UpdateRoute(f.ctx, f.admin.ID, routeID, UpdateRouteDTO{Steps: []StepInput{userStep(f.manager.ID)}})
	assert.ErrorIs(t, err, apperror.ErrConflict)
	err = f.routes.DeleteRoute(f.ctx, f.admin.ID, routeID)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	// Renaming does not touch the steps.
	name := "Sales expenses v2"
	_, err = f.routes.UpdateRoute(f.ctx, f.admin.ID, routeID, UpdateRouteDTO{Name: &name})
	require.NoError(t, err)

	// The application still walks all three steps.
	_, err = f.act(id, f.manager.ID, model.ActionApprove, nil)
	require.NoError(t, err)
	app := f.load(id)
	assert.Equal(t, model.StatusPending, app.Status)
	assert.Equal(t, f.director.ID, *app.CurrentApproverID)

	// On hold still counts as in flight.
	_, err = f.act(id, f.director.ID, model.ActionHold, nil)
	require.NoError(t, err)
	err = f.routes.DeleteRoute(f.ctx, f.admin.ID, routeID)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = f.act(id, f.director.ID, model.ActionResume, nil)
	require.NoError(t, err)
	_, err = f.act(id, f.director.ID, model.ActionReject, nil)
	require.NoError(t, err)

	// Once nothing is in flight the route can change.
	_, err = f.routes.UpdateRoute(f.ctx, f.admin.ID, routeID, UpdateRouteDTO{Steps: []StepInput{userStep(f.manager.ID)}})
	require.NoError(t, err)
	require.NoError(t, f.routes.DeleteRoute(f.ctx, f.admin.ID, routeID))

	_, total, err := f.audit.GetAuditLogs(f.ctx, AuditQuery{Action: model.ActionDeleteApprovalRoute}, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}
