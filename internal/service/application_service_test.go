package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expense-approval/internal/apperror"
	"expense-approval/internal/model"
)

func TestCreateApplicationSumsItems(t *testing.T) {
	f := newFixture(t)
	ignored := decimal.NewFromInt(1)
	res, err := f.apps.Create(f.ctx, f.applicant.ID, CreateApplicationDTO{
		Type:         model.AppTypeBusinessTrip,
		Title:        "  Osaka trip  ",
		DepartmentID: f.dept.ID.String(),
		TotalAmount:  &ignored,
		Items: []ItemInput{
			{Category: "transportation", Amount: decimal.RequireFromString("13870.00"), ItemDate: "2026-03-10"},
			{Category: "accommodation", Amount: decimal.RequireFromString("9800.50")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Osaka trip", res.Title)
	assert.Equal(t, string(model.StatusDraft), res.Status)
	assert.Equal(t, model.PriorityNormal, res.Priority)
	require.NotNil(t, res.TotalAmount)
	assert.Equal(t, "23670.50", *res.TotalAmount)
	require.Len(t, res.Items, 2)
	assert.Nil(t, res.DaysWaiting)
}

func TestCreateApplicationValidation(t *testing.T) {
	f := newFixture(t)
	negative := decimal.NewFromInt(-5)
	bad := map[string]CreateApplicationDTO{
		"blank title":    {Type: model.AppTypeExpense, Title: " ", DepartmentID: f.dept.ID.String()},
		"unknown type":   {Type: "gift", Title: "t", DepartmentID: f.dept.ID.String()},
		"bad department": {Type: model.AppTypeExpense, Title: "t", DepartmentID: "x"},
		"negative total": {Type: model.AppTypeExpense, Title: "t", DepartmentID: f.dept.ID.String(), TotalAmount: &negative},
		"negative item":  {Type: model.AppTypeExpense, Title: "t", DepartmentID: f.dept.ID.String(), Items: []ItemInput{{Category: "meal", Amount: negative}}},
		"bad item date":  {Type: model.AppTypeExpense, Title: "t", DepartmentID: f.dept.ID.String(), Items: []ItemInput{{Category: "meal", ItemDate: "10/03/2026"}}},
	}
	for name, dto := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := f.apps.Create(f.ctx, f.applicant.ID, dto)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}

func TestUpdateOnlyWhileEditable(t *testing.T) {
	f := newFixture(t)
	f.route(userStep(f.manager.ID))
	id := f.draft(1000)

	amount := decimal.NewFromInt(2500)
	res, err := f.apps.Update(f.ctx, f.applicant.ID, id, UpdateApplicationDTO{TotalAmount: &amount})
	require.NoError(t, err)
	assert.Equal(t, "2500.00", *res.TotalAmount)

	title := "Someone else's edit"
	_, err = f.apps.Update(f.ctx, f.outsider.ID, id, UpdateApplicationDTO{Title: &title})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = f.approvals.Submit(f.ctx, id, f.applicant.ID, "")
	require.NoError(t, err)
	_, err = f.apps.Update(f.ctx, f.applicant.ID, id, UpdateApplicationDTO{Title: &title})
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestUpdateReplacesItems(t *testing.T) {
	f := newFixture(t)
	id := f.draft(1000)

	res, err := f.apps.Update(f.ctx, f.applicant.ID, id, UpdateApplicationDTO{
		Items: []ItemInput{{Category: "meal", Amount: decimal.NewFromInt(3000)}},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "3000.00", *res.TotalAmount)
}

func TestDeleteApplication(t *testing.T) {
	f := newFixture(t)
	f.route(userStep(f.manager.ID))

	draft := f.draft(1000)
	assert.ErrorIs(t, f.apps.Delete(f.ctx, f.outsider.ID, draft, false), apperror.ErrUnauthorized)
	require.NoError(t, f.apps.Delete(f.ctx, f.applicant.ID, draft, false))
	_, err := f.apps.Get(f.ctx, draft)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	inFlight := f.submitted(1000)
	assert.ErrorIs(t, f.apps.Delete(f.ctx, f.applicant.ID, inFlight, false), apperror.ErrInvalidTransition)

	require.NoError(t, f.apps.Delete(f.ctx, f.admin.ID, inFlight, true))
	assert.Empty(t, f.history(inFlight))

	logs, total, err := f.audit.GetAuditLogs(f.ctx, AuditQuery{Action: model.ActionDeleteApplication}, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	var deleted []string
	for _, l := range logs {
		deleted = append(deleted, l.EntityID)
	}
	assert.ElementsMatch(t, []string{draft.String(), inFlight.String()}, deleted)

	assert.ErrorIs(t, f.apps.Delete(f.ctx, f.admin.ID, uuid.New(), true), apperror.ErrNotFound)
}

func TestListAndPending(t *testing.T) {
	f := newFixture(t)
	f.route(userStep(f.manager.ID))
	pending := f.submitted(1000)
	f.draft(500)

	all, total, err := f.apps.List(f.ctx, ApplicationQuery{ApplicantID: f.applicant.ID.String()})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)

	drafts, _, err := f.apps.List(f.ctx, ApplicationQuery{Status: "draft"})
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	_, _, err = f.apps.List(f.ctx, ApplicationQuery{Status: "pending,lost"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	queue, total, err := f.apps.Pending(f.ctx, f.manager.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, queue, 1)
	assert.Equal(t, pending.String(), queue[0].ID)
	require.NotNil(t, queue[0].DaysWaiting)
	assert.Equal(t, 0, *queue[0].DaysWaiting)

	f.clock.Advance(72 * time.Hour)
	queue, _, err = f.apps.Pending(f.ctx, f.manager.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, *queue[0].DaysWaiting)

	empty, _, err := f.apps.Pending(f.ctx, f.director.ID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
