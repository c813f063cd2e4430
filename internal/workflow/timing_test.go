package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expense-approval/internal/apperror"
	"expense-approval/internal/model"
)

func entry(seq int, action model.Action, before, after model.Status, at time.Time) model.ApprovalLog {
	return model.ApprovalLog{Sequence: seq, Action: action, StatusBefore: before, StatusAfter: after, CreatedAt: at}
}

func TestProcessingTime(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	history := []model.ApprovalLog{
		entry(1, model.ActionSubmit, model.StatusDraft, model.StatusPending, t0),
		entry(2, model.ActionReturn, model.StatusPending, model.StatusReturned, t0.Add(2*time.Hour)),
		entry(3, model.ActionResubmit, model.StatusReturned, model.StatusPending, t0.Add(5*time.Hour)),
		entry(4, model.ActionApprove, model.StatusPending, model.StatusApproved, t0.Add(26*time.Hour)),
	}
	app := &model.Application{Status: model.StatusApproved}

	d, ok := ProcessingTime(app, history)
	require.True(t, ok)
	assert.Equal(t, 26*time.Hour, d)

	_, ok = ProcessingTime(&model.Application{Status: model.StatusPending}, history[:3])
	assert.False(t, ok)
}

func TestAverageProcessingTime(t *testing.T) {
	assert.Equal(t, time.Duration(0), AverageProcessingTime(nil))
	assert.Equal(t, 2*time.Hour, AverageProcessingTime([]time.Duration{time.Hour, 3 * time.Hour}))
}

func TestDaysWaiting(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	history := []model.ApprovalLog{
		entry(1, model.ActionSubmit, model.StatusDraft, model.StatusPending, t0),
		entry(2, model.ActionApprove, model.StatusPending, model.StatusPending, t0.Add(48*time.Hour)),
	}
	app := &model.Application{Status: model.StatusPending}

	days, ok := DaysWaiting(app, history, t0.Add(48*time.Hour+71*time.Hour))
	require.True(t, ok)
	assert.Equal(t, 2, days)

	_, ok = DaysWaiting(&model.Application{Status: model.StatusApproved}, history, t0)
	assert.False(t, ok)
}

func TestValidateWalk(t *testing.T) {
	t0 := time.Now()
	valid := []model.ApprovalLog{
		entry(1, model.ActionSubmit, model.StatusDraft, model.StatusPending, t0),
		entry(2, model.ActionApprove, model.StatusPending, model.StatusPending, t0),
		entry(3, model.ActionHold, model.StatusPending, model.StatusOnHold, t0),
		entry(4, model.ActionResume, model.StatusOnHold, model.StatusPending, t0),
		entry(5, model.ActionApprove, model.StatusPending, model.StatusApproved, t0),
	}
	assert.NoError(t, ValidateWalk(valid))
	assert.NoError(t, ValidateWalk(nil))

	broken := append([]model.ApprovalLog{}, valid[:2]...)
	broken = append(broken, entry(3, model.ActionReject, model.StatusOnHold, model.StatusRejected, t0))
	assert.True(t, errors.Is(ValidateWalk(broken), apperror.ErrValidation))

	illegal := []model.ApprovalLog{entry(1, model.ActionApprove, model.StatusApproved, model.StatusApproved, t0)}
	assert.True(t, errors.Is(ValidateWalk(illegal), apperror.ErrValidation))
}
