package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"expense-approval/internal/database"
	"expense-approval/internal/model"
	"expense-approval/internal/repository"
)

type failing struct{}

func (failing) Publish(context.Context, Event) error { return errors.New("down") }

func sampleEvent(t Type, after model.Status) Event {
	approver := uuid.New()
	return Event{
		Type:          t,
		ApplicationID: uuid.New(),
		Title:         "Tokyo trip",
		Priority:      model.PriorityUrgent,
		ApplicantID:   uuid.New(),
		Action:        model.ActionApprove,
		StatusBefore:  model.StatusPending,
		StatusAfter:   after,
		ApproverID:    &approver,
		OccurredAt:    time.Now(),
	}
}

func TestBusDeliversPastFailingSubscriber(t *testing.T) {
	rec := &Recorder{}
	bus := NewBus(zap.NewNop(), failing{}, nil, rec)

	err := bus.Publish(context.Background(), sampleEvent(StatusChanged, model.StatusApproved))
	assert.Error(t, err)
	assert.Len(t, rec.Events, 1)
}

func TestRecipients(t *testing.T) {
	e := sampleEvent(ApprovalRequired, model.StatusPending)
	assert.Equal(t, []uuid.UUID{*e.ApproverID}, e.Recipients())

	e = sampleEvent(StatusChanged, model.StatusRejected)
	assert.Equal(t, []uuid.UUID{e.ApplicantID}, e.Recipients())
}

func TestRedisPublisher(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	pub, err := NewRedisPublisher(mr.Addr(), "approval-events", zap.NewNop())
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub := pub.Client().Subscribe(ctx, "approval-events")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	sent := sampleEvent(StatusChanged, model.StatusApproved)
	require.NoError(t, pub.Publish(ctx, sent))

	select {
	case msg := <-sub.Channel():
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, sent.ApplicationID, got.ApplicationID)
		assert.Equal(t, model.StatusApproved, got.StatusAfter)
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestRedisPublisherUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisPublisher(addr, "approval-events", zap.NewNop())
	assert.Error(t, err)
}

func TestNotificationWriter(t *testing.T) {
	db, err := database.Open("sqlite", ":memory:", nil)
	require.NoError(t, err)
	repo := repository.NewNotificationRepository(db)
	w := NewNotificationWriter(repo)
	ctx := context.Background()

	required := sampleEvent(ApprovalRequired, model.StatusPending)
	require.NoError(t, w.Publish(ctx, required))
	items, total, err := repo.ListForUser(ctx, *required.ApproverID, true, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, model.NotifApprovalRequired, items[0].Type)
	assert.Equal(t, model.NotifPriorityHigh, items[0].Priority)

	rejected := sampleEvent(StatusChanged, model.StatusRejected)
	rejected.Comment = "missing receipts"
	require.NoError(t, w.Publish(ctx, rejected))
	items, _, err = repo.ListForUser(ctx, rejected.ApplicantID, false, 1, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Message, "missing receipts")

	// A step advance that stays pending produces no applicant notification.
	advanced := sampleEvent(StatusChanged, model.StatusPending)
	require.NoError(t, w.Publish(ctx, advanced))
	_, total, err = repo.ListForUser(ctx, advanced.ApplicantID, false, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}
