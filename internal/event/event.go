// Package event carries workflow domain events from the action processor to
// delivery subsystems (notification table, websocket clients, Redis subscribers).
package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"expense-approval/internal/model"
)

// Type names a domain event.
type Type string

const (
	// StatusChanged is emitted for every accepted action.
	StatusChanged Type = "application.status_changed"
	// ApprovalRequired is emitted when an application lands on a new approver.
	ApprovalRequired Type = "application.approval_required"
)

// Event is a committed change to one application.
type Event struct {
	Type          Type         `json:"type"`
	ApplicationID uuid.UUID    `json:"application_id"`
	Title         string       `json:"title"`
	Priority      string       `json:"priority"`
	ApplicantID   uuid.UUID    `json:"applicant_id"`
	ActorID       *uuid.UUID   `json:"actor_id,omitempty"`
	Action        model.Action `json:"action"`
	StatusBefore  model.Status `json:"status_before"`
	StatusAfter   model.Status `json:"status_after"`
	ApproverID    *uuid.UUID   `json:"approver_id,omitempty"`
	Comment       string       `json:"comment,omitempty"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

// Recipients returns the users who should hear about e.
func (e Event) Recipients() []uuid.UUID {
	switch e.Type {
	case ApprovalRequired:
		if e.ApproverID != nil {
			return []uuid.UUID{*e.ApproverID}
		}
		return nil
	default:
		return []uuid.UUID{e.ApplicantID}
	}
}

// Publisher delivers events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bus fans an event out to every subscriber. A failing subscriber does not
// stop delivery to the others.
type Bus struct {
	subscribers []Publisher
	logger      *zap.Logger
}

func NewBus(logger *zap.Logger, subscribers ...Publisher) *Bus {
	var subs []Publisher
	for _, s := range subscribers {
		if s != nil {
			subs = append(subs, s)
		}
	}
	return &Bus{subscribers: subs, logger: logger.With(zap.String("component", "event_bus"))}
}

func (b *Bus) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range b.subscribers {
		if err := s.Publish(ctx, e); err != nil {
			b.logger.Warn("event delivery failed",
				zap.String("type", string(e.Type)),
				zap.String("application_id", e.ApplicationID.String()),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.Events = append(r.Events, e)
	return nil
}
