package event

import (
	"context"
	"fmt"

	"expense-approval/internal/model"
	"expense-approval/internal/repository"
)

// NotificationWriter turns events into per-user notification rows.
type NotificationWriter struct {
	repo repository.NotificationRepository
}

func NewNotificationWriter(repo repository.NotificationRepository) *NotificationWriter {
	return &NotificationWriter{repo: repo}
}

func (w *NotificationWriter) Publish(ctx context.Context, e Event) error {
	n, ok := notificationFor(e)
	if !ok {
		return nil
	}
	for _, uid := range e.Recipients() {
		row := n
		row.UserID = uid
		if err := w.repo.Create(ctx, &row); err != nil {
			return fmt.Errorf("store notification: %w", err)
		}
	}
	return nil
}

func notificationFor(e Event) (model.Notification, bool) {
	appID := e.ApplicationID
	n := model.Notification{ApplicationID: &appID, Priority: model.NotifPriorityMedium}

	if e.Type == ApprovalRequired {
		n.Type = model.NotifApprovalRequired
		n.Title = "Approval required"
		n.Message = fmt.Sprintf("%q is waiting for your decision.", e.Title)
		if e.Priority == model.PriorityHigh || e.Priority == model.PriorityUrgent {
			n.Priority = model.NotifPriorityHigh
		}
		return n, true
	}

	n.Type = model.NotifApplicationStatus
	switch e.StatusAfter {
	case model.StatusApproved:
		n.Type = model.NotifApprovalCompleted
		n.Title = "Application approved"
		n.Message = fmt.Sprintf("%q has been approved.", e.Title)
	case model.StatusRejected:
		n.Title = "Application rejected"
		n.Message = fmt.Sprintf("%q has been rejected.", e.Title)
		n.Priority = model.NotifPriorityHigh
	case model.StatusReturned:
		n.Title = "Application returned"
		n.Message = fmt.Sprintf("%q was returned for revision.", e.Title)
		n.Priority = model.NotifPriorityHigh
	case model.StatusOnHold:
		n.Title = "Application on hold"
		n.Message = fmt.Sprintf("%q has been put on hold.", e.Title)
		n.Priority = model.NotifPriorityLow
	default:
		// Submissions, resumes and step advances are covered by ApprovalRequired.
		return model.Notification{}, false
	}
	if e.Comment != "" {
		n.Message += " Comment: " + e.Comment
	}
	return n, true
}
