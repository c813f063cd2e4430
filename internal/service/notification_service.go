package service

import (
	"context"

	"github.com/google/uuid"

	"expense-approval/internal/apperror"
	"expense-approval/internal/model"
	"expense-approval/internal/repository"
)

type NotificationResponse struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Title         string  `json:"title"`
	Message       string  `json:"message"`
	ApplicationID *string `json:"application_id"`
	Priority      string  `json:"priority"`
	IsRead        bool    `json:"is_read"`
	CreatedAt     string  `json:"created_at"`
}

type NotificationList struct {
	Items  []NotificationResponse `json:"items"`
	Total  int64                  `json:"total"`
	Unread int64                  `json:"unread"`
}

type NotificationService interface {
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page, limit int) (NotificationList, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
}

type notificationService struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

func (s *notificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page, limit int) (NotificationList, error) {
	page, limit = normalizePage(page, limit)
	items, total, err := s.repo.ListForUser(ctx, userID, unreadOnly, page, limit)
	if err != nil {
		return NotificationList{}, apperror.Persistence("list notifications", err)
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return NotificationList{}, apperror.Persistence("count unread notifications", err)
	}

	out := NotificationList{Items: make([]NotificationResponse, 0, len(items)), Total: total, Unread: unread}
	for _, n := range items {
		out.Items = append(out.Items, toNotificationResponse(n))
	}
	return out, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		return storeErr("mark notification read", "notification", id, err)
	}
	return nil
}

func toNotificationResponse(n model.Notification) NotificationResponse {
	return NotificationResponse{
		ID:            n.ID.String(),
		Type:          n.Type,
		Title:         n.Title,
		Message:       n.Message,
		ApplicationID: idString(n.ApplicationID),
		Priority:      n.Priority,
		IsRead:        n.IsRead,
		CreatedAt:     n.CreatedAt.Format(timeLayout),
	}
}
