package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"expense-approval/internal/apperror"
	"expense-approval/internal/model"
	"expense-approval/internal/repository"
	"expense-approval/internal/workflow"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

type TimingResponse struct {
	ApplicationID   string   `json:"application_id"`
	Status          string   `json:"status"`
	ProcessingHours *float64 `json:"processing_hours"`
	DaysWaiting     *int     `json:"days_waiting"`
	Entries         int      `json:"entries"`
	WalkValid       bool     `json:"walk_valid"`
	WalkError       string   `json:"walk_error,omitempty"`
}

type ReportQuery struct {
	DepartmentID string
	From         string // YYYY-MM-DD
	To           string // YYYY-MM-DD, inclusive
}

// AuditQuery filters the admin audit trail; empty fields are ignored.
type AuditQuery struct {
	Action   string
	EntityID string
	UserID   string
}

type StatusTiming struct {
	Count        int     `json:"count"`
	AverageHours float64 `json:"average_hours"`
}

type ProcessingReport struct {
	Count        int                     `json:"count"`
	AverageHours float64                 `json:"average_hours"`
	AverageDays  float64                 `json:"average_days"`
	ByStatus     map[string]StatusTiming `json:"by_status"`
}

type AuditService interface {
	// History returns an application's decision history, oldest first.
	History(ctx context.Context, appID uuid.UUID) ([]ApprovalLogResponse, error)
	Timing(ctx context.Context, appID uuid.UUID) (TimingResponse, error)
	// ProcessingReport averages submission-to-decision time over finished applications.
	ProcessingReport(ctx context.Context, q ReportQuery) (ProcessingReport, error)
	// GetAuditLogs lists administrative changes (route edits, deletions, directory changes).
	GetAuditLogs(ctx context.Context, q AuditQuery, page, limit int) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	apps  repository.ApplicationRepository
	logs  repository.ApprovalLogRepository
	audit repository.AuditRepository
	now   func() time.Time
}

// NewAuditService creates a new AuditService instance
func NewAuditService(apps repository.ApplicationRepository, logs repository.ApprovalLogRepository, audit repository.AuditRepository) AuditService {
	return &auditService{apps: apps, logs: logs, audit: audit, now: time.Now}
}

func (s *auditService) History(ctx context.Context, appID uuid.UUID) ([]ApprovalLogResponse, error) {
	if _, err := s.apps.FindByID(ctx, appID); err != nil {
		return nil, storeErr("load application", "application", appID, err)
	}
	history, err := s.logs.HistoryFor(ctx, appID)
	if err != nil {
		return nil, apperror.Persistence("load approval history", err)
	}
	return toLogResponses(history), nil
}

func (s *auditService) Timing(ctx context.Context, appID uuid.UUID) (TimingResponse, error) {
	app, err := s.apps.FindByID(ctx, appID)
	if err != nil {
		return TimingResponse{}, storeErr("load application", "application", appID, err)
	}
	history, err := s.logs.HistoryFor(ctx, appID)
	if err != nil {
		return TimingResponse{}, apperror.Persistence("load approval history", err)
	}

	res := TimingResponse{
		ApplicationID: app.ID.String(),
		Status:        string(app.Status),
		Entries:       len(history),
		WalkValid:     true,
	}
	if d, ok := workflow.ProcessingTime(app, history); ok {
		h := d.Hours()
		res.ProcessingHours = &h
	}
	if days, ok := workflow.DaysWaiting(app, history, s.now()); ok {
		res.DaysWaiting = &days
	}
	if err := workflow.ValidateWalk(history); err != nil {
		res.WalkValid = false
		res.WalkError = err.Error()
	}
	return res, nil
}

func (s *auditService) ProcessingReport(ctx context.Context, q ReportQuery) (ProcessingReport, error) {
	filter, err := buildFilter(ApplicationQuery{DepartmentID: q.DepartmentID, From: q.From, To: q.To})
	if err != nil {
		return ProcessingReport{}, err
	}
	filter.Statuses = []model.Status{model.StatusApproved, model.StatusRejected}

	apps, _, err := s.apps.List(ctx, filter, 1, 0)
	if err != nil {
		return ProcessingReport{}, apperror.Persistence("list finished applications", err)
	}
	ids := make([]uuid.UUID, 0, len(apps))
	for _, a := range apps {
		ids = append(ids, a.ID)
	}
	histories, err := s.logs.HistoryForMany(ctx, ids)
	if err != nil {
		return ProcessingReport{}, apperror.Persistence("load approval history", err)
	}

	var all []time.Duration
	perStatus := map[string][]time.Duration{}
	for i := range apps {
		d, ok := workflow.ProcessingTime(&apps[i], histories[apps[i].ID])
		if !ok {
			continue
		}
		all = append(all, d)
		st := string(apps[i].Status)
		perStatus[st] = append(perStatus[st], d)
	}

	avg := workflow.AverageProcessingTime(all)
	report := ProcessingReport{
		Count:        len(all),
		AverageHours: avg.Hours(),
		AverageDays:  avg.Hours() / 24,
		ByStatus:     make(map[string]StatusTiming, len(perStatus)),
	}
	for st, ds := range perStatus {
		report.ByStatus[st] = StatusTiming{Count: len(ds), AverageHours: workflow.AverageProcessingTime(ds).Hours()}
	}
	return report, nil
}

func (s *auditService) GetAuditLogs(ctx context.Context, q AuditQuery, page, limit int) ([]AuditLogResponse, int64, error) {
	userID, err := parseOptionalID("user_id", &q.UserID)
	if err != nil {
		return nil, 0, err
	}
	page, limit = normalizePage(page, limit)
	logs, total, err := s.audit.List(ctx, repository.AuditFilter{Action: q.Action, EntityID: q.EntityID, UserID: userID}, page, limit)
	if err != nil {
		return nil, 0, apperror.Persistence("list audit logs", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		userID := ""
		if l.User != nil {
			username = l.User.Username
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Username:   username,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format(timeLayout),
		})
	}

	return res, total, nil
}
