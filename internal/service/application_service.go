package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"expense-approval/internal/apperror"
	"expense-approval/internal/model"
	"expense-approval/internal/repository"
	"expense-approval/internal/workflow"
)

// --- DTOs ---

type ItemInput struct {
	Category    string          `json:"category" binding:"required"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	ItemDate    string          `json:"item_date"` // YYYY-MM-DD
	StoreName   string          `json:"store_name"`
}

type CreateApplicationDTO struct {
	Type         string           `json:"type" binding:"required,oneof=business_trip expense"`
	Title        string           `json:"title" binding:"required"`
	DepartmentID string           `json:"department_id" binding:"required"`
	TotalAmount  *decimal.Decimal `json:"total_amount"` // ignored when items are given
	Priority     string           `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	Items        []ItemInput      `json:"items" binding:"omitempty,dive"`
}

// UpdateApplicationDTO edits a draft or returned application. A non-nil Items replaces all items.
type UpdateApplicationDTO struct {
	Title       *string          `json:"title"`
	TotalAmount *decimal.Decimal `json:"total_amount"`
	Priority    *string          `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	Items       []ItemInput      `json:"items" binding:"omitempty,dive"`
}

type ApplicationQuery struct {
	DepartmentID string
	ApplicantID  string
	Status       string // comma separated
	Type         string
	From         string // YYYY-MM-DD
	To           string // YYYY-MM-DD, inclusive
	Q            string
	Page         int
	Limit        int
}

type ItemResponse struct {
	ID          string  `json:"id"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Amount      string  `json:"amount"`
	ItemDate    *string `json:"item_date"`
	StoreName   string  `json:"store_name"`
}

type ApplicationResponse struct {
	ID                string         `json:"id"`
	Type              string         `json:"type"`
	Title             string         `json:"title"`
	DepartmentID      string         `json:"department_id"`
	ApplicantID       string         `json:"applicant_id"`
	TotalAmount       *string        `json:"total_amount"`
	Priority          string         `json:"priority"`
	Status            string         `json:"status"`
	CurrentApproverID *string        `json:"current_approver_id"`
	RouteID           *string        `json:"route_id"`
	CurrentStep       int            `json:"current_step"`
	SubmittedAt       *string        `json:"submitted_at"`
	ApprovedAt        *string        `json:"approved_at"`
	RejectionReason   *string        `json:"rejection_reason"`
	DaysWaiting       *int           `json:"days_waiting,omitempty"`
	Version           int            `json:"version"`
	Items             []ItemResponse `json:"items"`
	CreatedAt         string         `json:"created_at"`
	UpdatedAt         string         `json:"updated_at"`
}

// --- Interface ---

type ApplicationService interface {
	Create(ctx context.Context, applicantID uuid.UUID, req CreateApplicationDTO) (ApplicationResponse, error)
	Update(ctx context.Context, actorID, id uuid.UUID, req UpdateApplicationDTO) (ApplicationResponse, error)
	// Delete removes the application with its items and decision history.
	// Applicants may delete their own drafts; admins may delete anything.
	Delete(ctx context.Context, actorID, id uuid.UUID, admin bool) error
	Get(ctx context.Context, id uuid.UUID) (ApplicationResponse, error)
	List(ctx context.Context, q ApplicationQuery) ([]ApplicationResponse, int64, error)
	// Pending lists applications waiting on approverID's decision.
	Pending(ctx context.Context, approverID uuid.UUID, page, limit int) ([]ApplicationResponse, int64, error)
}

type applicationService struct {
	tx     repository.TransactionManager
	apps   repository.ApplicationRepository
	logs   repository.ApprovalLogRepository
	audit  repository.AuditRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewApplicationService(tx repository.TransactionManager, apps repository.ApplicationRepository, logs repository.ApprovalLogRepository, audit repository.AuditRepository, logger *zap.Logger) ApplicationService {
	return &applicationService{
		tx:     tx,
		apps:   apps,
		logs:   logs,
		audit:  audit,
		logger: logger.With(zap.String("component", "application_service")),
		now:    time.Now,
	}
}

// --- Implementation ---

func (s *applicationService) Create(ctx context.Context, applicantID uuid.UUID, req CreateApplicationDTO) (ApplicationResponse, error) {
	deptID, err := parseID("department_id", req.DepartmentID)
	if err != nil {
		return ApplicationResponse{}, err
	}
	if strings.TrimSpace(req.Title) == "" {
		return ApplicationResponse{}, apperror.Validation("title is required")
	}
	if req.Type != model.AppTypeBusinessTrip && req.Type != model.AppTypeExpense {
		return ApplicationResponse{}, apperror.Validation("invalid application type %q", req.Type)
	}
	items, err := buildItems(req.Items)
	if err != nil {
		return ApplicationResponse{}, err
	}

	app := model.Application{
		Type:         req.Type,
		Title:        strings.TrimSpace(req.Title),
		DepartmentID: deptID,
		ApplicantID:  applicantID,
		Priority:     model.PriorityNormal,
		Status:       model.StatusDraft,
		Items:        items,
	}
	if req.Priority != "" {
		app.Priority = req.Priority
	}
	app.TotalAmount, err = totalFor(items, req.TotalAmount)
	if err != nil {
		return ApplicationResponse{}, err
	}

	if err := s.apps.Create(ctx, &app); err != nil {
		return ApplicationResponse{}, apperror.Persistence("create application", err)
	}

	s.logger.Info("application created",
		zap.String("application_id", app.ID.String()),
		zap.String("applicant_id", applicantID.String()),
		zap.String("type", app.Type))
	return s.Get(ctx, app.ID)
}

func (s *applicationService) Update(ctx context.Context, actorID, id uuid.UUID, req UpdateApplicationDTO) (ApplicationResponse, error) {
	var items []model.ApplicationItem
	if req.Items != nil {
		built, err := buildItems(req.Items)
		if err != nil {
			return ApplicationResponse{}, err
		}
		items = built
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		app, err := s.apps.FindForUpdate(txCtx, id)
		if err != nil {
			return storeErr("load application", "application", id, err)
		}
		if app.ApplicantID != actorID {
			return apperror.Unauthorized("only the applicant may edit application %s", id)
		}
		if app.Status != model.StatusDraft && app.Status != model.StatusReturned {
			return apperror.InvalidTransition(string(app.Status), "edit")
		}

		updates := map[string]interface{}{}
		if req.Title != nil {
			if strings.TrimSpace(*req.Title) == "" {
				return apperror.Validation("title must not be empty")
			}
			updates["title"] = strings.TrimSpace(*req.Title)
		}
		if req.Priority != nil {
			updates["priority"] = *req.Priority
		}
		if req.Items != nil {
			if err := s.apps.ReplaceItems(txCtx, id, items); err != nil {
				return apperror.Persistence("replace items", err)
			}
			total, err := totalFor(items, req.TotalAmount)
			if err != nil {
				return err
			}
			updates["total_amount"] = total
		} else if req.TotalAmount != nil {
			total, err := totalFor(app.Items, req.TotalAmount)
			if err != nil {
				return err
			}
			updates["total_amount"] = total
		}

		ok, err := s.apps.CompareAndSwap(txCtx, id, app.Status, app.Version, updates)
		if err != nil {
			return apperror.Persistence("update application", err)
		}
		if !ok {
			return apperror.Conflict("application %s was modified concurrently; reload and retry", id)
		}
		return nil
	})
	if err != nil {
		return ApplicationResponse{}, err
	}
	return s.Get(ctx, id)
}

func (s *applicationService) Delete(ctx context.Context, actorID, id uuid.UUID, admin bool) error {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		app, err := s.apps.FindForUpdate(txCtx, id)
		if err != nil {
			return storeErr("load application", "application", id, err)
		}
		if !admin {
			if app.ApplicantID != actorID {
				return apperror.Unauthorized("only the applicant may delete application %s", id)
			}
			if app.Status != model.StatusDraft {
				return apperror.InvalidTransition(string(app.Status), "delete")
			}
		}
		if err := s.logs.DeleteByApplication(txCtx, id); err != nil {
			return apperror.Persistence("delete approval history", err)
		}
		if err := s.apps.Delete(txCtx, id); err != nil {
			return storeErr("delete application", "application", id, err)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"status":       app.Status,
			"applicant_id": app.ApplicantID,
		})
		entry := model.AuditLog{
			UserID:     &actorID,
			Action:     model.ActionDeleteApplication,
			EntityID:   id.String(),
			EntityName: app.Title,
			Details:    string(details),
		}
		if err := s.audit.Log(txCtx, &entry); err != nil {
			return apperror.Persistence("write audit log", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("application deleted", zap.String("application_id", id.String()), zap.String("actor_id", actorID.String()))
	return nil
}

func (s *applicationService) Get(ctx context.Context, id uuid.UUID) (ApplicationResponse, error) {
	app, err := s.apps.FindByID(ctx, id)
	if err != nil {
		return ApplicationResponse{}, storeErr("load application", "application", id, err)
	}
	return toApplicationResponse(*app, s.now()), nil
}

func (s *applicationService) List(ctx context.Context, q ApplicationQuery) ([]ApplicationResponse, int64, error) {
	filter, err := buildFilter(q)
	if err != nil {
		return nil, 0, err
	}
	page, limit := normalizePage(q.Page, q.Limit)
	apps, total, err := s.apps.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, apperror.Persistence("list applications", err)
	}
	return s.toResponses(apps), total, nil
}

func (s *applicationService) Pending(ctx context.Context, approverID uuid.UUID, page, limit int) ([]ApplicationResponse, int64, error) {
	page, limit = normalizePage(page, limit)
	filter := repository.ApplicationFilter{
		ApproverID: &approverID,
		Statuses:   []model.Status{model.StatusPending, model.StatusSubmitted},
	}
	apps, total, err := s.apps.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, apperror.Persistence("list pending approvals", err)
	}
	return s.toResponses(apps), total, nil
}

func (s *applicationService) toResponses(apps []model.Application) []ApplicationResponse {
	now := s.now()
	res := make([]ApplicationResponse, 0, len(apps))
	for _, a := range apps {
		res = append(res, toApplicationResponse(a, now))
	}
	return res
}

// --- Helpers ---

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return page, limit
}

func buildItems(in []ItemInput) ([]model.ApplicationItem, error) {
	items := make([]model.ApplicationItem, 0, len(in))
	for i, it := range in {
		if it.Amount.IsNegative() {
			return nil, apperror.Validation("item %d: amount must not be negative", i+1)
		}
		item := model.ApplicationItem{
			Category:    it.Category,
			Description: it.Description,
			Amount:      it.Amount,
			StoreName:   it.StoreName,
		}
		if it.ItemDate != "" {
			d, err := time.Parse("2006-01-02", it.ItemDate)
			if err != nil {
				return nil, apperror.Validation("item %d: invalid item_date %q", i+1, it.ItemDate)
			}
			item.ItemDate = &d
		}
		items = append(items, item)
	}
	return items, nil
}

// totalFor prefers the items' sum; without items the explicit amount is used as is.
func totalFor(items []model.ApplicationItem, explicit *decimal.Decimal) (decimal.NullDecimal, error) {
	if len(items) > 0 {
		return decimal.NewNullDecimal(model.ItemsTotal(items)), nil
	}
	if explicit == nil {
		return decimal.NullDecimal{}, nil
	}
	if explicit.IsNegative() {
		return decimal.NullDecimal{}, apperror.Validation("total_amount must not be negative")
	}
	return decimal.NewNullDecimal(*explicit), nil
}

func buildFilter(q ApplicationQuery) (repository.ApplicationFilter, error) {
	var f repository.ApplicationFilter
	var err error
	if f.DepartmentID, err = parseOptionalID("department_id", &q.DepartmentID); err != nil {
		return f, err
	}
	if f.ApplicantID, err = parseOptionalID("applicant_id", &q.ApplicantID); err != nil {
		return f, err
	}
	for _, raw := range strings.Split(q.Status, ",") {
		st := model.Status(strings.TrimSpace(raw))
		if st == "" {
			continue
		}
		if !st.Valid() {
			return f, apperror.Validation("unknown status %q", st)
		}
		f.Statuses = append(f.Statuses, st)
	}
	f.Type = q.Type
	f.Query = q.Q
	if q.From != "" {
		t, err := time.Parse("2006-01-02", q.From)
		if err != nil {
			return f, apperror.Validation("invalid from date %q", q.From)
		}
		f.From = &t
	}
	if q.To != "" {
		t, err := time.Parse("2006-01-02", q.To)
		if err != nil {
			return f, apperror.Validation("invalid to date %q", q.To)
		}
		end := t.AddDate(0, 0, 1)
		f.To = &end
	}
	return f, nil
}

func toApplicationResponse(a model.Application, now time.Time) ApplicationResponse {
	items := make([]ItemResponse, 0, len(a.Items))
	for _, it := range a.Items {
		var date *string
		if it.ItemDate != nil {
			d := it.ItemDate.Format("2006-01-02")
			date = &d
		}
		items = append(items, ItemResponse{
			ID:          it.ID.String(),
			Category:    it.Category,
			Description: it.Description,
			Amount:      it.Amount.StringFixed(2),
			ItemDate:    date,
			StoreName:   it.StoreName,
		})
	}

	var total *string
	if a.TotalAmount.Valid {
		t := a.TotalAmount.Decimal.StringFixed(2)
		total = &t
	}

	res := ApplicationResponse{
		ID:                a.ID.String(),
		Type:              a.Type,
		Title:             a.Title,
		DepartmentID:      a.DepartmentID.String(),
		ApplicantID:       a.ApplicantID.String(),
		TotalAmount:       total,
		Priority:          a.Priority,
		Status:            string(a.Status),
		CurrentApproverID: idString(a.CurrentApproverID),
		RouteID:           idString(a.RouteID),
		CurrentStep:       a.CurrentStep,
		SubmittedAt:       formatTime(a.SubmittedAt),
		ApprovedAt:        formatTime(a.ApprovedAt),
		RejectionReason:   a.RejectionReason,
		Version:           a.Version,
		Items:             items,
		CreatedAt:         a.CreatedAt.Format(timeLayout),
		UpdatedAt:         a.UpdatedAt.Format(timeLayout),
	}
	if days, ok := workflow.DaysWaiting(&a, nil, now); ok {
		res.DaysWaiting = &days
	}
	return res
}
