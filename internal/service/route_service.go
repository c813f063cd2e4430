package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"expense-approval/internal/apperror"
	"expense-approval/internal/model"
	"expense-approval/internal/repository"
	"expense-approval/internal/workflow"
)

// --- DTOs ---

type StepInput struct {
	ApproverType          string           `json:"approver_type" binding:"required,oneof=user role department_head"`
	ApproverUserID        *string          `json:"approver_user_id"`
	RoleName              string           `json:"role_name"`
	ApproverDepartmentID  *string          `json:"approver_department_id"`
	MinAmount             *decimal.Decimal `json:"min_amount"`
	MaxAmount             *decimal.Decimal `json:"max_amount"`
	IsRequired            *bool            `json:"is_required"` // defaults to true
	CanDelegate           bool             `json:"can_delegate"`
	AutoApproveIfSameUser bool             `json:"auto_approve_if_same_user"`
}

type CreateRouteDTO struct {
	Name         string      `json:"name" binding:"required"`
	Description  string      `json:"description"`
	DepartmentID string      `json:"department_id" binding:"required"`
	IsActive     *bool       `json:"is_active"` // defaults to true
	Steps        []StepInput `json:"steps" binding:"required,min=1,dive"`
}

// UpdateRouteDTO changes only the fields that are set. A non-nil Steps replaces every step.
type UpdateRouteDTO struct {
	Name        *string     `json:"name"`
	Description *string     `json:"description"`
	IsActive    *bool       `json:"is_active"`
	Steps       []StepInput `json:"steps" binding:"omitempty,dive"`
}

type StepResponse struct {
	ID                    string  `json:"id"`
	StepNumber            int     `json:"step_number"`
	ApproverType          string  `json:"approver_type"`
	ApproverUserID        *string `json:"approver_user_id"`
	RoleName              string  `json:"role_name,omitempty"`
	ApproverDepartmentID  *string `json:"approver_department_id"`
	MinAmount             *string `json:"min_amount"`
	MaxAmount             *string `json:"max_amount"`
	IsRequired            bool    `json:"is_required"`
	CanDelegate           bool    `json:"can_delegate"`
	AutoApproveIfSameUser bool    `json:"auto_approve_if_same_user"`
}

type RouteResponse struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	DepartmentID string         `json:"department_id"`
	IsActive     bool           `json:"is_active"`
	CreatedBy    *string        `json:"created_by"`
	Steps        []StepResponse `json:"steps"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
}

// --- Interface ---

type RouteService interface {
	// CreateRoute saves a route and its steps. actorID may be uuid.Nil for bootstrap jobs.
	CreateRoute(ctx context.Context, actorID uuid.UUID, req CreateRouteDTO) (RouteResponse, error)
	UpdateRoute(ctx context.Context, actorID, routeID uuid.UUID, req UpdateRouteDTO) (RouteResponse, error)
	DeleteRoute(ctx context.Context, actorID, routeID uuid.UUID) error
	GetRoute(ctx context.Context, routeID uuid.UUID) (RouteResponse, error)
	ListRoutes(ctx context.Context, departmentID *uuid.UUID) ([]RouteResponse, error)
	// ActiveRouteFor returns the route in effect for a department.
	ActiveRouteFor(ctx context.Context, departmentID uuid.UUID) (*model.ApprovalRoute, error)
	RouteByID(ctx context.Context, routeID uuid.UUID) (*model.ApprovalRoute, error)
}

type routeService struct {
	tx     repository.TransactionManager
	routes repository.RouteRepository
	audit  repository.AuditRepository
	logger *zap.Logger
}

func NewRouteService(tx repository.TransactionManager, routes repository.RouteRepository, audit repository.AuditRepository, logger *zap.Logger) RouteService {
	return &routeService{tx: tx, routes: routes, audit: audit, logger: logger.With(zap.String("component", "route_service"))}
}

// --- Implementation ---

func (s *routeService) CreateRoute(ctx context.Context, actorID uuid.UUID, req CreateRouteDTO) (RouteResponse, error) {
	deptID, err := parseID("department_id", req.DepartmentID)
	if err != nil {
		return RouteResponse{}, err
	}
	steps, err := buildSteps(req.Steps)
	if err != nil {
		return RouteResponse{}, err
	}

	draft := &workflow.RouteDraft{
		Name:         req.Name,
		Description:  req.Description,
		DepartmentID: deptID,
		IsActive:     req.IsActive == nil || *req.IsActive,
	}
	for _, st := range steps {
		draft.AddStep(st)
	}
	if err := draft.Validate(); err != nil {
		return RouteResponse{}, err
	}

	route := model.ApprovalRoute{
		Name:         draft.Name,
		Description:  draft.Description,
		DepartmentID: draft.DepartmentID,
		IsActive:     draft.IsActive,
	}
	if actorID != uuid.Nil {
		route.CreatedBy = &actorID
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.routes.Create(txCtx, &route); err != nil {
			return apperror.Persistence("create route", err)
		}
		if err := s.routes.InsertSteps(txCtx, route.ID, draft.Steps); err != nil {
			return apperror.Persistence("insert steps", err)
		}
		if route.IsActive {
			if err := s.routes.DeactivateOthers(txCtx, route.DepartmentID, route.ID); err != nil {
				return apperror.Persistence("deactivate sibling routes", err)
			}
		}
		return s.writeAudit(txCtx, actorID, model.ActionCreateApprovalRoute, route.ID, route.Name, map[string]interface{}{
			"department_id": route.DepartmentID,
			"steps":         len(draft.Steps),
			"is_active":     route.IsActive,
		})
	})
	if err != nil {
		return RouteResponse{}, err
	}

	s.logger.Info("approval route created",
		zap.String("route_id", route.ID.String()),
		zap.String("department_id", route.DepartmentID.String()),
		zap.Int("steps", len(draft.Steps)))
	return s.GetRoute(ctx, route.ID)
}

func (s *routeService) UpdateRoute(ctx context.Context, actorID, routeID uuid.UUID, req UpdateRouteDTO) (RouteResponse, error) {
	var newSteps []model.ApprovalStep
	if req.Steps != nil {
		steps, err := buildSteps(req.Steps)
		if err != nil {
			return RouteResponse{}, err
		}
		newSteps = steps
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.routes.FindByID(txCtx, routeID)
		if err != nil {
			return storeErr("load route", "approval route", routeID, err)
		}

		draft := workflow.NewRouteDraft(*current)
		if req.Name != nil {
			draft.Name = *req.Name
		}
		if req.Description != nil {
			draft.Description = *req.Description
		}
		if req.IsActive != nil {
			draft.IsActive = *req.IsActive
		}
		if req.Steps != nil {
			if err := s.refuseInFlight(txCtx, current, "replace the steps of"); err != nil {
				return err
			}
			draft.Steps = nil
			for _, st := range newSteps {
				draft.AddStep(st)
			}
		}
		if err := draft.Validate(); err != nil {
			return err
		}

		fields := map[string]interface{}{
			"name":        draft.Name,
			"description": draft.Description,
			"is_active":   draft.IsActive,
		}
		if err := s.routes.UpdateFields(txCtx, routeID, fields); err != nil {
			return apperror.Persistence("update route", err)
		}
		if req.Steps != nil {
			if err := s.routes.DeleteSteps(txCtx, routeID); err != nil {
				return apperror.Persistence("delete steps", err)
			}
			if err := s.routes.InsertSteps(txCtx, routeID, draft.Steps); err != nil {
				return apperror.Persistence("insert steps", err)
			}
		}
		if draft.IsActive {
			if err := s.routes.DeactivateOthers(txCtx, current.DepartmentID, routeID); err != nil {
				return apperror.Persistence("deactivate sibling routes", err)
			}
		}
		return s.writeAudit(txCtx, actorID, model.ActionUpdateApprovalRoute, routeID, draft.Name, map[string]interface{}{
			"steps_replaced": req.Steps != nil,
			"steps":          len(draft.Steps),
			"is_active":      draft.IsActive,
		})
	})
	if err != nil {
		return RouteResponse{}, err
	}

	s.logger.Info("approval route updated", zap.String("route_id", routeID.String()), zap.Bool("steps_replaced", req.Steps != nil))
	return s.GetRoute(ctx, routeID)
}

func (s *routeService) DeleteRoute(ctx context.Context, actorID, routeID uuid.UUID) error {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		route, err := s.routes.FindByID(txCtx, routeID)
		if err != nil {
			return storeErr("load route", "approval route", routeID, err)
		}
		if err := s.refuseInFlight(txCtx, route, "delete"); err != nil {
			return err
		}
		if err := s.routes.Delete(txCtx, routeID); err != nil {
			return storeErr("delete route", "approval route", routeID, err)
		}
		return s.writeAudit(txCtx, actorID, model.ActionDeleteApprovalRoute, routeID, route.Name, map[string]interface{}{
			"department_id": route.DepartmentID,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("approval route deleted", zap.String("route_id", routeID.String()))
	return nil
}

// refuseInFlight fails while submitted applications still resolve their next step
// against the route's current steps.
func (s *routeService) refuseInFlight(ctx context.Context, route *model.ApprovalRoute, verb string) error {
	n, err := s.routes.CountInFlight(ctx, route.ID)
	if err != nil {
		return apperror.Persistence("count in-flight applications", err)
	}
	if n > 0 {
		return apperror.Conflict("cannot %s route %q: %d application(s) still in approval", verb, route.Name, n)
	}
	return nil
}

func (s *routeService) GetRoute(ctx context.Context, routeID uuid.UUID) (RouteResponse, error) {
	route, err := s.RouteByID(ctx, routeID)
	if err != nil {
		return RouteResponse{}, err
	}
	return toRouteResponse(*route), nil
}

func (s *routeService) ListRoutes(ctx context.Context, departmentID *uuid.UUID) ([]RouteResponse, error) {
	routes, err := s.routes.List(ctx, departmentID)
	if err != nil {
		return nil, apperror.Persistence("list routes", err)
	}
	res := make([]RouteResponse, 0, len(routes))
	for _, r := range routes {
		res = append(res, toRouteResponse(r))
	}
	return res, nil
}

func (s *routeService) ActiveRouteFor(ctx context.Context, departmentID uuid.UUID) (*model.ApprovalRoute, error) {
	routes, err := s.routes.ActiveFor(ctx, departmentID)
	if err != nil {
		return nil, apperror.Persistence("load active routes", err)
	}
	route, ok := workflow.ActiveRoute(routes)
	if !ok {
		return nil, apperror.NotFound("active approval route for department", departmentID.String())
	}
	return &route, nil
}

func (s *routeService) RouteByID(ctx context.Context, routeID uuid.UUID) (*model.ApprovalRoute, error) {
	route, err := s.routes.FindByID(ctx, routeID)
	if err != nil {
		return nil, storeErr("load route", "approval route", routeID, err)
	}
	return route, nil
}

func (s *routeService) writeAudit(ctx context.Context, actorID uuid.UUID, action string, routeID uuid.UUID, name string, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	entry := model.AuditLog{
		Action:     action,
		EntityID:   routeID.String(),
		EntityName: name,
		Details:    string(payload),
	}
	if actorID != uuid.Nil {
		entry.UserID = &actorID
	}
	if err := s.audit.Log(ctx, &entry); err != nil {
		return apperror.Persistence("write audit log", err)
	}
	return nil
}

// --- Helpers ---

func buildSteps(in []StepInput) ([]model.ApprovalStep, error) {
	steps := make([]model.ApprovalStep, 0, len(in))
	for i, st := range in {
		userID, err := parseOptionalID("approver_user_id", st.ApproverUserID)
		if err != nil {
			return nil, apperror.Validation("step %d: %v", i+1, err)
		}
		deptID, err := parseOptionalID("approver_department_id", st.ApproverDepartmentID)
		if err != nil {
			return nil, apperror.Validation("step %d: %v", i+1, err)
		}
		step := model.ApprovalStep{
			ApproverType:          st.ApproverType,
			ApproverUserID:        userID,
			RoleName:              st.RoleName,
			ApproverDepartmentID:  deptID,
			IsRequired:            st.IsRequired == nil || *st.IsRequired,
			CanDelegate:           st.CanDelegate,
			AutoApproveIfSameUser: st.AutoApproveIfSameUser,
		}
		if st.MinAmount != nil {
			step.MinAmount = decimal.NewNullDecimal(*st.MinAmount)
		}
		if st.MaxAmount != nil {
			step.MaxAmount = decimal.NewNullDecimal(*st.MaxAmount)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func nullDecimalString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func toRouteResponse(r model.ApprovalRoute) RouteResponse {
	steps := make([]StepResponse, 0, len(r.Steps))
	for _, st := range r.Steps {
		steps = append(steps, StepResponse{
			ID:                    st.ID.String(),
			StepNumber:            st.StepNumber,
			ApproverType:          st.ApproverType,
			ApproverUserID:        idString(st.ApproverUserID),
			RoleName:              st.RoleName,
			ApproverDepartmentID:  idString(st.ApproverDepartmentID),
			MinAmount:             nullDecimalString(st.MinAmount),
			MaxAmount:             nullDecimalString(st.MaxAmount),
			IsRequired:            st.IsRequired,
			CanDelegate:           st.CanDelegate,
			AutoApproveIfSameUser: st.AutoApproveIfSameUser,
		})
	}
	return RouteResponse{
		ID:           r.ID.String(),
		Name:         r.Name,
		Description:  r.Description,
		DepartmentID: r.DepartmentID.String(),
		IsActive:     r.IsActive,
		CreatedBy:    idString(r.CreatedBy),
		Steps:        steps,
		CreatedAt:    r.CreatedAt.Format(timeLayout),
		UpdatedAt:    r.UpdatedAt.Format(timeLayout),
	}
}
