package service

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"

	"expense-approval/internal/apperror"
	"expense-approval/internal/event"
	"expense-approval/internal/metrics"
	"expense-approval/internal/model"
	"expense-approval/internal/repository"
	"expense-approval/internal/workflow"
)

const autoApproveComment = "auto-approved: step approver is the applicant"

// --- DTOs ---

type ActionDTO struct {
	Action         string  `json:"action" binding:"required,oneof=approve reject return hold delegate resume submit resubmit"`
	Comment        string  `json:"comment"`
	NextApproverID *string `json:"next_approver_id"`
	IdempotencyKey string  `json:"idempotency_key"`
}

// ActionRequest is one decision or lifecycle move by an authenticated actor.
type ActionRequest struct {
	ApplicationID  uuid.UUID
	ActorID        uuid.UUID
	Action         model.Action
	Comment        string
	NextApproverID *uuid.UUID // hold, delegate, resume
	IdempotencyKey string
}

type ApprovalLogResponse struct {
	ID           string  `json:"id"`
	Sequence     int     `json:"sequence"`
	ApproverID   *string `json:"approver_id"`
	ApproverName string  `json:"approver_name"`
	Action       string  `json:"action"`
	Comment      *string `json:"comment"`
	StatusBefore string  `json:"status_before"`
	StatusAfter  string  `json:"status_after"`
	StepNumber   int     `json:"step_number"`
	CreatedAt    string  `json:"created_at"`
}

type ActionResult struct {
	Application ApplicationResponse   `json:"application"`
	Entries     []ApprovalLogResponse `json:"entries"`
	// Replayed is true when the idempotency key matched an earlier, already applied request.
	Replayed bool `json:"replayed"`
}

// --- Interface ---

type ApprovalService interface {
	// Submit sends a draft (or returned) application into its department's active route.
	Submit(ctx context.Context, appID, actorID uuid.UUID, idempotencyKey string) (ActionResult, error)
	// Act applies an action atomically: audit entries and the status change commit together or not at all.
	Act(ctx context.Context, req ActionRequest) (ActionResult, error)
}

type approvalService struct {
	tx      repository.TransactionManager
	apps    repository.ApplicationRepository
	logs    repository.ApprovalLogRepository
	routes  RouteService
	dir     workflow.Directory
	events  event.Publisher
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
}

func NewApprovalService(
	tx repository.TransactionManager,
	apps repository.ApplicationRepository,
	logs repository.ApprovalLogRepository,
	routes RouteService,
	dir workflow.Directory,
	events event.Publisher,
	collector *metrics.Collector,
	logger *zap.Logger,
) ApprovalService {
	return &approvalService{
		tx:      tx,
		apps:    apps,
		logs:    logs,
		routes:  routes,
		dir:     dir,
		events:  events,
		metrics: collector,
		logger:  logger.With(zap.String("component", "approval_processor")),
		now:     time.Now,
	}
}

// outcome is what a committed action changed.
type outcome struct {
	app          *model.Application // state before the action
	statusAfter  model.Status
	approverID   *uuid.UUID
	entries      []model.ApprovalLog
	autoApproved int
}

// --- Implementation ---

func (s *approvalService) Submit(ctx context.Context, appID, actorID uuid.UUID, idempotencyKey string) (ActionResult, error) {
	app, err := s.apps.FindByID(ctx, appID)
	if err != nil {
		return ActionResult{}, storeErr("load application", "application", appID, err)
	}
	action := model.ActionSubmit
	if app.Status == model.StatusReturned {
		action = model.ActionResubmit
	}
	return s.Act(ctx, ActionRequest{ApplicationID: appID, ActorID: actorID, Action: action, IdempotencyKey: idempotencyKey})
}

func (s *approvalService) Act(ctx context.Context, req ActionRequest) (ActionResult, error) {
	log := s.logger.With(
		zap.String("application_id", req.ApplicationID.String()),
		zap.String("actor_id", req.ActorID.String()),
		zap.String("action", string(req.Action)))

	var key *string
	if req.IdempotencyKey != "" {
		fp := fingerprint(req.ApplicationID, req.ActorID, req.IdempotencyKey)
		key = &fp
		if res, ok, err := s.replay(ctx, req, fp); err != nil || ok {
			if ok {
				log.Info("idempotent replay")
			}
			return res, err
		}
	}

	out, err := s.apply(ctx, req, key)
	if err != nil {
		kind := apperror.KindOf(err)
		s.metrics.RecordFailure(string(req.Action), string(kind))
		if kind == apperror.KindConflict {
			s.metrics.RecordConflict()
		}
		if kind == apperror.KindPersistence {
			log.Error("action failed", zap.Error(err))
		} else {
			log.Info("action refused", zap.String("kind", string(kind)), zap.Error(err))
		}
		return ActionResult{}, err
	}

	s.metrics.RecordAction(string(req.Action), string(out.statusAfter))
	s.metrics.RecordAutoApprovals(out.autoApproved)
	log.Info("action applied",
		zap.String("status_before", string(out.app.Status)),
		zap.String("status_after", string(out.statusAfter)),
		zap.Int("entries", len(out.entries)))

	s.afterCommit(ctx, req, out, log)

	updated, err := s.apps.FindByID(ctx, req.ApplicationID)
	if err != nil {
		return ActionResult{}, storeErr("reload application", "application", req.ApplicationID, err)
	}
	return ActionResult{
		Application: toApplicationResponse(*updated, s.now()),
		Entries:     toLogResponses(out.entries),
	}, nil
}

// replay returns the stored result of an earlier request carrying the same key.
func (s *approvalService) replay(ctx context.Context, req ActionRequest, fp string) (ActionResult, bool, error) {
	prior, err := s.logs.FindByIdempotencyKey(ctx, fp)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ActionResult{}, false, nil
	}
	if err != nil {
		return ActionResult{}, false, apperror.Persistence("look up idempotency key", err)
	}
	if !sameAction(prior.Action, req.Action) {
		return ActionResult{}, false, apperror.Conflict("idempotency key was already used for %q", prior.Action)
	}

	app, err := s.apps.FindByID(ctx, req.ApplicationID)
	if err != nil {
		return ActionResult{}, false, storeErr("load application", "application", req.ApplicationID, err)
	}
	history, err := s.logs.HistoryFor(ctx, req.ApplicationID)
	if err != nil {
		return ActionResult{}, false, apperror.Persistence("load approval history", err)
	}
	// The original request wrote the keyed entry plus any auto-approvals right after it.
	var entries []model.ApprovalLog
	for _, e := range history {
		if e.Sequence == prior.Sequence || (e.Sequence > prior.Sequence && e.IsSystem() && len(entries) > 0) {
			entries = append(entries, e)
		} else if len(entries) > 0 {
			break
		}
	}
	return ActionResult{
		Application: toApplicationResponse(*app, s.now()),
		Entries:     toLogResponses(entries),
		Replayed:    true,
	}, true, nil
}

func (s *approvalService) apply(ctx context.Context, req ActionRequest, key *string) (outcome, error) {
	if !workflow.ValidAction(req.Action) {
		return outcome{}, apperror.Validation("unknown action %q", req.Action)
	}

	var out outcome
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		app, err := s.apps.FindForUpdate(txCtx, req.ApplicationID)
		if err != nil {
			return storeErr("load application", "application", req.ApplicationID, err)
		}

		next, err := workflow.Transition(app.Status, req.Action)
		if err != nil {
			return err
		}
		if err := s.authorize(txCtx, app, req); err != nil {
			return err
		}

		now := s.now()
		p := plan{
			app:        app,
			now:        now,
			statusNext: next,
			updates:    map[string]interface{}{},
			main: model.ApprovalLog{
				ApplicationID:  app.ID,
				ApproverID:     &req.ActorID,
				Action:         req.Action,
				Comment:        optionalString(req.Comment),
				StatusBefore:   app.Status,
				StepNumber:     app.CurrentStep,
				IdempotencyKey: key,
			},
		}
		if err := s.decide(txCtx, &p, req); err != nil {
			return err
		}

		entries := p.chain()
		for i := range entries {
			entries[i].CreatedAt = now
			if err := s.logs.Append(txCtx, &entries[i]); err != nil {
				return apperror.Persistence("append approval log", err)
			}
		}

		p.updates["status"] = p.statusNext
		p.updates["current_approver_id"] = p.approverID
		p.updates["status_changed_at"] = now
		ok, err := s.apps.CompareAndSwap(txCtx, app.ID, app.Status, app.Version, p.updates)
		if err != nil {
			return apperror.Persistence("update application status", err)
		}
		if !ok {
			return apperror.Conflict("application %s was modified concurrently; reload and retry", app.ID)
		}

		out = outcome{
			app:          app,
			statusAfter:  p.statusNext,
			approverID:   p.approverID,
			entries:      entries,
			autoApproved: len(p.auto),
		}
		return nil
	})
	return out, err
}

func (s *approvalService) authorize(ctx context.Context, app *model.Application, req ActionRequest) error {
	switch {
	case workflow.RequiresCurrentApprover(req.Action):
		if app.CurrentApproverID == nil || *app.CurrentApproverID != req.ActorID {
			return apperror.Unauthorized("user %s is not the current approver of application %s", req.ActorID, app.ID)
		}
	case req.Action == model.ActionSubmit || req.Action == model.ActionResubmit:
		if app.ApplicantID != req.ActorID {
			return apperror.Unauthorized("only the applicant may submit application %s", app.ID)
		}
	case req.Action == model.ActionResume:
		if app.CurrentApproverID != nil {
			if *app.CurrentApproverID != req.ActorID {
				return apperror.Unauthorized("user %s is not the approver of held application %s", req.ActorID, app.ID)
			}
			return nil
		}
		holder, err := s.lastHolder(ctx, app.ID)
		if err != nil {
			return err
		}
		if holder == nil || *holder != req.ActorID {
			return apperror.Unauthorized("only the user who placed application %s on hold may resume it", app.ID)
		}
	}
	return nil
}

func (s *approvalService) lastHolder(ctx context.Context, appID uuid.UUID) (*uuid.UUID, error) {
	history, err := s.logs.HistoryFor(ctx, appID)
	if err != nil {
		return nil, apperror.Persistence("load approval history", err)
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Action == model.ActionHold {
			return history[i].ApproverID, nil
		}
	}
	return nil, nil
}

// plan collects the effects of one action before anything is written.
type plan struct {
	app        *model.Application
	now        time.Time
	statusNext model.Status
	approverID *uuid.UUID
	main       model.ApprovalLog
	auto       []model.ApprovalStep
	updates    map[string]interface{}
}

// chain links the main entry and any auto-approval entries into a walk that
// starts at the current status and ends at statusNext.
func (p *plan) chain() []model.ApprovalLog {
	entries := []model.ApprovalLog{p.main}
	for _, st := range p.auto {
		comment := autoApproveComment
		entries = append(entries, model.ApprovalLog{
			ApplicationID: p.app.ID,
			Action:        model.ActionApprove,
			Comment:       &comment,
			StepNumber:    st.StepNumber,
		})
	}
	for i := range entries {
		if i > 0 {
			entries[i].StatusBefore = entries[i-1].StatusAfter
		}
		entries[i].StatusAfter = model.StatusPending
	}
	entries[len(entries)-1].StatusAfter = p.statusNext
	return entries
}

// advanceTo applies a route resolution: the route is either complete or parked on a new step.
func (p *plan) advanceTo(res workflow.Resolution) {
	p.auto = res.AutoApproved
	if res.Complete() {
		p.statusNext = model.StatusApproved
		p.approverID = nil
		p.updates["approved_at"] = p.now
		if n := len(res.AutoApproved); n > 0 {
			p.updates["current_step"] = res.AutoApproved[n-1].StepNumber
		}
		return
	}
	approver := res.ApproverID
	p.statusNext = model.StatusPending
	p.approverID = &approver
	p.updates["current_step"] = res.Active.StepNumber
}

func (s *approvalService) decide(ctx context.Context, p *plan, req ActionRequest) error {
	app := p.app
	switch req.Action {
	case model.ActionSubmit, model.ActionResubmit:
		route, err := s.routes.ActiveRouteFor(ctx, app.DepartmentID)
		if err != nil {
			return err
		}
		if len(app.Items) > 0 {
			total := model.ItemsTotal(app.Items)
			app.TotalAmount.Decimal, app.TotalAmount.Valid = total, true
			p.updates["total_amount"] = app.TotalAmount
		}
		res, err := workflow.Advance(ctx, s.dir, route.Steps, app, 0)
		if err != nil {
			return err
		}
		if res.Complete() && len(res.AutoApproved) == 0 {
			return apperror.Validation("no step of route %q applies to application %s", route.Name, app.ID)
		}
		p.updates["route_id"] = route.ID
		p.updates["rejection_reason"] = nil
		if app.SubmittedAt == nil {
			p.updates["submitted_at"] = p.now
		}
		p.main.StepNumber = 0
		p.advanceTo(res)

	case model.ActionApprove:
		steps, err := s.routeSteps(ctx, app)
		if err != nil {
			return err
		}
		res, err := workflow.Advance(ctx, s.dir, steps, app, app.CurrentStep)
		if err != nil {
			return err
		}
		p.advanceTo(res)

	case model.ActionReject:
		p.approverID = nil
		p.updates["rejection_reason"] = optionalString(req.Comment)

	case model.ActionReturn:
		applicant := app.ApplicantID
		p.approverID = &applicant
		p.updates["current_step"] = 0

	case model.ActionHold:
		p.approverID = req.NextApproverID

	case model.ActionDelegate:
		if req.NextApproverID == nil {
			return apperror.Validation("delegate requires next_approver_id")
		}
		if *req.NextApproverID == req.ActorID {
			return apperror.Validation("cannot delegate to yourself")
		}
		steps, err := s.routeSteps(ctx, app)
		if err != nil {
			return err
		}
		step, ok := workflow.FindStep(steps, app.CurrentStep)
		if !ok || !step.CanDelegate {
			return apperror.Validation("step %d does not allow delegation", app.CurrentStep)
		}
		p.approverID = req.NextApproverID

	case model.ActionResume:
		if req.NextApproverID != nil {
			p.approverID = req.NextApproverID
			return nil
		}
		if app.CurrentApproverID != nil {
			p.approverID = app.CurrentApproverID
			return nil
		}
		steps, err := s.routeSteps(ctx, app)
		if err != nil {
			return err
		}
		step, ok := workflow.FindStep(steps, app.CurrentStep)
		if !ok {
			return apperror.Validation("application %s has no active step to resume; give next_approver_id", app.ID)
		}
		approver, err := workflow.ResolveApprover(ctx, s.dir, step, app)
		if err != nil {
			return err
		}
		p.approverID = &approver
	}
	return nil
}

// routeSteps loads the steps of the route the application was submitted into.
func (s *approvalService) routeSteps(ctx context.Context, app *model.Application) ([]model.ApprovalStep, error) {
	if app.RouteID == nil {
		return nil, apperror.Validation("application %s has no approval route", app.ID)
	}
	route, err := s.routes.RouteByID(ctx, *app.RouteID)
	if err != nil {
		return nil, err
	}
	return route.Steps, nil
}

func (s *approvalService) afterCommit(ctx context.Context, req ActionRequest, out outcome, log *zap.Logger) {
	now := s.now()
	base := event.Event{
		ApplicationID: out.app.ID,
		Title:         out.app.Title,
		Priority:      out.app.Priority,
		ApplicantID:   out.app.ApplicantID,
		ActorID:       &req.ActorID,
		Action:        req.Action,
		StatusBefore:  out.app.Status,
		StatusAfter:   out.statusAfter,
		ApproverID:    out.approverID,
		Comment:       req.Comment,
		OccurredAt:    now,
	}

	changed := base
	changed.Type = event.StatusChanged
	if err := s.events.Publish(ctx, changed); err != nil {
		log.Warn("status event not fully delivered", zap.Error(err))
	}
	if out.statusAfter == model.StatusPending && out.approverID != nil {
		required := base
		required.Type = event.ApprovalRequired
		if err := s.events.Publish(ctx, required); err != nil {
			log.Warn("approval-required event not fully delivered", zap.Error(err))
		}
	}

	if out.statusAfter.IsTerminal() {
		history, err := s.logs.HistoryFor(ctx, out.app.ID)
		if err != nil {
			log.Warn("processing time not recorded", zap.Error(err))
			return
		}
		terminal := *out.app
		terminal.Status = out.statusAfter
		if d, ok := workflow.ProcessingTime(&terminal, history); ok {
			s.metrics.ObserveProcessingTime(string(out.statusAfter), d)
		}
	}
}

// Submit picks submit or resubmit from the current status, so a retry after the
// status moved on may name the other one.
func sameAction(a, b model.Action) bool {
	isSubmit := func(x model.Action) bool { return x == model.ActionSubmit || x == model.ActionResubmit }
	return a == b || (isSubmit(a) && isSubmit(b))
}

// fingerprint binds a client key to the application and actor.
func fingerprint(appID, actorID uuid.UUID, key string) string {
	h, _ := blake2b.New256(nil)
	h.Write(appID[:])
	h.Write(actorID[:])
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}

func toLogResponses(entries []model.ApprovalLog) []ApprovalLogResponse {
	res := make([]ApprovalLogResponse, 0, len(entries))
	for _, e := range entries {
		var name string
		switch {
		case e.IsSystem():
			name = "System"
		case e.Approver != nil && e.Approver.FullName != "":
			name = e.Approver.FullName
		case e.Approver != nil:
			name = e.Approver.Username
		}
		res = append(res, ApprovalLogResponse{
			ID:           e.ID.String(),
			Sequence:     e.Sequence,
			ApproverID:   idString(e.ApproverID),
			ApproverName: name,
			Action:       string(e.Action),
			Comment:      e.Comment,
			StatusBefore: string(e.StatusBefore),
			StatusAfter:  string(e.StatusAfter),
			StepNumber:   e.StepNumber,
			CreatedAt:    e.CreatedAt.Format(timeLayout),
		})
	}
	return res
}
