package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"expense-approval/internal/database"
	"expense-approval/internal/event"
	"expense-approval/internal/metrics"
	"expense-approval/internal/model"
	"expense-approval/internal/repository"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	t   *testing.T
	ctx context.Context
	db  *gorm.DB
	reg *prometheus.Registry

	txm       repository.TransactionManager
	appRepo   repository.ApplicationRepository
	logRepo   repository.ApprovalLogRepository
	routeRepo repository.RouteRepository
	userRepo  repository.UserRepository
	auditRepo repository.AuditRepository

	clock     *testClock
	events    *event.Recorder
	collector *metrics.Collector

	routes    RouteService
	apps      *applicationService
	approvals *approvalService
	audit     *auditService

	dept      model.Department
	applicant model.User
	manager   model.User
	director  model.User
	outsider  model.User
	admin     model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		db:        db,
		reg:       prometheus.NewRegistry(),
		txm:       repository.NewTransactionManager(db),
		appRepo:   repository.NewApplicationRepository(db),
		logRepo:   repository.NewApprovalLogRepository(db),
		routeRepo: repository.NewRouteRepository(db),
		userRepo:  repository.NewUserRepository(db),
		auditRepo: repository.NewAuditRepository(db),
		clock:     &testClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		events:    &event.Recorder{},
	}
	f.collector = metrics.NewCollector("test", f.reg)
	f.routes = NewRouteService(f.txm, f.routeRepo, f.auditRepo, zap.NewNop())
	f.apps = NewApplicationService(f.txm, f.appRepo, f.logRepo, f.auditRepo, zap.NewNop()).(*applicationService)
	f.apps.now = f.clock.Now
	f.approvals = f.processor(f.appRepo)
	f.audit = NewAuditService(f.appRepo, f.logRepo, f.auditRepo).(*auditService)
	f.audit.now = f.clock.Now

	f.dept = model.Department{Name: "Sales"}
	require.NoError(t, f.userRepo.CreateDepartment(f.ctx, &f.dept))
	f.applicant = f.user("hanako", "staff")
	f.manager = f.user("taro", "manager")
	f.director = f.user("jiro", "director")
	f.outsider = f.user("saburo", "staff")
	f.admin = f.user("root", "admin")
	require.NoError(t, f.userRepo.SetDepartmentHead(f.ctx, f.dept.ID, f.manager.ID))
	return f
}

// processor builds an approval service over apps so tests can swap the repository.
func (f *fixture) processor(apps repository.ApplicationRepository) *approvalService {
	s := NewApprovalService(f.txm, apps, f.logRepo, f.routes, NewDirectory(f.userRepo),
		f.events, f.collector, zap.NewNop()).(*approvalService)
	s.now = f.clock.Now
	return s
}

func (f *fixture) user(username, role string) model.User {
	u := model.User{
		Username:     username,
		Email:        username + "@example.com",
		FullName:     username,
		Role:         role,
		DepartmentID: &f.dept.ID,
	}
	require.NoError(f.t, f.userRepo.Create(f.ctx, &u))
	return u
}

func userStep(id uuid.UUID) StepInput {
	s := id.String()
	return StepInput{ApproverType: model.ApproverTypeUser, ApproverUserID: &s}
}

func amountRange(st StepInput, min, max int64) StepInput {
	lo, hi := decimal.NewFromInt(min), decimal.NewFromInt(max)
	st.MinAmount, st.MaxAmount = &lo, &hi
	return st
}

func (f *fixture) route(steps ...StepInput) RouteResponse {
	f.t.Helper()
	res, err := f.routes.CreateRoute(f.ctx, f.admin.ID, CreateRouteDTO{
		Name:         "Sales expenses",
		DepartmentID: f.dept.ID.String(),
		Steps:        steps,
	})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) draft(total int64) uuid.UUID {
	f.t.Helper()
	amount := decimal.NewFromInt(total)
	res, err := f.apps.Create(f.ctx, f.applicant.ID, CreateApplicationDTO{
		Type:         model.AppTypeExpense,
		Title:        "Client dinner",
		DepartmentID: f.dept.ID.String(),
		TotalAmount:  &amount,
	})
	require.NoError(f.t, err)
	return uuid.MustParse(res.ID)
}

func (f *fixture) submitted(total int64) uuid.UUID {
	f.t.Helper()
	id := f.draft(total)
	_, err := f.approvals.Submit(f.ctx, id, f.applicant.ID, "")
	require.NoError(f.t, err)
	return id
}

func (f *fixture) act(id, actor uuid.UUID, action model.Action, next *uuid.UUID) (ActionResult, error) {
	return f.approvals.Act(f.ctx, ActionRequest{
		ApplicationID:  id,
		ActorID:        actor,
		Action:         action,
		Comment:        "ok",
		NextApproverID: next,
	})
}

func (f *fixture) history(id uuid.UUID) []model.ApprovalLog {
	f.t.Helper()
	h, err := f.logRepo.HistoryFor(f.ctx, id)
	require.NoError(f.t, err)
	return h
}

func (f *fixture) load(id uuid.UUID) *model.Application {
	f.t.Helper()
	app, err := f.appRepo.FindByID(f.ctx, id)
	require.NoError(f.t, err)
	return app
}

func actionsOf(history []model.ApprovalLog) []model.Action {
	out := make([]model.Action, 0, len(history))
	for _, e := range history {
		out = append(out, e.Action)
	}
	return out
}
