package handler

import (
	"net/http"

	"expense-approval/internal/middleware"
	"expense-approval/internal/model"
	"expense-approval/internal/service"
	"expense-approval/pkg/pagination"
	"expense-approval/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IdempotencyHeader lets clients retry an action without applying it twice.
const IdempotencyHeader = "Idempotency-Key"

type ApplicationHandler struct {
	applicationService service.ApplicationService
	approvalService    service.ApprovalService
	auditService       service.AuditService
	auth               *middleware.Auth
}

func NewApplicationHandler(
	applicationService service.ApplicationService,
	approvalService service.ApprovalService,
	auditService service.AuditService,
	auth *middleware.Auth,
) *ApplicationHandler {
	return &ApplicationHandler{
		applicationService: applicationService,
		approvalService:    approvalService,
		auditService:       auditService,
		auth:               auth,
	}
}

func (h *ApplicationHandler) RegisterRoutes(router *gin.RouterGroup) {
	apps := router.Group("/api/applications")
	apps.Use(h.auth.RequireRole())
	{
		apps.POST("", h.CreateApplication)
		apps.GET("", h.ListApplications)
		apps.GET("/:id", h.GetApplication)
		apps.PUT("/:id", h.UpdateApplication)
		apps.DELETE("/:id", h.DeleteApplication)
		apps.POST("/:id/submit", h.SubmitApplication)
		apps.POST("/:id/actions", h.ApplyAction)
		apps.GET("/:id/history", h.GetHistory)
		apps.GET("/:id/timing", h.GetTiming)
	}
}

// @Summary      Create a draft application
// @Tags         applications
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateApplicationDTO  true  "Application"
// @Success      201      {object}  response.Response{data=service.ApplicationResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/applications [post]
func (h *ApplicationHandler) CreateApplication(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	var req service.CreateApplicationDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	app, err := h.applicationService.Create(c.Request.Context(), user.UserID, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, app))
}

// ListApplications filters by department, applicant ("me" for the caller), status list, type, date range and title text
// @Summary      List applications
// @Tags         applications
// @Security     BearerAuth
// @Produce      json
// @Param        department_id  query     string  false  "Department ID"
// @Param        applicant_id   query     string  false  "Applicant ID or 'me'"
// @Param        status         query     string  false  "Comma separated statuses"
// @Param        type           query     string  false  "business_trip or expense"
// @Param        from           query     string  false  "Created on or after (YYYY-MM-DD)"
// @Param        to             query     string  false  "Created on or before (YYYY-MM-DD)"
// @Param        q              query     string  false  "Title contains"
// @Param        page           query     int     false  "Page number (default 1)"
// @Param        limit          query     int     false  "Items per page (default 20)"
// @Success      200            {object}  response.Response{data=pagination.Page}
// @Router       /api/applications [get]
func (h *ApplicationHandler) ListApplications(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	q := service.ApplicationQuery{
		DepartmentID: c.Query("department_id"),
		ApplicantID:  c.Query("applicant_id"),
		Status:       c.Query("status"),
		Type:         c.Query("type"),
		From:         c.Query("from"),
		To:           c.Query("to"),
		Q:            c.Query("q"),
		Page:         p.Page,
		Limit:        p.Limit,
	}
	if q.ApplicantID == "me" {
		q.ApplicantID = user.UserID.String()
	}

	apps, total, err := h.applicationService.List(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(apps, total, p)))
}

// @Summary      Get an application
// @Tags         applications
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Application ID"
// @Success      200  {object}  response.Response{data=service.ApplicationResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/applications/{id} [get]
func (h *ApplicationHandler) GetApplication(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	app, err := h.applicationService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, app))
}

// UpdateApplication edits a draft or returned application
// @Summary      Update an application
// @Tags         applications
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Application ID"
// @Param        payload  body      service.UpdateApplicationDTO  true  "Changes"
// @Success      200      {object}  response.Response{data=service.ApplicationResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/applications/{id} [put]
func (h *ApplicationHandler) UpdateApplication(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req service.UpdateApplicationDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	app, err := h.applicationService.Update(c.Request.Context(), user.UserID, id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, app))
}

// @Summary      Delete an application
// @Tags         applications
// @Security     BearerAuth
// @Param        id   path      string  true  "Application ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/applications/{id} [delete]
func (h *ApplicationHandler) DeleteApplication(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.applicationService.Delete(c.Request.Context(), user.UserID, id, user.IsAdmin()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"id": id.String()}))
}

// SubmitApplication sends a draft, or resends a returned application, into its department's route
// @Summary      Submit an application
// @Tags         applications
// @Security     BearerAuth
// @Produce      json
// @Param        id               path      string  true   "Application ID"
// @Param        Idempotency-Key  header    string  false  "Retry key"
// @Success      200              {object}  response.Response{data=service.ActionResult}
// @Failure      404              {object}  response.Response
// @Failure      409              {object}  response.Response
// @Router       /api/applications/{id}/submit [post]
func (h *ApplicationHandler) SubmitApplication(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	res, err := h.approvalService.Submit(c.Request.Context(), id, user.UserID, c.GetHeader(IdempotencyHeader))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// ApplyAction runs approve, reject, return, hold, delegate or resume for the caller
// @Summary      Apply an approval action
// @Tags         applications
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id               path      string             true   "Application ID"
// @Param        payload          body      service.ActionDTO  true   "Action"
// @Param        Idempotency-Key  header    string             false  "Retry key, overrides idempotency_key in the body"
// @Success      200              {object}  response.Response{data=service.ActionResult}
// @Failure      400              {object}  response.Response
// @Failure      403              {object}  response.Response
// @Failure      409              {object}  response.Response
// @Router       /api/applications/{id}/actions [post]
func (h *ApplicationHandler) ApplyAction(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req service.ActionDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	action := service.ActionRequest{
		ApplicationID:  id,
		ActorID:        user.UserID,
		Action:         model.Action(req.Action),
		Comment:        req.Comment,
		IdempotencyKey: req.IdempotencyKey,
	}
	if key := c.GetHeader(IdempotencyHeader); key != "" {
		action.IdempotencyKey = key
	}
	if req.NextApproverID != nil && *req.NextApproverID != "" {
		next, err := uuid.Parse(*req.NextApproverID)
		if err != nil {
			badRequest(c, "invalid next_approver_id")
			return
		}
		action.NextApproverID = &next
	}

	res, err := h.approvalService.Act(c.Request.Context(), action)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// @Summary      Decision history of an application, oldest first
// @Tags         applications
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Application ID"
// @Success      200  {object}  response.Response{data=[]service.ApprovalLogResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/applications/{id}/history [get]
func (h *ApplicationHandler) GetHistory(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	history, err := h.auditService.History(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, history))
}

// @Summary      Processing time and days waiting of an application
// @Tags         applications
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Application ID"
// @Success      200  {object}  response.Response{data=service.TimingResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/applications/{id}/timing [get]
func (h *ApplicationHandler) GetTiming(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	timing, err := h.auditService.Timing(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, timing))
}
