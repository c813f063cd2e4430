package handler

import (
	"net/http"

	"expense-approval/internal/middleware"
	"expense-approval/internal/service"
	"expense-approval/pkg/pagination"
	"expense-approval/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	applicationService service.ApplicationService
	auditService       service.AuditService
	auth               *middleware.Auth
}

func NewApprovalHandler(applicationService service.ApplicationService, auditService service.AuditService, auth *middleware.Auth) *ApprovalHandler {
	return &ApprovalHandler{applicationService: applicationService, auditService: auditService, auth: auth}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/api/approvals")
	{
		approvals.GET("/pending", h.auth.RequireRole(), h.ListPending)
	}
	reports := router.Group("/api/reports")
	{
		reports.GET("/processing-time", h.auth.RequireRole(middleware.RoleAdmin, "manager"), h.ProcessingTime)
	}
}

// ListPending returns applications waiting on the caller's decision
// @Summary      Pending approvals for the caller
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=pagination.Page}
// @Router       /api/approvals/pending [get]
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	apps, total, err := h.applicationService.Pending(c.Request.Context(), user.UserID, p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(apps, total, p)))
}

// ProcessingTime averages submission-to-decision time of finished applications
// @Summary      Processing time report
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Param        department_id  query     string  false  "Department ID"
// @Param        from           query     string  false  "Created on or after (YYYY-MM-DD)"
// @Param        to             query     string  false  "Created on or before (YYYY-MM-DD)"
// @Success      200            {object}  response.Response{data=service.ProcessingReport}
// @Failure      400            {object}  response.Response
// @Router       /api/reports/processing-time [get]
func (h *ApprovalHandler) ProcessingTime(c *gin.Context) {
	report, err := h.auditService.ProcessingReport(c.Request.Context(), service.ReportQuery{
		DepartmentID: c.Query("department_id"),
		From:         c.Query("from"),
		To:           c.Query("to"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}
