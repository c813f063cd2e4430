package handler

import (
	"net/http"

	"expense-approval/internal/middleware"
	"expense-approval/internal/service"
	"expense-approval/pkg/pagination"
	"expense-approval/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
	auth         *middleware.Auth
}

func NewAuditHandler(auditService service.AuditService, auth *middleware.Auth) *AuditHandler {
	return &AuditHandler{auditService: auditService, auth: auth}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit-logs")
	group.Use(h.auth.RequireRole(middleware.RoleAdmin))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs lists administrative changes such as route edits and application deletions
// @Summary      Get audit logs
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        action  query     string  false  "Filter by action, e.g. UPDATE_APPROVAL_ROUTE"
// @Param        entity_id  query  string  false  "Only changes to this route, application or user"
// @Param        user_id    query  string  false  "Only changes made by this user"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=pagination.Page}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	q := service.AuditQuery{
		Action:   c.Query("action"),
		EntityID: c.Query("entity_id"),
		UserID:   c.Query("user_id"),
	}
	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), q, p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(logs, total, p)))
}
