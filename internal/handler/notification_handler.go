package handler

import (
	"net/http"

	"expense-approval/internal/middleware"
	"expense-approval/internal/service"
	"expense-approval/pkg/pagination"
	"expense-approval/pkg/response"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notificationService service.NotificationService
	auth                *middleware.Auth
}

func NewNotificationHandler(notificationService service.NotificationService, auth *middleware.Auth) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService, auth: auth}
}

func (h *NotificationHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/notifications")
	group.Use(h.auth.RequireRole())
	{
		group.GET("", h.ListNotifications)
		group.PUT("/:id/read", h.MarkRead)
	}
}

// @Summary      List the caller's notifications
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Param        unread  query     bool  false  "Only unread"
// @Param        page    query     int   false  "Page number (default 1)"
// @Param        limit   query     int   false  "Items per page (default 20)"
// @Success      200     {object}  response.Response{data=service.NotificationList}
// @Router       /api/notifications [get]
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	list, err := h.notificationService.List(c.Request.Context(), user.UserID, c.Query("unread") == "true", p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, list))
}

// @Summary      Mark a notification read
// @Tags         notifications
// @Security     BearerAuth
// @Param        id   path      string  true  "Notification ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/notifications/{id}/read [put]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.notificationService.MarkRead(c.Request.Context(), user.UserID, id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"id": id.String(), "is_read": true}))
}
