package handler

import (
	"net/http"

	"expense-approval/internal/apperror"
	"expense-approval/internal/middleware"
	"expense-approval/internal/service"
	"expense-approval/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RouteHandler struct {
	routeService service.RouteService
	auth         *middleware.Auth
}

func NewRouteHandler(routeService service.RouteService, auth *middleware.Auth) *RouteHandler {
	return &RouteHandler{routeService: routeService, auth: auth}
}

func (h *RouteHandler) RegisterRoutes(router *gin.RouterGroup) {
	routes := router.Group("/api/approval-routes")
	{
		routes.GET("", h.auth.RequireRole(), h.ListRoutes)
		routes.GET("/:id", h.auth.RequireRole(), h.GetRoute)
		routes.POST("", h.auth.RequireRole(middleware.RoleAdmin), h.CreateRoute)
		routes.PUT("/:id", h.auth.RequireRole(middleware.RoleAdmin), h.UpdateRoute)
		routes.DELETE("/:id", h.auth.RequireRole(middleware.RoleAdmin), h.DeleteRoute)
	}
}

// ListRoutes returns approval routes, optionally for one department
// @Summary      List approval routes
// @Tags         approval-routes
// @Security     BearerAuth
// @Produce      json
// @Param        department_id  query     string  false  "Department ID"
// @Success      200            {object}  response.Response{data=[]service.RouteResponse}
// @Failure      400            {object}  response.Response
// @Router       /api/approval-routes [get]
func (h *RouteHandler) ListRoutes(c *gin.Context) {
	var deptID *uuid.UUID
	if raw := c.Query("department_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			fail(c, apperror.Validation("invalid department_id %q", raw))
			return
		}
		deptID = &id
	}

	routes, err := h.routeService.ListRoutes(c.Request.Context(), deptID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, routes))
}

// @Summary      Get an approval route with its steps
// @Tags         approval-routes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Route ID"
// @Success      200  {object}  response.Response{data=service.RouteResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/approval-routes/{id} [get]
func (h *RouteHandler) GetRoute(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	route, err := h.routeService.GetRoute(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, route))
}

// CreateRoute saves a route; an active route replaces the department's previous one
// @Summary      Create an approval route
// @Tags         approval-routes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateRouteDTO  true  "Route"
// @Success      201      {object}  response.Response{data=service.RouteResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/approval-routes [post]
func (h *RouteHandler) CreateRoute(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	var req service.CreateRouteDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	route, err := h.routeService.CreateRoute(c.Request.Context(), user.UserID, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, route))
}

// UpdateRoute edits a route; given steps replace the old ones in a single transaction
// @Summary      Update an approval route
// @Tags         approval-routes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                  true  "Route ID"
// @Param        payload  body      service.UpdateRouteDTO  true  "Changes"
// @Success      200      {object}  response.Response{data=service.RouteResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/approval-routes/{id} [put]
func (h *RouteHandler) UpdateRoute(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req service.UpdateRouteDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	route, err := h.routeService.UpdateRoute(c.Request.Context(), user.UserID, id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, route))
}

// @Summary      Delete an approval route
// @Tags         approval-routes
// @Security     BearerAuth
// @Param        id   path      string  true  "Route ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/approval-routes/{id} [delete]
func (h *RouteHandler) DeleteRoute(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.routeService.DeleteRoute(c.Request.Context(), user.UserID, id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"id": id.String()}))
}
