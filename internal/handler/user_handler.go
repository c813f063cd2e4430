package handler

import (
	"net/http"

	"expense-approval/internal/middleware"
	"expense-approval/internal/service"
	"expense-approval/pkg/pagination"
	"expense-approval/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService service.UserService
	auth        *middleware.Auth
}

// NewUserHandler sets up the routing dependencies for directory endpoints
func NewUserHandler(userService service.UserService, auth *middleware.Auth) *UserHandler {
	return &UserHandler{userService: userService, auth: auth}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/me", h.auth.RequireRole(), h.GetMe)

	users := router.Group("/api/users")
	{
		users.GET("", h.auth.RequireRole(), h.ListUsers)
		users.POST("", h.auth.RequireRole(middleware.RoleAdmin), h.CreateUser)
	}

	departments := router.Group("/api/departments")
	departments.Use(h.auth.RequireRole(middleware.RoleAdmin))
	{
		departments.POST("", h.CreateDepartment)
		departments.PUT("/:id/head", h.SetDepartmentHead)
	}
}

// GetMe returns the directory record of the caller
// @Summary      Get current user
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.UserResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	user, err := h.userService.GetUserByID(c.Request.Context(), id.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

// ListUsers is used to pick delegates and role approvers
// @Summary      List directory users
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        role   query     string  false  "Filter by role"
// @Param        page   query     int     false  "Page number (default 1)"
// @Param        limit  query     int     false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=pagination.Page}
// @Router       /api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	p := pagination.Parse(c)
	users, total, err := h.userService.ListUsers(c.Request.Context(), c.Query("role"), p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(users, total, p)))
}

// @Summary      Create a directory user
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateUserRequest  true  "User"
// @Success      201      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), id.UserID, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, user))
}

// @Summary      Create a department
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateDepartmentRequest  true  "Department"
// @Success      201      {object}  response.Response{data=service.DepartmentResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/departments [post]
func (h *UserHandler) CreateDepartment(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var req service.CreateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	dept, err := h.userService.CreateDepartment(c.Request.Context(), id.UserID, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, dept))
}

// SetDepartmentHead changes who department_head steps resolve to
// @Summary      Set the head of a department
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                            true  "Department ID"
// @Param        payload  body      service.SetDepartmentHeadRequest  true  "New head"
// @Success      200      {object}  response.Response{data=service.DepartmentResponse}
// @Failure      404      {object}  response.Response
// @Router       /api/departments/{id}/head [put]
func (h *UserHandler) SetDepartmentHead(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	deptID, ok := idParam(c)
	if !ok {
		return
	}
	var req service.SetDepartmentHeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	dept, err := h.userService.SetDepartmentHead(c.Request.Context(), id.UserID, deptID, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, dept))
}
