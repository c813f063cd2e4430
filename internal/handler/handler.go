package handler

import (
	"errors"
	"net/http"

	"expense-approval/internal/apperror"
	"expense-approval/internal/middleware"
	"expense-approval/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// fail writes err with the status its kind maps to.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(errorResponse(err))
}

// errorResponse maps a service error to its HTTP status and error body.
// Persistence failures name the failed step but not the driver error.
func errorResponse(err error) (int, response.Response) {
	kind := apperror.KindOf(err)
	code := statusFor(kind)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
		var e *apperror.Error
		if errors.As(err, &e) && e.Op != "" {
			msg = "storage failure during " + e.Op
		}
	}
	res := response.Error(code, msg)
	res.Kind = string(kind)
	return code, res
}

func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindInvalidTransition, apperror.KindConflict:
		return http.StatusConflict
	case apperror.KindUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, msg))
}

// caller returns the authenticated identity. Routes are always behind RequireRole,
// so a missing identity is a wiring bug and answers 401.
func caller(c *gin.Context) (middleware.Identity, bool) {
	id, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authentication required"))
	}
	return id, ok
}

// idParam parses the :id path parameter.
func idParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, apperror.Validation("invalid id %q", c.Param("id")))
		return uuid.Nil, false
	}
	return id, true
}
