package response

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuccess(t *testing.T) {
	res := Success(http.StatusCreated, map[string]string{"id": "1"})
	assert.Equal(t, "success", res.Status)
	assert.Empty(t, res.Error)
	assert.Empty(t, res.Kind)
}

func TestError(t *testing.T) {
	res := Error(http.StatusNotFound, "application 42 not found")
	assert.Equal(t, "error", res.Status)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Nil(t, res.Data)
}
