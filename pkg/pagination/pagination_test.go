package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func parseQuery(query string) Params {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/items?"+query, nil)
	return Parse(c)
}

func TestParse(t *testing.T) {
	assert.Equal(t, Params{Page: 1, Limit: 20, Offset: 0}, parseQuery(""))
	assert.Equal(t, Params{Page: 3, Limit: 10, Offset: 20}, parseQuery("page=3&limit=10"))
	assert.Equal(t, Params{Page: 1, Limit: MaxLimit, Offset: 0}, parseQuery("page=-2&limit=5000"))
	assert.Equal(t, Params{Page: 1, Limit: DefaultLimit, Offset: 0}, parseQuery("page=abc&limit=0"))
}

func TestNewPage(t *testing.T) {
	p := NewPage([]string{"a"}, 41, Params{Page: 2, Limit: 20})
	assert.Equal(t, 3, p.TotalPages)
	assert.EqualValues(t, 41, p.Total)

	assert.Zero(t, NewPage(nil, 0, Params{Page: 1, Limit: 20}).TotalPages)
}
