package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Params{Page: 1, Limit: DefaultLimit}, Normalize(0, 0))
	assert.Equal(t, Params{Page: 3, Limit: 50}, Normalize(3, 50))
	assert.Equal(t, Params{Page: 1, Limit: MaxLimit}, Normalize(-2, 500))
}

func TestOffset(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, Offset(1, 20))
	assert.Equal(t, 40, Offset(3, 20))
	assert.Equal(t, 0, Offset(0, 20))
	assert.Equal(t, 0, Offset(2, -1))
	assert.Equal(t, 40, Params{Page: 3, Limit: 20}.Offset())
}

func TestParse(t *testing.T) {
	t.Parallel()

	gin.SetMode(gin.TestMode)

	parse := func(query string) Params {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", "/?"+query, nil)
		return Parse(c)
	}

	assert.Equal(t, Params{Page: 1, Limit: DefaultLimit}, parse(""))
	assert.Equal(t, Params{Page: 2, Limit: 5}, parse("page=2&limit=5"))
	assert.Equal(t, Params{Page: 1, Limit: DefaultLimit}, parse("page=abc&limit=xyz"))
	assert.Equal(t, Params{Page: 1, Limit: MaxLimit}, parse("page=-1&limit=9999"))
}
