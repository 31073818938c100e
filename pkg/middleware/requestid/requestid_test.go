package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(header string) (gin.H, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	seen := gin.H{}
	r.GET("/", func(c *gin.Context) {
		seen["gin"] = Value(c)
		seen["ctx"] = FromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(Header, header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return seen, w
}

func TestMiddlewareKeepsCallerID(t *testing.T) {
	seen, w := serve("req-7")
	assert.Equal(t, "req-7", w.Header().Get(Header))
	assert.Equal(t, "req-7", seen["gin"])
	assert.Equal(t, "req-7", seen["ctx"])
}

func TestMiddlewareReplacesOversizedID(t *testing.T) {
	seen, w := serve(strings.Repeat("x", maxLength+1))
	id := w.Header().Get(Header)
	assert.Len(t, id, 36)
	assert.Equal(t, id, seen["ctx"])
}
