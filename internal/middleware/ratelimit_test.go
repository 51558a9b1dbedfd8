package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dormdesign/internal/middleware"
	"dormdesign/internal/testfixtures"
)

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr, client := testfixtures.NewRedis(t)

	router := gin.New()
	router.Use(middleware.RateLimit(client, "dd:", 2, time.Minute))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	hit := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := hit()
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, hit().Code)

	w = hit()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"message":"Too many requests"}`, w.Body.String())
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	assert.True(t, mr.Exists("dd:ratelimit:10.0.0.1"))
	assert.Positive(t, mr.TTL("dd:ratelimit:10.0.0.1"))

	// 窗口过期后重新计数
	mr.FastForward(2 * time.Minute)
	assert.Equal(t, http.StatusOK, hit().Code)
}

func TestRateLimit_WindowIsNotExtendedByRejectedRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr, client := testfixtures.NewRedis(t)

	router := gin.New()
	router.Use(middleware.RateLimit(client, "dd:", 2, time.Second))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	hit := func() int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, hit())
	assert.Equal(t, http.StatusOK, hit())
	assert.Equal(t, http.StatusTooManyRequests, hit())

	// 窗口内持续请求不应推迟窗口结束
	mr.FastForward(600 * time.Millisecond)
	assert.Equal(t, http.StatusTooManyRequests, hit())
	mr.FastForward(600 * time.Millisecond)
	assert.Equal(t, http.StatusOK, hit(), "窗口结束后应重新放行")
	assert.Equal(t, "1", mustGet(t, mr, "dd:ratelimit:10.0.0.2"))
}

func TestRateLimit_RedisUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr, client := testfixtures.NewRedis(t)
	mr.Close()

	router := gin.New()
	router.Use(middleware.RateLimit(client, "dd:", 2, time.Minute))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.CORS("https://dorm.example"))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://dorm.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
