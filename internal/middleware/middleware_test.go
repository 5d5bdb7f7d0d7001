package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func do(r http.Handler, method string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/ping", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterThrottlesPerClient(t *testing.T) {
	r := newEngine(NewRateLimiter(10).Handler())

	require.Equal(t, http.StatusOK, do(r, http.MethodGet, nil).Code)
	rec := do(r, http.MethodGet, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimiterIgnoresUnvalidatedBearer(t *testing.T) {
	limiter := NewRateLimiter(10)
	r := newEngine(limiter.Handler())

	require.Equal(t, http.StatusOK, do(r, http.MethodGet, nil).Code)
	for i := 0; i < 50; i++ {
		rec := do(r, http.MethodGet, map[string]string{"Authorization": fmt.Sprintf("Bearer junk-%d", i)})
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
	}
	require.Len(t, limiter.buckets, 1)
}

func TestRateLimiterHandlerByKey(t *testing.T) {
	limiter := NewRateLimiter(10)
	r := gin.New()
	r.Use(limiter.HandlerBy(func(c *gin.Context) string { return c.GetHeader("X-Key") }))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	// Requests without a key are not counted.
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, do(r, http.MethodGet, nil).Code)
	}
	require.Empty(t, limiter.buckets)

	require.Equal(t, http.StatusOK, do(r, http.MethodGet, map[string]string{"X-Key": "token:a"}).Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodGet, map[string]string{"X-Key": "token:b"}).Code)
	require.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, map[string]string{"X-Key": "token:a"}).Code)
}

func TestRateLimiterEvictsIdleBuckets(t *testing.T) {
	limiter := NewRateLimiter(10)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	_, ok := limiter.allow("ip:a")
	require.True(t, ok)
	_, ok = limiter.allow("ip:b")
	require.True(t, ok)
	require.Len(t, limiter.buckets, 2)

	now = now.Add(idleBucketTTL + time.Second)
	_, ok = limiter.allow("ip:a")
	require.True(t, ok)
	require.Len(t, limiter.buckets, 1)
}

func TestRateLimiterDisabled(t *testing.T) {
	require.Nil(t, NewRateLimiter(0))
	r := newEngine(NewRateLimiter(0).Handler())
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, do(r, http.MethodGet, nil).Code)
	}
}

func TestCORSEchoesAllowedOrigin(t *testing.T) {
	cfg := config.Config{
		CORSAllowedOrigins:   []string{"https://app.viagen.dev/"},
		CORSAllowedMethods:   []string{"GET", "POST"},
		CORSAllowedHeaders:   []string{"Authorization"},
		CORSAllowCredentials: true,
	}
	r := newEngine(CORS(cfg))

	rec := do(r, http.MethodGet, map[string]string{"Origin": "https://app.viagen.dev"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://app.viagen.dev", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = do(r, http.MethodGet, map[string]string{"Origin": "https://evil.test"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	cfg := config.Config{CORSAllowedOrigins: []string{"*"}}
	r := newEngine(CORS(cfg))

	rec := do(r, http.MethodOptions, map[string]string{"Origin": "https://any.test"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
