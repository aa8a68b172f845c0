package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newLimitedRouter(l *ClientRateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(l.Middleware())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func ping(router *gin.Engine, addr string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Real-IP", addr)
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitExhaustedBurst(t *testing.T) {
	l := NewClientRateLimiter(1, 2, time.Minute)
	defer l.Close()
	router := newLimitedRouter(l)

	assert.Equal(t, http.StatusOK, ping(router, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, ping(router, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, ping(router, "10.0.0.1"))
}

func TestRateLimitPerClient(t *testing.T) {
	l := NewClientRateLimiter(1, 1, time.Minute)
	defer l.Close()
	router := newLimitedRouter(l)

	assert.Equal(t, http.StatusOK, ping(router, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, ping(router, "10.0.0.1"))

	// A different client has its own bucket.
	assert.Equal(t, http.StatusOK, ping(router, "10.0.0.2"))
}

func TestRateLimitSweepEvictsIdleClients(t *testing.T) {
	l := NewClientRateLimiter(1, 1, time.Minute)
	defer l.Close()
	router := newLimitedRouter(l)

	assert.Equal(t, http.StatusOK, ping(router, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, ping(router, "10.0.0.1"))

	// Eviction resets the client's budget.
	l.sweep(time.Now().Add(time.Second))
	assert.Equal(t, http.StatusOK, ping(router, "10.0.0.1"))
}

func TestRateLimitForwardedForFirstHop(t *testing.T) {
	l := NewClientRateLimiter(1, 1, time.Minute)
	defer l.Close()
	router := newLimitedRouter(l)

	send := func(fwd string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Forwarded-For", fwd)
		router.ServeHTTP(w, req)
		return w.Code
	}

	// Same originating client through different proxy chains shares one bucket.
	assert.Equal(t, http.StatusOK, send("1.2.3.4, 10.0.0.9"))
	assert.Equal(t, http.StatusTooManyRequests, send("1.2.3.4"))
}
