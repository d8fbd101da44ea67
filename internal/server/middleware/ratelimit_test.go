package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictify/marketengine/internal/server/middleware"
)

type fakeLimiter struct {
	allow bool
	err   error
	calls []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	f.calls = append(f.calls, key)
	return f.allow, f.err
}

func TestRateLimitAllowsWithinBudget(t *testing.T) {
	limiter := &fakeLimiter{allow: true}
	h := middleware.RateLimit(limiter, 10, time.Minute)(passthrough())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	h.ServeHTTP(rec, req)

	require.Len(t, limiter.calls, 1)
	assert.Equal(t, "ratelimit:api:203.0.113.5", limiter.calls[0])
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitRejectsOverBudget(t *testing.T) {
	limiter := &fakeLimiter{allow: false}
	h := middleware.RateLimit(limiter, 10, time.Minute)(passthrough())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitFailsOpenOnLimiterError(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("limiter unavailable")}
	h := middleware.RateLimit(limiter, 10, time.Minute)(passthrough())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "limiter errors must not block legitimate traffic")
}

func TestRateLimitUsesForwardedForHeader(t *testing.T) {
	limiter := &fakeLimiter{allow: true}
	h := middleware.RateLimit(limiter, 10, time.Minute)(passthrough())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.1")
	h.ServeHTTP(rec, req)

	require.Len(t, limiter.calls, 1)
	assert.Equal(t, "ratelimit:api:198.51.100.9", limiter.calls[0])
}
