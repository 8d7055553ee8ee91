package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twelves/apiserver/config"
	"github.com/twelves/apiserver/internal/analytics"
	"github.com/twelves/apiserver/internal/logging"
)

func testConfig() config.Config {
	return config.Config{
		Environment: config.EnvDevelopment,
		Auth: config.AuthConfig{
			JWTSecret:  "secret",
			SessionTTL: time.Hour,
			CookieName: "token",
		},
		RateLimit: config.RateLimitConfig{RegisterPerHour: 2},
	}
}

func TestHealthz(t *testing.T) {
	router := NewRouter(testConfig(), Services{}, logging.Discard())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestUsersRequireSession(t *testing.T) {
	router := NewRouter(testConfig(), Services{}, logging.Discard())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterIsRateLimited(t *testing.T) {
	router := NewRouter(testConfig(), Services{}, logging.Discard())

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{}`))
		req.RemoteAddr = "198.51.100.7:4000"
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)

	// Other clients keep their own budget.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{}`))
	req.RemoteAddr = "198.51.100.8:4000"
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFunnelLimitIsSeparateFromRegister(t *testing.T) {
	router := NewRouter(testConfig(), Services{}, logging.Discard())

	for range 2 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{}`))
		req.RemoteAddr = "203.0.113.4:1"
		router.ServeHTTP(rec, req)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/customers/check-email", strings.NewReader(`{"email":"bad"}`))
	req.RemoteAddr = "203.0.113.4:1"
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type countingPublisher struct {
	mu    sync.Mutex
	count int
}

func (p *countingPublisher) Publish(context.Context, string, []byte, map[string]string) (string, error) {
	time.Sleep(5 * time.Millisecond)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	return "m", nil
}

func TestShutdownDrainsAnalytics(t *testing.T) {
	pub := &countingPublisher{}
	logger := logging.Discard()
	sink := analytics.NewSink(pub, "lead-events", logger)
	srv := &Server{httpServer: &http.Server{}, events: sink, logger: logger}

	for range 5 {
		sink.Track(context.Background(), "lead-1", "lead_captured", nil)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, 5, pub.count)
}
