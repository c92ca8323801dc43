package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/levelup/internal/application/query"
	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
	"github.com/alem-hub/levelup/internal/interface/http/handlers"
)

type fakeLeaderboard struct {
	got    query.GetLeaderboardQuery
	result *query.GetLeaderboardResult
	err    error
}

func (f *fakeLeaderboard) Handle(_ context.Context, q query.GetLeaderboardQuery) (*query.GetLeaderboardResult, error) {
	f.got = q
	return f.result, f.err
}

type fakeRank struct {
	got query.GetUserRankQuery
	dto *query.UserRankDTO
	err error
}

func (f *fakeRank) Handle(_ context.Context, q query.GetUserRankQuery) (*query.UserRankDTO, error) {
	f.got = q
	return f.dto, f.err
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

func do(t *testing.T, s *Server, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var env envelope
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func newTestServer(deps Dependencies) *Server {
	cfg := DefaultConfig()
	cfg.RateLimitPerSecond = 0
	return NewServer(cfg, deps)
}

func TestLeaderboardEndpoint(t *testing.T) {
	lb := &fakeLeaderboard{result: &query.GetLeaderboardResult{
		Entries: leveling.Leaderboard{{UserID: 7, XP: 500, Level: 3}, {UserID: 9, XP: 100, Level: 1}},
	}}
	s := newTestServer(Dependencies{Leaderboard: lb})

	rec, env := do(t, s, http.MethodGet, "/api/leaderboard?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, 2, lb.got.Limit)
	assert.NotEmpty(t, env.RequestID)
	assert.Equal(t, env.RequestID, rec.Header().Get("X-Request-ID"))

	var data query.GetLeaderboardResult
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Entries, 2)
	assert.Equal(t, leveling.Snowflake(7), data.Entries[0].UserID)
}

func TestLeaderboardEndpoint_BadLimit(t *testing.T) {
	s := newTestServer(Dependencies{Leaderboard: &fakeLeaderboard{}})

	rec, env := do(t, s, http.MethodGet, "/api/leaderboard?limit=ten")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_limit", env.Error.Code)
}

func TestLeaderboardEndpoint_StorageUnavailable(t *testing.T) {
	lb := &fakeLeaderboard{err: shared.Storage("leaderboard", errors.New("dial tcp"))}
	s := newTestServer(Dependencies{Leaderboard: lb})

	rec, env := do(t, s, http.MethodGet, "/api/leaderboard")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "storage_unavailable", env.Error.Code)
}

func TestRankEndpoint(t *testing.T) {
	rank := &fakeRank{dto: &query.UserRankDTO{UserID: 42, Rank: 3, Found: true, XP: 250, Level: 2}}
	s := newTestServer(Dependencies{Rank: rank})

	rec, env := do(t, s, http.MethodGet, "/api/rank/42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, leveling.Snowflake(42), rank.got.UserID)

	var dto query.UserRankDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, 3, dto.Rank)
	assert.True(t, dto.Found)
}

func TestRankEndpoint_InvalidID(t *testing.T) {
	s := newTestServer(Dependencies{Rank: &fakeRank{}})

	for _, id := range []string{"abc", "0", "-5"} {
		rec, _ := do(t, s, http.MethodGet, "/api/rank/"+id)
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
	}
}

func TestReadAPIDisabled(t *testing.T) {
	s := newTestServer(Dependencies{
		Leaderboard:    &fakeLeaderboard{},
		ReadAPIEnabled: func() bool { return false },
	})

	rec, env := do(t, s, http.MethodGet, "/api/leaderboard")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "disabled", env.Error.Code)
}

func TestHealthEndpoint(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	healthy := true
	checker.AddCheck("storage", func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	})
	s := newTestServer(Dependencies{HealthChecker: checker})

	rec, _ := do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec, env := do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("levelup_awards_total 1\n"))
	})
	s := newTestServer(Dependencies{MetricsHandler: metrics})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "levelup_awards_total")
}

func TestRequestIDPropagated(t *testing.T) {
	s := newTestServer(Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	s := newTestServer(Dependencies{})
	h := s.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerSecond = 0.001
	cfg.RateLimitBurst = 2
	s := NewServer(cfg, Dependencies{})

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/livez", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", clientIP(req))
}

func TestServer_RunAndShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	s := NewServer(cfg, Dependencies{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, time.Second) }()

	require.Eventually(t, s.IsRunning, time.Second, 5*time.Millisecond)
	assert.Positive(t, s.Uptime())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, s.IsRunning())
	assert.Zero(t, s.Uptime())
}
