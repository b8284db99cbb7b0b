package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ghaditya/spotify-group-session/internal/adapters/store/memory"
	"github.com/ghaditya/spotify-group-session/internal/app/metrics"
	"github.com/ghaditya/spotify-group-session/internal/app/orch"
	"github.com/ghaditya/spotify-group-session/internal/config"
	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenResolver treats the access token as the client id.
type tokenResolver struct{}

func (tokenResolver) Resolve(_ context.Context, proof domain.IdentityProof) (domain.ClientID, error) {
	if proof.Type == domain.ClientAppleMusic {
		return "", domain.ErrProviderNotImplemented
	}
	if proof.Credential.AccessToken == "bad" {
		return "", fmt.Errorf("%w: token rejected", domain.ErrAuth)
	}
	return domain.ClientID(proof.Credential.AccessToken), nil
}

type testServer struct {
	router *gin.Engine
	store  *memory.Store
}

func newTestServer(t *testing.T, limit int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mode:       "test",
		Secret:     "test-secret",
		StatusPoll: 10 * time.Millisecond,
		RateLimit:  config.RateLimitConfig{Requests: limit, Interval: time.Minute},
	}
	reg := prometheus.NewRegistry()
	store := memory.New()
	o := orch.New(store, tokenResolver{}, nil, metrics.New(reg))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &testServer{router: SetupRouter(ctx, cfg, o, reg), store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func startBody(token string, clientType int) map[string]any {
	return map[string]any{"accessToken": token, "refreshToken": "r-" + token, "clientType": clientType}
}

func joinBody(sid, token string) map[string]any {
	return map[string]any{"sessionId": sid, "accessToken": token, "refreshToken": "r-" + token, "clientType": 0}
}

func leaveBody(sid, token string) map[string]any {
	return map[string]any{"sessionId": sid, "accessToken": token, "clientType": 0}
}

func startSession(t *testing.T, s *testServer, host string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/startSession", startBody(host, 0))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["sessionId"].(string)
}

func TestStartSessionHandler(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodPost, "/api/startSession", startBody("host", 0))
	require.Equal(t, http.StatusCreated, w.Code)

	body := decode(t, w)
	assert.Equal(t, "host", body["clientId"])
	assert.NotEmpty(t, body["sessionId"])
	assert.NotEmpty(t, w.Header().Get("Set-Cookie"))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestMissingParameters(t *testing.T) {
	s := newTestServer(t, 100)

	cases := map[string]map[string]any{
		"no clientType":   {"accessToken": "a", "refreshToken": "r"},
		"no accessToken":  {"refreshToken": "r", "clientType": 0},
		"no refreshToken": {"accessToken": "a", "clientType": 0},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/startSession", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, parameterErrorMessage, decode(t, w)["error"])
		})
	}

	w := s.do(t, http.MethodPost, "/api/joinSession", startBody("guest", 0))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAppleMusicReturnsNotImplemented(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodPost, "/api/startSession", startBody("host", 1))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Equal(t, "Apple Music integration not yet implemented", decode(t, w)["error"])
}

func TestRejectedTokenIsUnauthorized(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodPost, "/api/startSession", startBody("bad", 0))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJoinAndStatus(t *testing.T) {
	s := newTestServer(t, 100)
	sid := startSession(t, s, "host")

	w := s.do(t, http.MethodPost, "/api/joinSession", joinBody(sid, "guest"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, sid, decode(t, w)["sessionId"])

	w = s.do(t, http.MethodPost, "/api/getClientStatus", map[string]any{"clientId": "guest"})
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)
	assert.Equal(t, sid, status["sessionId"])
	assert.Equal(t, false, status["host"])
	assert.NotContains(t, w.Body.String(), "r-guest")

	w = s.do(t, http.MethodPost, "/api/joinSession", joinBody(sid, "guest"))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestJoinMissingSessionIsNotFound(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodPost, "/api/joinSession", joinBody("nope", "guest"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/getClientStatus", map[string]any{"clientId": "guest"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHostLeaveEndsSession(t *testing.T) {
	s := newTestServer(t, 100)
	sid := startSession(t, s, "host")
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/joinSession", joinBody(sid, "guest")).Code)

	w := s.do(t, http.MethodPost, "/api/leaveSession", leaveBody(sid, "host"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, sid, decode(t, w)["sessionId"])

	for _, id := range []string{"host", "guest"} {
		w = s.do(t, http.MethodPost, "/api/getClientStatus", map[string]any{"clientId": id})
		assert.Equal(t, http.StatusNotFound, w.Code, id)
	}
	_, err := s.store.GetSession(context.Background(), domain.SessionID(sid))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEndSessionRequiresHost(t *testing.T) {
	s := newTestServer(t, 100)
	sid := startSession(t, s, "host")
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/joinSession", joinBody(sid, "guest")).Code)

	w := s.do(t, http.MethodPost, "/api/endSession", leaveBody(sid, "guest"))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/endSession", leaveBody(sid, "host"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWhoAmIUsesCookie(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodGet, "/api/whoami", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/startSession", startBody("host", 0))
	require.Equal(t, http.StatusCreated, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	w = s.do(t, http.MethodGet, "/api/whoami", nil, cookies...)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "host", body["clientId"])
	assert.Equal(t, true, body["host"])
}

func TestMutatingRoutesAreRateLimited(t *testing.T) {
	s := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/api/startSession", startBody(fmt.Sprintf("host-%d", i), 0))
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := s.do(t, http.MethodPost, "/api/startSession", startBody("host-3", 0))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = s.do(t, http.MethodPost, "/api/getClientStatus", map[string]any{"clientId": "host-0"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, 100)
	startSession(t, s, "host")

	w := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `group_session_operations_total{op="start_session",outcome="ok"} 1`)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrValidation, http.StatusBadRequest},
		{domain.ErrAuth, http.StatusUnauthorized},
		{domain.ErrSessionNotFound, http.StatusNotFound},
		{domain.ErrNotHost, http.StatusConflict},
		{domain.ErrProviderNotImplemented, http.StatusNotImplemented},
		{domain.StoreError("get", fmt.Errorf("disk")), http.StatusServiceUnavailable},
		{fmt.Errorf("unclassified"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}
