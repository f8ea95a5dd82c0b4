// ABOUTME: Tests for the HTTP API, health endpoints and gRPC health wiring
// ABOUTME: Runs handlers in-process with httptest against MockStore or SQLite

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/relay-gateway/internal/auth"
	"github.com/2389/relay-gateway/internal/config"
	"github.com/2389/relay-gateway/internal/store"
)

const (
	testAPIKey    = "rk_gateway_test_key"
	testJWTSecret = "gateway-test-jwt-secret-32-bytes!!"
)

// testConfig creates a minimal config for testing.
func testConfig(pushURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{
			Driver:  "sqlite",
			Path:    ":memory:",
			Timeout: 3 * time.Second,
		},
		Auth:     config.AuthConfig{JWTSecret: testJWTSecret},
		Presence: config.PresenceConfig{TTL: 5 * time.Minute},
		Push: config.PushConfig{
			BaseURL: pushURL,
			Topic:   "RelayCommands",
			Timeout: time.Second,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	gw      *Gateway
	store   *store.MockStore
	handler http.Handler
	tenant  *store.Tenant
	pushes  *atomic.Int32
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	var pushes atomic.Int32
	pushSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(pushSrv.Close)

	cfg := testConfig(pushSrv.URL)
	for _, fn := range mutate {
		fn(cfg)
	}

	s := store.NewMockStore()
	tenant := &store.Tenant{
		Name:       "acme",
		APIKeyHash: auth.HashAPIKey(testAPIKey),
		Flags:      store.DefaultFeatureFlags(),
	}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))

	gw, err := NewWithStore(cfg, s, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })

	return &testEnv{gw: gw, store: s, handler: gw.Handler(), tenant: tenant, pushes: &pushes}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func keyHeader(key string) map[string]string {
	return map[string]string{"X-Api-Key": key}
}

func TestEnqueueThenPoll_KickRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/commands", map[string]any{
		"command":   "kick",
		"args":      map[string]any{"username": "Bob"},
		"moderator": "Alice",
	}, keyHeader(testAPIKey))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	enq := decode[EnqueueResponse](t, rec)
	assert.True(t, enq.Success)
	assert.NotEmpty(t, enq.CommandID)
	assert.Equal(t, "Failed", enq.PushStatus, "tenant has no push credentials")
	assert.Equal(t, "NotConfigured", enq.PushError)

	rec = env.do(t, http.MethodPost, "/api/poll", PollRequest{InstanceID: "server-1"}, keyHeader(testAPIKey))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	poll := decode[PollResponse](t, rec)
	require.Len(t, poll.Commands, 1)
	c := poll.Commands[0]
	assert.Equal(t, enq.CommandID, c.ID)
	assert.Equal(t, "KICK", c.Command)
	assert.Equal(t, "Bob", c.Args["username"])
	assert.Equal(t, "Alice", c.Args["moderator"])
	assert.Equal(t, "PROCESSED", c.Status)
	assert.False(t, c.CreatedAt.IsZero())

	rec = env.do(t, http.MethodPost, "/api/poll", nil, keyHeader(testAPIKey))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"commands":[]}`, rec.Body.String())
}

func TestEnqueue_PushSentWhenConfigured(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.UpdateTenantPush(context.Background(), env.tenant.ID, "12345", "cloud-key"))

	rec := env.do(t, http.MethodPost, "/api/commands", map[string]any{
		"command": "announce",
		"args":    map[string]any{"message": "server restart in 5"},
	}, keyHeader(testAPIKey))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	enq := decode[EnqueueResponse](t, rec)
	assert.Equal(t, "Sent", enq.PushStatus)
	assert.Empty(t, enq.PushError)
	assert.Equal(t, int32(1), env.pushes.Load())
}

func TestEnqueue_NumericAndMissingArgsAreQueued(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{
		`{"command":"kick","args":{"username":12345}}`,
		`{"command":"kick"}`,
	} {
		rec := env.do(t, http.MethodPost, "/api/commands", body, keyHeader(testAPIKey))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := env.do(t, http.MethodPost, "/api/poll", nil, keyHeader(testAPIKey))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	poll := decode[PollResponse](t, rec)
	require.Len(t, poll.Commands, 2)
	assert.Equal(t, "KICK", poll.Commands[0].Command)
	assert.Equal(t, "12345", poll.Commands[0].Args["username"])
	assert.Equal(t, "KICK", poll.Commands[1].Command)
	assert.Equal(t, "Unknown", poll.Commands[1].Args["moderator"])
}

func TestEnqueue_APIKeyInBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/commands", map[string]any{
		"command": "unban",
		"args":    map[string]any{"username": "Bob"},
		"api_key": testAPIKey,
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestEnqueue_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		headers map[string]string
		status  int
		kind    string
	}{
		{"missing credential", map[string]any{"command": "kick", "args": map[string]any{"username": "x"}}, nil, 401, "AuthenticationMissing"},
		{"invalid credential", map[string]any{"command": "kick", "args": map[string]any{"username": "x"}}, keyHeader("nope"), 403, "AuthenticationInvalid"},
		{"missing command", map[string]any{"args": map[string]any{"username": "x"}}, keyHeader(testAPIKey), 400, "ValidationFailed"},
		{"bad json with key", "{not json", keyHeader(testAPIKey), 400, "ValidationFailed"},
		{"bad json without key", "{not json", nil, 401, "AuthenticationMissing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, "/api/commands", tt.body, tt.headers)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, string(decode[errorBody](t, rec).Error.Kind))

			rows, err := env.store.ListCommands(context.Background(), store.CommandFilter{TenantID: env.tenant.ID})
			require.NoError(t, err)
			assert.Empty(t, rows, "no command row on failure")
		})
	}
}

func TestEnqueue_StoreFailureDoesNotLeak(t *testing.T) {
	env := newTestEnv(t)
	env.store.EnqueueErr = store.ErrUnavailable

	rec := env.do(t, http.MethodPost, "/api/commands", map[string]any{
		"command": "kick",
		"args":    map[string]any{"username": "x"},
	}, keyHeader(testAPIKey))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "StorageUnavailable", string(body.Error.Kind))
	assert.NotContains(t, rec.Body.String(), "store unavailable")
}

func TestEnqueue_OperatorBearerAttributesModerator(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.CreateOperator(ctx, &store.Operator{ID: "op-1", DisplayName: "Carol"}))

	verifier, err := auth.NewJWTVerifier([]byte(testJWTSecret))
	require.NoError(t, err)
	token, err := verifier.Generate("op-1", time.Hour)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/commands", map[string]any{
		"command": "ban",
		"args":    map[string]any{"username": "griefer"},
	}, map[string]string{"X-Api-Key": testAPIKey, "Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rows, err := env.store.ListCommands(ctx, store.CommandFilter{TenantID: env.tenant.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Carol", rows[0].Args["moderator"])
}

func TestPoll_AuthErrorsAre401WithoutSideEffects(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/commands", map[string]any{
		"command": "kick", "args": map[string]any{"username": "x"},
	}, keyHeader(testAPIKey))
	require.Equal(t, http.StatusOK, rec.Code)

	for _, headers := range []map[string]string{nil, keyHeader("wrong")} {
		rec := env.do(t, http.MethodPost, "/api/poll", PollRequest{InstanceID: "w1"}, headers)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	assert.Zero(t, env.store.PresenceCount())
	pending, err := env.store.ListCommands(context.Background(), store.CommandFilter{
		TenantID: env.tenant.ID,
		Status:   store.CommandPending,
	})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestPoll_BearerCredentialAndLoad(t *testing.T) {
	env := newTestEnv(t)

	load := int64(7)
	rec := env.do(t, http.MethodPost, "/api/poll", PollRequest{InstanceID: "w1", Load: &load},
		map[string]string{"Authorization": "Bearer " + testAPIKey})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	live, err := env.store.ListLivePresence(context.Background(), env.tenant.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, int64(7), live[0].Load)
}

func TestPoll_InvalidBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/poll", "[1,2", keyHeader(testAPIKey))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/poll", "[1,2", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPoll_RateLimited(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Poll = config.PollConfig{RatePerSecond: 0.001, Burst: 1}
	})

	rec := env.do(t, http.MethodPost, "/api/poll", nil, keyHeader(testAPIKey))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/poll", nil, keyHeader(testAPIKey))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RateLimited", string(decode[errorBody](t, rec).Error.Kind))
}

func TestPoll_WrongMethod(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/poll", nil, keyHeader(testAPIKey))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/settings", nil, keyHeader(testAPIKey))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"flags":{"kicks":true,"bans":true,"announcements":true,"shutdowns":false}}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/settings", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentity(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.UpsertIdentityMapping(context.Background(), &store.IdentityMapping{
		LocalID:      "local-1",
		ChatID:       "111",
		ChatUsername: "BobChat",
		GameID:       "222",
		GameUsername: "BobGame",
	}))

	t.Run("probe is idempotent", func(t *testing.T) {
		for _, path := range []string{"/api/identity", "/api/identity?health", "/api/identity?health=1", "/api/identity?chat_id=", "/api/identity?chat_id=&game_id=", "/api/identity"} {
			rec := env.do(t, http.MethodGet, path, nil, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
		}
		rec := env.do(t, http.MethodHead, "/api/identity", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("found by username", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/identity?game_id=bobgame", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[map[string]MappingResponse](t, rec)
		assert.Equal(t, "local-1", body["mapping"].LocalID)
		assert.Equal(t, "111", body["mapping"].ChatID)
	})

	t.Run("not found is distinct from probe", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/identity?chat_id=999", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NotFound", string(decode[errorBody](t, rec).Error.Kind))
	})

	t.Run("ambiguous", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/identity?chat_id=1&game_id=2", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTenantPresence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.CreateOperator(ctx, &store.Operator{ID: "op-mod", DisplayName: "Mo"}))
	require.NoError(t, env.store.AddRole(ctx, "op-mod", store.RoleModerator))
	require.NoError(t, env.store.CreateOperator(ctx, &store.Operator{ID: "op-none", DisplayName: "Nobody"}))

	verifier, err := auth.NewJWTVerifier([]byte(testJWTSecret))
	require.NoError(t, err)
	modToken, _ := verifier.Generate("op-mod", time.Hour)
	noneToken, _ := verifier.Generate("op-none", time.Hour)

	rec := env.do(t, http.MethodPost, "/api/poll", PollRequest{InstanceID: "w1"}, keyHeader(testAPIKey))
	require.Equal(t, http.StatusOK, rec.Code)

	path := "/api/admin/tenants/" + env.tenant.ID + "/presence"

	rec = env.do(t, http.MethodGet, path, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, path, nil, map[string]string{"Authorization": "Bearer " + noneToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, path, nil, map[string]string{"Authorization": "Bearer " + modToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[PresenceResponse](t, rec)
	assert.Equal(t, env.tenant.ID, body.TenantID)
	assert.Equal(t, int64(300), body.TTLSeconds)
	require.Len(t, body.Instances, 1)
	assert.Equal(t, "w1", body.Instances[0].InstanceID)

	rec = env.do(t, http.MethodGet, "/api/admin/tenants/missing/presence", nil, map[string]string{"Authorization": "Bearer " + modToken})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutesAbsentWithoutJWTSecret(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Auth.JWTSecret = "" })
	rec := env.do(t, http.MethodGet, "/api/admin/tenants/"+env.tenant.ID+"/presence", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.store.PingErr = store.ErrUnavailable
	rec = env.do(t, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsAndRequestID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/poll", nil, map[string]string{"X-Api-Key": testAPIKey, RequestIDHeader: "req-42"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	rec = env.do(t, http.MethodGet, "/health", nil, nil)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = env.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `relay_http_requests_total{route="POST /api/poll",status="200"} 1`)
	assert.Contains(t, body, `relay_polls_total{heartbeat="false"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Metrics.Enabled = false })
	rec := env.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGRPCHealthFollowsStore(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Server.GRPCAddr = "127.0.0.1:0" })
	require.NotNil(t, env.gw.health)
	ctx := context.Background()

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, env.gw.checkReadiness(ctx))

	env.store.PingErr = store.ErrUnavailable
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, env.gw.checkReadiness(ctx))

	resp, err := env.gw.health.Check(ctx, &healthpb.HealthCheckRequest{Service: RelayServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestNewWithStore_RejectsBadSecretKey(t *testing.T) {
	_, err := NewWithStore(&config.Config{
		Auth:     config.AuthConfig{SecretKey: "not-a-key"},
		Database: config.DatabaseConfig{Timeout: time.Second},
	}, store.NewMockStore(), testLogger())
	assert.Error(t, err)
}
