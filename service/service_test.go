package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerspace/memberd/db"
	"github.com/makerspace/memberd/gateway"
)

// gatewayRecorder is a fake API gateway recording every call it receives.
type gatewayRecorder struct {
	mu                 sync.Mutex
	calls              []string
	bodies             map[string][]byte
	unregisterFailures int
	registerStatus     int
}

func newGatewayRecorder() *gatewayRecorder {
	return &gatewayRecorder{bodies: map[string][]byte{}, registerStatus: http.StatusOK}
}

func (g *gatewayRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	g.calls = append(g.calls, r.URL.Path)
	g.bodies[r.URL.Path] = body

	switch r.URL.Path {
	case "/service/unregister":
		if g.unregisterFailures > 0 {
			g.unregisterFailures--
			http.Error(w, "gateway not ready", http.StatusInternalServerError)
			return
		}
	case "/service/register":
		if g.registerStatus != http.StatusOK {
			http.Error(w, "registration rejected", g.registerStatus)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (g *gatewayRecorder) recorded() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string{}, g.calls...)
}

func (g *gatewayRecorder) body(path string) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bodies[path]
}

func newTestService(t *testing.T, rec *gatewayRecorder, frontend bool) *Service {
	t.Helper()

	ts := httptest.NewServer(rec)
	t.Cleanup(ts.Close)
	gwURL, err := url.Parse(ts.URL)
	require.NoError(t, err)

	pool, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := New(&Config{
		Name:     "quiz",
		URL:      "quiz",
		Version:  "test",
		Frontend: frontend,
		Log:      logger,
		DB:       db.NewFromPool(pool, logger),
		Gateway: gateway.New(gateway.Config{
			Host:         gwURL.Host,
			Key:          "secret",
			HostFrontend: "frontend.example.com",
			HostBackend:  "backend.example.com",
		}),
		RegistrationRetryDelay:   10 * time.Millisecond,
		GracefulShutdownDuration: time.Second,
	})
	require.NoError(t, err)
	return svc
}

func TestStartRetriesInitialUnregisterOnce(t *testing.T) {
	rec := newGatewayRecorder()
	rec.unregisterFailures = 1

	svc := newTestService(t, rec, false)
	svc.Route("question", "quiz_edit", "ok", func(_ *http.Request) (any, error) {
		return nil, nil
	}, http.MethodGet)

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Shutdown()

	assert.Equal(t, []string{
		"/service/unregister",
		"/service/unregister",
		"/service/register",
		"/membership/permission/register",
	}, rec.recorded())

	var announce map[string]string
	require.NoError(t, json.Unmarshal(rec.body("/membership/permission/register"), &announce))
	assert.Equal(t, "quiz", announce["service"])
	assert.Equal(t, "quiz_edit,service", announce["permissions"])

	var register map[string]string
	require.NoError(t, json.Unmarshal(rec.body("/service/register"), &register))
	assert.Equal(t, "quiz", register["name"])
	assert.Equal(t, "quiz", register["url"])
	assert.Equal(t, "test", register["version"])
	assert.Contains(t, register["endpoint"], "http://")
}

func TestStartFailsWhenUnregisterKeepsFailing(t *testing.T) {
	rec := newGatewayRecorder()
	rec.unregisterFailures = 2

	svc := newTestService(t, rec, false)
	err := svc.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unregister service")
}

func TestStartFailsWhenRegisterFails(t *testing.T) {
	rec := newGatewayRecorder()
	rec.registerStatus = http.StatusInternalServerError

	svc := newTestService(t, rec, false)
	err := svc.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to register service")
}

func TestFrontendSkipsRegistration(t *testing.T) {
	rec := newGatewayRecorder()

	svc := newTestService(t, rec, true)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Shutdown()

	assert.Equal(t, []string{"/membership/permission/register"}, rec.recorded())
}

func TestDefaultPermission(t *testing.T) {
	backend := newTestService(t, newGatewayRecorder(), false)
	assert.Equal(t, PermissionService, backend.DefaultPermission())

	frontend := newTestService(t, newGatewayRecorder(), true)
	assert.Equal(t, PermissionNone, frontend.DefaultPermission())
}

func serveOnce(t *testing.T, svc *Service, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, req)
	resp := w.Result()
	t.Cleanup(func() { resp.Body.Close() })

	var parsed map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return resp, parsed
}

func TestEnvelopeWrapsResults(t *testing.T) {
	svc := newTestService(t, newGatewayRecorder(), true)

	svc.Route("with_data", PermissionNone, "ok", func(_ *http.Request) (any, error) {
		return map[string]any{"value": 1}, nil
	}, http.MethodGet)
	svc.Route("no_data", PermissionNone, "deleted", func(_ *http.Request) (any, error) {
		return nil, nil
	}, http.MethodGet)

	resp, body := serveOnce(t, svc, httptest.NewRequest(http.MethodGet, "/quiz/with_data", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"data": map[string]any{"value": float64(1)}, "status": "ok"}, body)

	resp, body = serveOnce(t, svc, httptest.NewRequest(http.MethodGet, "/quiz/no_data", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "deleted"}, body)
}

func TestEnvelopeMapsErrors(t *testing.T) {
	svc := newTestService(t, newGatewayRecorder(), true)

	svc.Route("missing", PermissionNone, "ok", func(_ *http.Request) (any, error) {
		return nil, NotFound("no item with id '1' in table things")
	}, http.MethodGet)
	svc.Route("bad", PermissionNone, "ok", func(_ *http.Request) (any, error) {
		return nil, BadRequest("Missing required parameter option_id")
	}, http.MethodGet)
	svc.Route("boom", PermissionNone, "ok", func(_ *http.Request) (any, error) {
		return nil, errors.New("database exploded")
	}, http.MethodGet)

	resp, body := serveOnce(t, svc, httptest.NewRequest(http.MethodGet, "/quiz/missing", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	// The not-found shape is fixed regardless of the error message.
	assert.Equal(t, map[string]any{"status": "not found"}, body)

	resp, body = serveOnce(t, svc, httptest.NewRequest(http.MethodGet, "/quiz/bad", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "Missing required parameter option_id"}, body)

	resp, body = serveOnce(t, svc, httptest.NewRequest(http.MethodGet, "/quiz/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "internal server error"}, body)
}

func TestRequireKey(t *testing.T) {
	v, err := RequireKey(map[string]any{"option_id": 5}, "option_id")
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	_, err = RequireKey(map[string]any{}, "option_id")
	require.Error(t, err)
	serr := &Error{}
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusBadRequest, serr.Code)
	assert.Equal(t, "Missing required parameter option_id", serr.Message)
}

func TestHealthEndpoints(t *testing.T) {
	svc := newTestService(t, newGatewayRecorder(), true)

	_, body := serveOnce(t, svc, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, map[string]any{"status": "alive"}, body)

	_, body = serveOnce(t, svc, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, map[string]any{"status": "ready"}, body)
}
