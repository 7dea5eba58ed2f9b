package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cuemby/gpubox/pkg/lifecycle"
	"github.com/cuemby/gpubox/pkg/metrics"
	"github.com/cuemby/gpubox/pkg/telemetry"
	"github.com/cuemby/gpubox/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(svc *fakeService, probes map[string]Probe) *Server {
	source := &telemetry.Static{
		GPUList:  []telemetry.GPU{{Index: 0, Name: "NVIDIA A100"}},
		HostInfo: &telemetry.Host{LogicalCPUs: 16},
	}
	return NewServer(svc, testVerifier, source, probes)
}

func do(t *testing.T, s *Server, method, path, token, body string) (*httptest.ResponseRecorder, ApiResponse) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var resp ApiResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestAuthenticationRequired(t *testing.T) {
	s := newTestServer(&fakeService{}, nil)

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"unknown token", "forged"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, s, http.MethodGet, "/api/containers", tt.token, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "fail", resp.Status)
			assert.Equal(t, "UNAUTHENTICATED", resp.Code)
		})
	}
}

func TestRoutes(t *testing.T) {
	const name = "test-user-20240102150405-1f2e3d4c"

	tests := []struct {
		method     string
		path       string
		token      string
		body       string
		wantStatus int
		wantOp     string
	}{
		{http.MethodPost, "/api/containers", "admin-token", `{"image":"ubuntu:latest","memoryLimit":"2g","cpus":2,"gpus":"none","userContainer":42}`, http.StatusCreated, "create"},
		{http.MethodGet, "/api/containers", "user-token", "", http.StatusOK, "list_mine"},
		{http.MethodGet, "/api/containers/all", "admin-token", "", http.StatusOK, "list_all"},
		{http.MethodGet, "/api/containers/stats", "admin-token", "", http.StatusOK, "batch_stats"},
		{http.MethodPost, "/api/containers/sweep", "admin-token", "", http.StatusOK, "sweep"},
		{http.MethodGet, "/api/containers/" + name, "user-token", "", http.StatusOK, "get"},
		{http.MethodPost, "/api/containers/" + name + "/reset", "user-token", "", http.StatusOK, "reset"},
		{http.MethodPost, "/api/containers/" + name + "/start", "admin-token", "", http.StatusOK, "start"},
		{http.MethodPost, "/api/containers/" + name + "/stop", "admin-token", "", http.StatusOK, "stop"},
		{http.MethodPost, "/api/containers/" + name + "/restart", "user-token", "", http.StatusOK, "restart"},
		{http.MethodDelete, "/api/containers/" + name, "admin-token", "", http.StatusOK, "delete"},
		{http.MethodPut, "/api/containers/" + name + "/password", "user-token", `{"password":"correct-horse"}`, http.StatusOK, "change_password"},
		{http.MethodGet, "/api/containers/" + name + "/logs", "user-token", "", http.StatusOK, "logs"},
		{http.MethodGet, "/api/containers/" + name + "/stats", "user-token", "", http.StatusOK, "stats"},
		{http.MethodGet, "/api/containers/" + name + "/jupyter", "user-token", "", http.StatusOK, "jupyter"},
		{http.MethodGet, "/api/images/search?q=ubuntu", "user-token", "", http.StatusOK, "search"},
		{http.MethodPost, "/api/tickets", "user-token", `{"containerName":"` + name + `","subject":"slow"}`, http.StatusCreated, "open_ticket"},
		{http.MethodGet, "/api/tickets", "user-token", "", http.StatusOK, "tickets"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			svc := &fakeService{}
			s := newTestServer(svc, nil)

			w, resp := do(t, s, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, "success", resp.Status)
			assert.Equal(t, "OK", resp.Code)
			assert.Equal(t, tt.wantOp, svc.lastOp)
			assert.Equal(t, testVerifier[tt.token], svc.actor)
		})
	}
}

func TestRouteArguments(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc, nil)

	_, _ = do(t, s, http.MethodPut, "/api/containers/c1/password", "user-token", `{"password":"correct-horse"}`)
	assert.Equal(t, "c1", svc.lastName)
	assert.Equal(t, "correct-horse", svc.lastArg)

	_, _ = do(t, s, http.MethodGet, "/api/containers/c1/logs", "user-token", "")
	assert.Equal(t, defaultLogTail, svc.lastArg)

	_, _ = do(t, s, http.MethodGet, "/api/containers/c1/logs?tail=50", "user-token", "")
	assert.Equal(t, 50, svc.lastArg)

	_, _ = do(t, s, http.MethodPost, "/api/containers", "admin-token",
		`{"image":"pytorch/pytorch:latest","memoryLimit":"16g","cpus":4.5,"gpus":"device=0,1","userContainer":7}`)
	assert.Equal(t, lifecycle.CreateRequest{
		Image:       "pytorch/pytorch:latest",
		MemoryLimit: "16g",
		CPUs:        4.5,
		GPUs:        "device=0,1",
		UserID:      7,
	}, svc.lastArg)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", types.Validationf("missing required fields: image"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unauthorized", fmt.Errorf("%w: not yours", types.ErrUnauthorized), http.StatusForbidden, "AUTHORIZATION_ERROR"},
		{"not found", types.NotFoundf("container x not found"), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", fmt.Errorf("%w: name in use", types.ErrConflict), http.StatusConflict, "CONFLICT"},
		{"exhausted", fmt.Errorf("%w: no free ports", types.ErrResourceExhausted), http.StatusServiceUnavailable, "RESOURCE_EXHAUSTED"},
		{"timeout", fmt.Errorf("engine run: %w", types.ErrTimeout), http.StatusGatewayTimeout, "TIMEOUT"},
		{"engine", &types.EngineError{Args: []string{"restart", "c1"}, ExitCode: 1, Stderr: "boom"}, http.StatusBadGateway, "ENGINE_ERROR"},
		{"partial", &types.PartialFailureError{Container: "c1", Op: "delete", Succeeded: "engine remove", Failed: "record delete", Err: errors.New("io")}, http.StatusInternalServerError, "PARTIAL_FAILURE"},
		{"internal", errors.New("bolt: database not open"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{err: tt.err}
			s := newTestServer(svc, nil)

			w, resp := do(t, s, http.MethodPost, "/api/containers/c1/restart", "user-token", "")
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "fail", resp.Status)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestPartialFailureDetail(t *testing.T) {
	svc := &fakeService{err: &types.PartialFailureError{
		Container: "c1", Op: "delete", Succeeded: "engine remove", Failed: "record delete", Err: errors.New("io"),
	}}
	s := newTestServer(svc, nil)

	w, _ := do(t, s, http.MethodDelete, "/api/containers/c1", "admin-token", "")
	var body struct {
		Data partialFailureDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, partialFailureDetail{Container: "c1", Op: "delete", Succeeded: "engine remove", Failed: "record delete"}, body.Data)
}

func TestInternalErrorHidden(t *testing.T) {
	svc := &fakeService{err: errors.New("open /var/lib/gpubox/gpubox.db: permission denied")}
	s := newTestServer(svc, nil)

	_, resp := do(t, s, http.MethodGet, "/api/containers", "user-token", "")
	assert.NotContains(t, resp.Message, "permission denied")
}

func TestBadRequests(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"empty create body", http.MethodPost, "/api/containers", ""},
		{"malformed json", http.MethodPost, "/api/containers", `{"image":`},
		{"unknown field", http.MethodPost, "/api/containers", `{"image":"x","privileged":true}`},
		{"bad tail", http.MethodGet, "/api/containers/c1/logs?tail=abc", ""},
		{"zero tail", http.MethodGet, "/api/containers/c1/logs?tail=0", ""},
		{"password without body", http.MethodPut, "/api/containers/c1/password", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc.lastOp = ""
			w, resp := do(t, s, tt.method, tt.path, "admin-token", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION_ERROR", resp.Code)
			assert.Empty(t, svc.lastOp, "service must not be called")
		})
	}
}

func TestTelemetryRoutes(t *testing.T) {
	s := newTestServer(&fakeService{}, nil)

	w, resp := do(t, s, http.MethodGet, "/api/gpus/telemetry", "user-token", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)

	w, resp = do(t, s, http.MethodGet, "/api/host", "user-token", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "AUTHORIZATION_ERROR", resp.Code)

	w, resp = do(t, s, http.MethodGet, "/api/host", "admin-token", "")
	assert.Equal(t, http.StatusOK, w.Code)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(16), data["logicalCpus"])
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(&fakeService{}, nil)

	w, resp := do(t, s, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Code)

	w, _ = do(t, s, http.MethodPatch, "/api/containers", "user-token", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestProbeEndpoints(t *testing.T) {
	engineDown := errors.New("Cannot connect to the Docker daemon")
	var engineErr error
	probes := map[string]Probe{
		metrics.ComponentStore:  func(ctx context.Context) error { return nil },
		metrics.ComponentEngine: func(ctx context.Context) error { return engineErr },
	}
	s := newTestServer(&fakeService{}, probes)
	metrics.UpdateComponent(metrics.ComponentAPI, true, "")

	w, _ := do(t, s, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	engineErr = engineDown
	w, _ = do(t, s, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "Docker daemon")

	w, _ = do(t, s, http.MethodGet, "/live", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, s, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gpubox_api_requests_total")

	metrics.ReportError(metrics.ComponentEngine, nil)
}
