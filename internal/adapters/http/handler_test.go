package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockatrice/testatrice/internal/core/domain"
	"github.com/cockatrice/testatrice/internal/core/ports"
)

type stubService struct {
	calls    []string
	recreate bool
	opts     domain.InstanceOptions
	stopped  string
	servers  []domain.ServerInfo
	err      error
}

func (s *stubService) BuildEnvironment(_ context.Context, recreate bool) error {
	s.calls = append(s.calls, "build")
	s.recreate = recreate
	return s.err
}

func (s *stubService) DestroyEnvironment(context.Context) error {
	s.calls = append(s.calls, "destroy")
	return s.err
}

func (s *stubService) NewServerInstance(_ context.Context, opts domain.InstanceOptions) (*domain.ServerInstance, error) {
	s.calls = append(s.calls, "new")
	s.opts = opts
	id := opts.Identifier
	if id == "" {
		id = "generated"
	}
	profile := domain.DefaultProfile()
	return domain.NewServerInstance(id, "testatrice-server-"+id, 5000, 5001, opts.LogPath, profile), nil
}

func (s *stubService) Start(context.Context, *domain.ServerInstance) error {
	s.calls = append(s.calls, "start")
	return s.err
}

func (s *stubService) Stop(context.Context, *domain.ServerInstance) error {
	s.calls = append(s.calls, "stop")
	return s.err
}

func (s *stubService) StopServer(_ context.Context, id string) error {
	s.calls = append(s.calls, "stop-server")
	s.stopped = id
	return s.err
}

func (s *stubService) StopAllServers(context.Context) error {
	s.calls = append(s.calls, "stop-all")
	return s.err
}

func (s *stubService) ListServers(context.Context) ([]domain.ServerInfo, error) {
	s.calls = append(s.calls, "list")
	return s.servers, s.err
}

type stubTokens struct {
	tokens map[string]string
	err    error
}

func (s *stubTokens) Activation(_ context.Context, username string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.tokens["activation/"+username], nil
}

func (s *stubTokens) PasswordReset(_ context.Context, username string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.tokens["reset/"+username], nil
}

func newTestApp(svc *stubService, tokens ports.TokenSource) *fiber.App {
	h := NewEnvironmentHandler(svc, tokens, zerolog.Nop())
	return NewApp(h, zerolog.Nop())
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestBuildEnvironment(t *testing.T) {
	svc := &stubService{}
	app := newTestApp(svc, nil)

	status, _ := do(t, app, fiber.MethodPost, "/api/v1/environment?recreate=true", "")
	assert.Equal(t, fiber.StatusNoContent, status)
	assert.Equal(t, []string{"build"}, svc.calls)
	assert.True(t, svc.recreate)
}

func TestDestroyEnvironment(t *testing.T) {
	svc := &stubService{}
	app := newTestApp(svc, nil)

	status, _ := do(t, app, fiber.MethodDelete, "/api/v1/environment", "")
	assert.Equal(t, fiber.StatusNoContent, status)
	assert.Equal(t, []string{"destroy"}, svc.calls)
}

func TestStartServer(t *testing.T) {
	svc := &stubService{}
	app := newTestApp(svc, nil)

	body := `{"identifier":"alpha","log_path":"/tmp/logs","profile":{"enable_registration":true}}`
	status, resp := do(t, app, fiber.MethodPost, "/api/v1/servers", body)
	require.Equal(t, fiber.StatusCreated, status, resp)

	var got StartServerResponse
	require.NoError(t, json.Unmarshal([]byte(resp), &got))
	assert.Equal(t, StartServerResponse{
		Identifier:    "alpha",
		ContainerName: "testatrice-server-alpha",
		TCPPort:       5000,
		WebSocketPort: 5001,
		WebSocketURL:  "ws://localhost:5001",
	}, got)

	assert.Equal(t, []string{"new", "start"}, svc.calls)
	assert.Equal(t, "/tmp/logs", svc.opts.LogPath)
	require.NotNil(t, svc.opts.Profile)
	assert.True(t, svc.opts.Profile.EnableRegistration)
}

func TestStartServer_EmptyBody(t *testing.T) {
	svc := &stubService{}
	app := newTestApp(svc, nil)

	status, resp := do(t, app, fiber.MethodPost, "/api/v1/servers", "")
	require.Equal(t, fiber.StatusCreated, status, resp)
	assert.Equal(t, domain.InstanceOptions{}, svc.opts)
}

func TestStartServer_BadBody(t *testing.T) {
	svc := &stubService{}
	app := newTestApp(svc, nil)

	status, _ := do(t, app, fiber.MethodPost, "/api/v1/servers", "{not json")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Empty(t, svc.calls)
}

func TestStopServer(t *testing.T) {
	svc := &stubService{}
	app := newTestApp(svc, nil)

	status, _ := do(t, app, fiber.MethodDelete, "/api/v1/servers/alpha", "")
	assert.Equal(t, fiber.StatusNoContent, status)
	assert.Equal(t, "alpha", svc.stopped)
}

func TestStopAllServers(t *testing.T) {
	svc := &stubService{}
	app := newTestApp(svc, nil)

	status, _ := do(t, app, fiber.MethodDelete, "/api/v1/servers", "")
	assert.Equal(t, fiber.StatusNoContent, status)
	assert.Equal(t, []string{"stop-all"}, svc.calls)
}

func TestListServers(t *testing.T) {
	svc := &stubService{servers: []domain.ServerInfo{
		{Identifier: "a", ContainerName: "testatrice-server-a", Status: domain.StatusRunning},
	}}
	app := newTestApp(svc, nil)

	status, resp := do(t, app, fiber.MethodGet, "/api/v1/servers", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `[{"identifier":"a","container_name":"testatrice-server-a","status":"running"}]`, resp)
}

func TestListServers_Empty(t *testing.T) {
	app := newTestApp(&stubService{}, nil)

	status, resp := do(t, app, fiber.MethodGet, "/api/v1/servers", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `[]`, resp)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"connectivity", domain.Connectivity("ping", errors.New("refused")), fiber.StatusServiceUnavailable},
		{"conflict", domain.Conflict("start", "testatrice-server-a", "already exists"), fiber.StatusConflict},
		{"port", domain.PortInUse(4747), fiber.StatusConflict},
		{"absent", domain.Absent("stop", "testatrice-server-a", "not running"), fiber.StatusNotFound},
		{"invalid", domain.Invalid("new", "bad identifier"), fiber.StatusBadRequest},
		{"other", errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&stubService{err: tt.err}, nil)

			status, resp := do(t, app, fiber.MethodDelete, "/api/v1/servers/a", "")
			assert.Equal(t, tt.want, status)
			assert.Contains(t, resp, tt.err.Error())
		})
	}
}

func TestGetToken(t *testing.T) {
	tokens := &stubTokens{tokens: map[string]string{
		"activation/alice": "act",
		"reset/alice":      "rst",
	}}
	app := newTestApp(&stubService{}, tokens)

	status, resp := do(t, app, fiber.MethodGet, "/api/v1/tokens/activation/alice", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"username":"alice","token":"act"}`, resp)

	status, resp = do(t, app, fiber.MethodGet, "/api/v1/tokens/reset/alice", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"username":"alice","token":"rst"}`, resp)
}

func TestGetToken_Errors(t *testing.T) {
	app := newTestApp(&stubService{}, &stubTokens{})
	status, _ := do(t, app, fiber.MethodGet, "/api/v1/tokens/welcome/alice", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	app = newTestApp(&stubService{}, &stubTokens{err: context.DeadlineExceeded})
	status, _ = do(t, app, fiber.MethodGet, "/api/v1/tokens/activation/alice?timeout=1", "")
	assert.Equal(t, fiber.StatusGatewayTimeout, status)

	app = newTestApp(&stubService{}, nil)
	status, _ = do(t, app, fiber.MethodGet, "/api/v1/tokens/activation/alice", "")
	assert.Equal(t, fiber.StatusNotImplemented, status)
}
