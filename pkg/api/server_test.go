package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasya-arogya/engine/pkg/models"
	"github.com/sasya-arogya/engine/pkg/session"
	"github.com/sasya-arogya/engine/pkg/store"
)

type healthStub struct{ err error }

func (h healthStub) Health(context.Context) error { return h.err }

func newTestServer(t *testing.T, upstreams map[string]HealthChecker) (*Server, *session.Manager) {
	t.Helper()
	sessions := session.NewManager(store.NewMemoryStore())
	return NewServer(nil, sessions, upstreams), sessions
}

func TestHealthAllHealthy(t *testing.T) {
	s, _ := newTestServer(t, map[string]HealthChecker{
		"prescription_engine": healthStub{},
		"insurance_mcp":       healthStub{},
	})
	srv := httptest.NewServer(s.echo)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthDegraded(t *testing.T) {
	s, _ := newTestServer(t, map[string]HealthChecker{
		"insurance_mcp": healthStub{err: fmt.Errorf("connection refused")},
	})
	srv := httptest.NewServer(s.echo)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGetSessionNotFound(t *testing.T) {
	s, _ := newTestServer(t, nil)
	srv := httptest.NewServer(s.echo)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/sessions/unknown")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetSessionFound(t *testing.T) {
	s, sessions := newTestServer(t, nil)
	srv := httptest.NewServer(s.echo)
	defer srv.Close()

	state := models.NewSessionState("s1")
	state.DiseaseName = "rust"
	state.AddMessage(models.RoleUser, "hi")
	require.NoError(t, sessions.Save(context.Background(), state))

	resp, err := http.Get(srv.URL + "/api/v1/sessions/s1")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	s, _ := newTestServer(t, nil)
	srv := httptest.NewServer(s.echo)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/chat", "application/json",
		strings.NewReader(`{"session_id": "s1"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
