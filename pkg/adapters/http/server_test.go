package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dispatchhttp "github.com/aretw0/dispatch/pkg/adapters/http"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeEngine struct {
	lastTurn    domain.TurnRequest
	lastConfirm domain.ConfirmRequest
	sessions    map[string]*domain.Session
	deleted     []string
}

func (f *fakeEngine) Process(ctx context.Context, req domain.TurnRequest) *domain.TurnResponse {
	f.lastTurn = req
	return &domain.TurnResponse{
		Action:            domain.ActionCancelTrip,
		Status:            domain.StatusConfirmationRequired,
		Message:           "Cancel Harbor Loop?",
		NeedsConfirmation: true,
		SessionID:         "s-1",
		Warnings:          []string{"8 bookings will be cancelled"},
		Success:           true,
	}
}

func (f *fakeEngine) Confirm(ctx context.Context, req domain.ConfirmRequest) *domain.TurnResponse {
	f.lastConfirm = req
	return &domain.TurnResponse{Status: domain.StatusExecuted, Message: "done", SessionID: req.SessionID, Success: true}
}

func (f *fakeEngine) Session(ctx context.Context, id string) (*domain.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeEngine) Sessions(ctx context.Context) ([]*domain.Session, error) {
	var out []*domain.Session
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeEngine) DeleteSession(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func newServer(opts ...dispatchhttp.Option) (*fakeEngine, *httptest.Server) {
	eng := &fakeEngine{sessions: map[string]*domain.Session{
		"s-1": {ID: "s-1", Kind: domain.SessionConfirmation, Status: domain.SessionPending, Revision: 1, UpdatedAt: time.Unix(0, 0).UTC()},
	}}
	return eng, httptest.NewServer(dispatchhttp.NewHandler(eng, eng, opts...))
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPostTurn(t *testing.T) {
	eng, srv := newServer()
	defer srv.Close()

	resp := post(t, srv.URL+"/v1/turns", `{"text":"cancel the \u001b[1mharbor loop","user_id":"ops-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got domain.TurnResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	want := domain.TurnResponse{
		Action:            domain.ActionCancelTrip,
		Status:            domain.StatusConfirmationRequired,
		Message:           "Cancel Harbor Loop?",
		NeedsConfirmation: true,
		SessionID:         "s-1",
		Warnings:          []string{"8 bookings will be cancelled"},
		Success:           true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("turn response mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "cancel the [1mharbor loop", eng.lastTurn.Text, "control characters are stripped")
	assert.Equal(t, "ops-1", eng.lastTurn.UserID)
}

func TestPostTurn_Rejections(t *testing.T) {
	_, srv := newServer(dispatchhttp.WithMaxBodyBytes(64))
	defer srv.Close()

	t.Run("Invalid JSON", func(t *testing.T) {
		resp := post(t, srv.URL+"/v1/turns", `{"text":`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "invalid_body", body["code"])
	})

	t.Run("Body Too Large", func(t *testing.T) {
		resp := post(t, srv.URL+"/v1/turns", `{"text":"`+strings.Repeat("a", 100)+`"}`)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})
}

func TestPostConfirmation(t *testing.T) {
	eng, srv := newServer()
	defer srv.Close()

	missing := post(t, srv.URL+"/v1/confirmations", `{"confirmed":true}`)
	assert.Equal(t, http.StatusBadRequest, missing.StatusCode)

	resp := post(t, srv.URL+"/v1/confirmations", `{"session_id":"s-1","confirmed":true,"user_id":"ops-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.ConfirmRequest{SessionID: "s-1", Confirmed: true, UserID: "ops-1"}, eng.lastConfirm)
}

func TestSessions(t *testing.T) {
	eng, srv := newServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/sessions/s-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sess domain.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	assert.Equal(t, domain.SessionPending, sess.Status)

	missing, err := http.Get(srv.URL + "/v1/sessions/nope")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	list, err := http.Get(srv.URL + "/v1/sessions")
	require.NoError(t, err)
	defer list.Body.Close()
	var all []domain.Session
	require.NoError(t, json.NewDecoder(list.Body).Decode(&all))
	assert.Len(t, all, 1)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/sessions/s-1", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)
	assert.Equal(t, []string{"s-1"}, eng.deleted)
}

func TestGraphHealthMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("dispatch_turns_total 1\n"))
	})
	_, srv := newServer(
		dispatchhttp.WithGraph(func() string { return "graph TD\n" }),
		dispatchhttp.WithMetrics(metrics),
		dispatchhttp.WithHealthCheck(func(ctx context.Context) error { return errors.New("redis down") }),
	)
	defer srv.Close()

	graph, err := http.Get(srv.URL + "/v1/graph")
	require.NoError(t, err)
	defer graph.Body.Close()
	assert.Equal(t, http.StatusOK, graph.StatusCode)

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, health.StatusCode)

	m, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer m.Body.Close()
	assert.Equal(t, http.StatusOK, m.StatusCode)
}

func TestGraph_Disabled(t *testing.T) {
	_, srv := newServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/graph")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	m, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer m.Body.Close()
	assert.Equal(t, http.StatusNotFound, m.StatusCode)
}
