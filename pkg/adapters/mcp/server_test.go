package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	turns    []domain.TurnRequest
	confirms []domain.ConfirmRequest
}

func (f *fakeEngine) Process(ctx context.Context, req domain.TurnRequest) *domain.TurnResponse {
	f.turns = append(f.turns, req)
	return &domain.TurnResponse{Status: domain.StatusConfirmationRequired, SessionID: "s-1", NeedsConfirmation: true, Success: true}
}

func (f *fakeEngine) Confirm(ctx context.Context, req domain.ConfirmRequest) *domain.TurnResponse {
	f.confirms = append(f.confirms, req)
	return &domain.TurnResponse{Status: domain.StatusExecuted, SessionID: req.SessionID, Success: true}
}

func (f *fakeEngine) Session(ctx context.Context, id string) (*domain.Session, error) {
	if id != "s-1" {
		return nil, domain.ErrSessionNotFound
	}
	return &domain.Session{ID: id, Kind: domain.SessionConfirmation, Status: domain.SessionPending}, nil
}

func (f *fakeEngine) Sessions(ctx context.Context) ([]*domain.Session, error) { return nil, nil }
func (f *fakeEngine) DeleteSession(ctx context.Context, id string) error      { return nil }

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestProcessTurn(t *testing.T) {
	eng := &fakeEngine{}
	s := NewServer(eng, eng, "test")
	handle := mcp.NewStructuredToolHandler(s.processTurn)

	res, err := handle(context.Background(), call(map[string]any{
		"text":      "cancel\x07 the harbor loop",
		"user_id":   "ops-1",
		"entity_id": 101,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	resp, ok := res.StructuredContent.(*domain.TurnResponse)
	require.True(t, ok)
	assert.True(t, resp.NeedsConfirmation)

	require.Len(t, eng.turns, 1)
	assert.Equal(t, "cancel the harbor loop", eng.turns[0].Text)
	require.NotNil(t, eng.turns[0].EntityID)
	assert.Equal(t, int64(101), *eng.turns[0].EntityID)
}

func TestProcessTurn_RejectsOversizedInput(t *testing.T) {
	eng := &fakeEngine{}
	s := NewServer(eng, eng, "test")
	handle := mcp.NewStructuredToolHandler(s.processTurn)

	res, err := handle(context.Background(), call(map[string]any{"text": strings.Repeat("x", 5000)}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Empty(t, eng.turns)
}

func TestConfirmAction(t *testing.T) {
	eng := &fakeEngine{}
	s := NewServer(eng, eng, "test")
	handle := mcp.NewStructuredToolHandler(s.confirmAction)

	missing, err := handle(context.Background(), call(map[string]any{"confirmed": true}))
	require.NoError(t, err)
	assert.True(t, missing.IsError)

	res, err := handle(context.Background(), call(map[string]any{"session_id": "s-1", "confirmed": true}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, []domain.ConfirmRequest{{SessionID: "s-1", Confirmed: true}}, eng.confirms)
}

func TestGetSession(t *testing.T) {
	eng := &fakeEngine{}
	s := NewServer(eng, eng, "test")
	handle := mcp.NewStructuredToolHandler(s.getSession)

	res, err := handle(context.Background(), call(map[string]any{"session_id": "s-1"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	sess, ok := res.StructuredContent.(*domain.Session)
	require.True(t, ok)
	assert.Equal(t, domain.SessionPending, sess.Status)

	missing, err := handle(context.Background(), call(map[string]any{"session_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, missing.IsError)
}

func TestToolsList(t *testing.T) {
	eng := &fakeEngine{}
	s := NewServer(eng, eng, "test", WithGraph(func() string { return "graph TD" }))

	reply := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(reply)
	require.NoError(t, err)
	for _, tool := range []string{"process_turn", "confirm_action", "get_session"} {
		assert.Contains(t, string(data), `"`+tool+`"`)
	}
}
