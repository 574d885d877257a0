// Package mcp exposes the dispatch engine as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/dispatch/internal/logging"
	"github.com/aretw0/dispatch/internal/sanitize"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// TurnArgs are the process_turn arguments.
type TurnArgs struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	EntityID  *int64 `json:"entity_id,omitempty"`
	Page      string `json:"page,omitempty"`
}

// ConfirmArgs are the confirm_action arguments.
type ConfirmArgs struct {
	SessionID string `json:"session_id"`
	Confirmed bool   `json:"confirmed"`
	UserID    string `json:"user_id,omitempty"`
}

// SessionArgs are the get_session arguments.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// Server wraps the engine as an MCP server.
type Server struct {
	turns     ports.TurnProcessor
	admin     ports.SessionAdmin
	graph     func() string
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGraph exposes the rendered workflow graph as the dispatch://graph resource.
func WithGraph(render func() string) Option {
	return func(s *Server) {
		s.graph = render
	}
}

// NewServer creates an MCP server with the dispatch tools registered.
func NewServer(turns ports.TurnProcessor, admin ports.SessionAdmin, version string, opts ...Option) *Server {
	s := &Server{
		turns:  turns,
		admin:  admin,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer("dispatch", version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))
	mux := http.NewServeMux()
	mux.Handle("/sse", sse.SSEHandler())
	mux.Handle("/message", sse.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening", "transport", "sse", "address", addr)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop mcp server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("process_turn",
		mcp.WithDescription("Send one free-text transport operations command, or the answer to a pending question, and get the engine's reply."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The operator's message, e.g. \"cancel the Harbor Loop trip\"")),
		mcp.WithString("session_id", mcp.Description("Session to continue; omit to start a new one")),
		mcp.WithString("user_id", mcp.Description("Operator id recorded on sessions and actions")),
		mcp.WithNumber("entity_id", mcp.Description("Id of the entity the operator has open, if any")),
		mcp.WithString("page", mcp.Description("Page the operator is on, e.g. trips")),
		mcp.WithOutputSchema[domain.TurnResponse](),
	), mcp.NewStructuredToolHandler(s.processTurn))

	s.mcpServer.AddTool(mcp.NewTool("confirm_action",
		mcp.WithDescription("Confirm or decline the action pending on a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session returned with needs_confirmation")),
		mcp.WithBoolean("confirmed", mcp.Required(), mcp.Description("true to run the action, false to discard it")),
		mcp.WithString("user_id", mcp.Description("Operator id")),
		mcp.WithOutputSchema[domain.TurnResponse](),
	), mcp.NewStructuredToolHandler(s.confirmAction))

	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Inspect a stored confirmation, wizard or selection session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithOutputSchema[domain.Session](),
	), mcp.NewStructuredToolHandler(s.getSession))
}

func (s *Server) processTurn(ctx context.Context, request mcp.CallToolRequest, args TurnArgs) (*domain.TurnResponse, error) {
	clean, err := sanitize.Input(args.Text)
	if err != nil {
		s.logger.Warn("mcp turn input rejected", "err", err, "size", len(args.Text))
		return nil, fmt.Errorf("input rejected: %w", err)
	}
	return s.turns.Process(ctx, domain.TurnRequest{
		Text:      clean,
		SessionID: args.SessionID,
		UserID:    args.UserID,
		EntityID:  args.EntityID,
		Page:      args.Page,
	}), nil
}

func (s *Server) confirmAction(ctx context.Context, request mcp.CallToolRequest, args ConfirmArgs) (*domain.TurnResponse, error) {
	if args.SessionID == "" {
		return nil, errors.New("session_id is required")
	}
	return s.turns.Confirm(ctx, domain.ConfirmRequest{
		SessionID: args.SessionID,
		Confirmed: args.Confirmed,
		UserID:    args.UserID,
	}), nil
}

func (s *Server) getSession(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (*domain.Session, error) {
	sess, err := s.admin.Session(ctx, args.SessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", args.SessionID, err)
	}
	return sess, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("dispatch://actions", "Business action catalog",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type entry struct {
			Name        string                `json:"name"`
			Category    domain.ActionCategory `json:"category"`
			Target      domain.EntityKind     `json:"target,omitempty"`
			Description string                `json:"description"`
		}
		var catalog []entry
		for _, spec := range domain.Actions() {
			catalog = append(catalog, entry{Name: spec.Name, Category: spec.Category, Target: spec.Target, Description: spec.Description})
		}
		data, err := json.Marshal(catalog)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: "dispatch://actions", MIMEType: "application/json", Text: string(data)},
		}, nil
	})

	if s.graph == nil {
		return
	}
	s.mcpServer.AddResource(mcp.NewResource("dispatch://graph", "Workflow graph (Mermaid)",
		mcp.WithMIMEType("text/plain"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: "dispatch://graph", MIMEType: "text/plain", Text: s.graph()},
		}, nil
	})
}
