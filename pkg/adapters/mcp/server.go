package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flow"
	"github.com/aretw0/chatflow/pkg/graph"
	"github.com/aretw0/chatflow/pkg/runner"
)

const graphURIPrefix = "chatflow://bots/"

// Service is the subset of the flow orchestrator exposed as MCP tools.
type Service interface {
	Start(ctx context.Context, botID string) (*flow.Reply, error)
	Respond(ctx context.Context, sessionID string, resp flow.Response) (*flow.Reply, error)
	History(ctx context.Context, sessionID string, clean bool) (*flow.Transcript, error)
	Bot(ctx context.Context, botID string) (*domain.Bot, error)
	Bots(ctx context.Context) ([]string, error)
}

// StartArgs are the arguments of the start_session tool.
type StartArgs struct {
	BotID string `json:"bot_id"`
}

// RespondArgs are the arguments of the respond tool.
type RespondArgs struct {
	SessionID string `json:"session_id"`
	Input     string `json:"input,omitempty"`
	Option    string `json:"option,omitempty"`
}

// HistoryArgs are the arguments of the get_history tool.
type HistoryArgs struct {
	SessionID string `json:"session_id"`
	Clean     bool   `json:"clean,omitempty"`
}

// GraphArgs are the arguments of the get_graph tool.
type GraphArgs struct {
	BotID     string `json:"bot_id"`
	Format    string `json:"format,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// BotList is the result of the list_bots tool.
type BotList struct {
	Bots []string `json:"bots" jsonschema_description:"Known bot ids"`
}

// Server wraps the flow service and exposes it as an MCP Server.
type Server struct {
	service   Service
	logger    *slog.Logger
	sanitizer runner.Sanitizer
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

// WithMaxInputSize limits the size of respond inputs.
func WithMaxInputSize(n int) Option {
	return func(s *Server) {
		s.sanitizer = runner.NewSanitizer(n)
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(service Service, version string, opts ...Option) *Server {
	s := &Server{
		service:   service,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("chatflow-mcp", strings.TrimSpace(version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying server, mainly for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on addr using SSE and stops when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("MCP Server shutting down")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Start a new conversation with a bot and return its first turn."),
		mcp.WithString("bot_id", mcp.Required(), mcp.Description("The bot to talk to")),
		mcp.WithOutputSchema[flow.Reply](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("respond",
		mcp.WithDescription("Answer the node a session is waiting on. Branches take an option index or label."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID returned by start_session")),
		mcp.WithString("input", mcp.Description("Free text answer")),
		mcp.WithString("option", mcp.Description("Branch option index or label")),
		mcp.WithOutputSchema[flow.Reply](),
	), mcp.NewStructuredToolHandler(s.handleRespond))

	s.mcpServer.AddTool(mcp.NewTool("get_history",
		mcp.WithDescription("Get the conversation log of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithBoolean("clean", mcp.Description("Drop duplicated answer records")),
		mcp.WithOutputSchema[flow.Transcript](),
	), mcp.NewStructuredToolHandler(s.handleHistory))

	s.mcpServer.AddTool(mcp.NewTool("list_bots",
		mcp.WithDescription("List the ids of the available bots."),
		mcp.WithOutputSchema[BotList](),
	), mcp.NewStructuredToolHandler(s.handleListBots))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the flow graph of a bot as JSON or as a Mermaid diagram."),
		mcp.WithString("bot_id", mcp.Required(), mcp.Description("Bot ID")),
		mcp.WithString("format", mcp.Enum("json", "mermaid"), mcp.Description("Output format (default json)")),
		mcp.WithString("session_id", mcp.Description("Highlight the path of this session (mermaid only)")),
	), s.handleGraph)
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest, args StartArgs) (flow.Reply, error) {
	if args.BotID == "" {
		return flow.Reply{}, errors.New("bot_id is required")
	}
	reply, err := s.service.Start(ctx, args.BotID)
	if err != nil {
		return flow.Reply{}, fmt.Errorf("start failed: %w", err)
	}
	return *reply, nil
}

func (s *Server) handleRespond(ctx context.Context, request mcp.CallToolRequest, args RespondArgs) (flow.Reply, error) {
	if args.SessionID == "" {
		return flow.Reply{}, errors.New("session_id is required")
	}

	var resp flow.Response
	if args.Input != "" {
		clean, err := s.sanitizer.Clean(args.Input)
		if err != nil {
			s.logger.Warn("MCP Respond: Input rejected", "err", err, "size", len(args.Input))
			return flow.Reply{}, fmt.Errorf("input rejected: %w", err)
		}
		resp.Input = clean
	}
	if args.Option != "" {
		resp.Option = args.Option
	}

	reply, err := s.service.Respond(ctx, args.SessionID, resp)
	if err != nil {
		return flow.Reply{}, fmt.Errorf("respond failed: %w", err)
	}
	return *reply, nil
}

func (s *Server) handleHistory(ctx context.Context, request mcp.CallToolRequest, args HistoryArgs) (flow.Transcript, error) {
	transcript, err := s.service.History(ctx, args.SessionID, args.Clean)
	if err != nil {
		return flow.Transcript{}, fmt.Errorf("history failed: %w", err)
	}
	return *transcript, nil
}

func (s *Server) handleListBots(ctx context.Context, request mcp.CallToolRequest, _ struct{}) (BotList, error) {
	ids, err := s.service.Bots(ctx)
	if err != nil {
		return BotList{}, fmt.Errorf("list bots failed: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return BotList{Bots: ids}, nil
}

func (s *Server) handleGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args GraphArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	out, err := s.renderGraph(ctx, args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) renderGraph(ctx context.Context, args GraphArgs) (string, error) {
	bot, err := s.service.Bot(ctx, args.BotID)
	if err != nil {
		return "", fmt.Errorf("graph failed: %w", err)
	}
	if args.Format != "mermaid" {
		b, err := json.Marshal(bot)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	var overlay *graph.Overlay
	if args.SessionID != "" {
		transcript, err := s.service.History(ctx, args.SessionID, false)
		if err != nil {
			return "", fmt.Errorf("graph failed: %w", err)
		}
		overlay = graph.OverlayFromHistory(transcript.History, transcript.CurrentNodeID)
	}
	return graph.GenerateMermaid(bot.Flow, overlay), nil
}

func (s *Server) registerResources() {
	// EXPOSE: chatflow://bots/{botId}
	template := mcp.NewResourceTemplate(graphURIPrefix+"{botId}", "Bot Definition",
		mcp.WithTemplateDescription("Conversation flow of a bot"),
		mcp.WithTemplateMIMEType("application/json"),
	)
	s.mcpServer.AddResourceTemplate(template, s.readBotResource)
}

func (s *Server) readBotResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	botID := strings.TrimPrefix(uri, graphURIPrefix)
	if botID == "" || botID == uri {
		return nil, fmt.Errorf("unexpected resource uri %q", uri)
	}
	out, err := s.renderGraph(ctx, GraphArgs{BotID: botID})
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     out,
		},
	}, nil
}
