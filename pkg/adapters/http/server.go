package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flow"
	"github.com/aretw0/chatflow/pkg/graph"
	"github.com/aretw0/chatflow/pkg/runner"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// Service is the subset of the flow orchestrator the HTTP API exposes.
type Service interface {
	Start(ctx context.Context, botID string) (*flow.Reply, error)
	Respond(ctx context.Context, sessionID string, resp flow.Response) (*flow.Reply, error)
	History(ctx context.Context, sessionID string, clean bool) (*flow.Transcript, error)
	Sessions(ctx context.Context, botID string) ([]*domain.Session, error)
	Bot(ctx context.Context, botID string) (*domain.Bot, error)
	Bots(ctx context.Context) ([]string, error)
}

// Server serves the flow API.
type Server struct {
	Service Service
	Streams *StreamManager

	logger    *slog.Logger
	metrics   http.Handler
	validate  bool
	sanitizer runner.Sanitizer
	version   string
}

// Option configures the Server.
type Option func(*Server)

// WithStreams shares a StreamManager, typically one also registered as the
// orchestrator's notifier.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithRequestValidation toggles validation of requests against the OpenAPI document.
func WithRequestValidation(enabled bool) Option {
	return func(s *Server) {
		s.validate = enabled
	}
}

// WithMaxInputSize overrides the sanitizer's input size limit.
func WithMaxInputSize(n int) Option {
	return func(s *Server) {
		s.sanitizer = runner.NewSanitizer(n)
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewHandler creates a new HTTP handler for the service.
func NewHandler(svc Service, opts ...Option) (http.Handler, error) {
	s := &Server{
		Service:  svc,
		logger:   logging.NewNop(),
		validate: true,
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	r := chi.NewRouter()

	if s.validate {
		v, err := newValidator(s.logger)
		if err != nil {
			return nil, err
		}
		r.Use(v.middleware)
	}

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/events", s.SubscribeEvents)

	r.Route("/api", func(r chi.Router) {
		r.Post("/flow/start/{botId}", s.StartFlow)
		r.Post("/flow/session/{sessionId}/respond", s.RespondToFlow)
		r.Get("/flow/session/{sessionId}/history", s.GetSessionHistory)

		r.Get("/bots", s.ListBots)
		r.Get("/bots/{botId}/graph", s.GetBotGraph)
		r.Get("/bots/{botId}/history", s.GetAllChatHistories)
		r.Get("/bots/{botId}/history/{sessionId}", s.GetChatHistoryBySession)
	})

	return enableCORS(r), nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Chatflow API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// StartFlow handles POST /api/flow/start/{botId}.
func (s *Server) StartFlow(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botId")

	reply, err := s.Service.Start(r.Context(), botID)
	if err != nil {
		s.writeError(w, "StartFlow", err)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

type respondRequest struct {
	Input  any `json:"input"`
	Option any `json:"optionIndexOrLabel"`
}

// RespondToFlow handles POST /api/flow/session/{sessionId}/respond.
func (s *Server) RespondToFlow(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var body respondRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		s.logger.Warn("RespondToFlow: Invalid request body", "err", err)
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return
	}

	input, err := s.sanitize(body.Input)
	if err != nil {
		s.logger.Warn("RespondToFlow: Input rejected", "err", err, "session_id", sessionID)
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("Invalid input: %v", err)})
		return
	}
	option, err := s.sanitize(body.Option)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("Invalid option: %v", err)})
		return
	}

	reply, err := s.Service.Respond(r.Context(), sessionID, flow.Response{Input: input, Option: option})
	if err != nil {
		s.writeError(w, "RespondToFlow", err)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

// sanitize cleans string inputs and turns JSON numbers into plain Go numbers.
func (s *Server) sanitize(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return s.sanitizer.Clean(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i), nil
		}
		return val.Float64()
	}
	return v, nil
}

// GetSessionHistory handles GET /api/flow/session/{sessionId}/history.
func (s *Server) GetSessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	clean, _ := strconv.ParseBool(r.URL.Query().Get("clean"))

	transcript, err := s.Service.History(r.Context(), sessionID, clean)
	if err != nil {
		s.writeError(w, "GetSessionHistory", err)
		return
	}
	s.writeJSON(w, http.StatusOK, transcript)
}

// ListBots handles GET /api/bots.
func (s *Server) ListBots(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Service.Bots(r.Context())
	if err != nil {
		s.writeEnvelopeError(w, "ListBots", err)
		return
	}
	s.writeJSON(w, http.StatusOK, ok(ids, "Bots fetched successfully"))
}

// GetBotGraph handles GET /api/bots/{botId}/graph.
func (s *Server) GetBotGraph(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botId")
	bot, err := s.Service.Bot(r.Context(), botID)
	if err != nil {
		s.writeEnvelopeError(w, "GetBotGraph", err)
		return
	}

	if r.URL.Query().Get("format") != "mermaid" {
		s.writeJSON(w, http.StatusOK, ok(bot, "Graph fetched successfully"))
		return
	}

	var overlay *graph.Overlay
	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
		transcript, err := s.Service.History(r.Context(), sessionID, false)
		if err != nil {
			s.writeEnvelopeError(w, "GetBotGraph", err)
			return
		}
		overlay = graph.OverlayFromHistory(transcript.History, transcript.CurrentNodeID)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(graph.GenerateMermaid(bot.Flow, overlay)))
}

type sessionSummary struct {
	SessionID     string `json:"sessionId"`
	CurrentNodeID string `json:"currentNodeId,omitempty"`
	Finished      bool   `json:"isFinished"`
	Messages      int    `json:"messages"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"lastUpdatedAt"`
}

// GetAllChatHistories handles GET /api/bots/{botId}/history.
func (s *Server) GetAllChatHistories(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botId")
	sessions, err := s.Service.Sessions(r.Context(), botID)
	if err != nil {
		s.writeEnvelopeError(w, "GetAllChatHistories", err)
		return
	}

	summaries := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, sessionSummary{
			SessionID:     sess.ID,
			CurrentNodeID: sess.CurrentNodeID,
			Finished:      sess.Finished,
			Messages:      len(sess.History),
			CreatedAt:     sess.CreatedAt.Format(timeLayout),
			UpdatedAt:     sess.UpdatedAt.Format(timeLayout),
		})
	}
	s.writeJSON(w, http.StatusOK, ok(map[string]any{
		"botId":         botID,
		"totalSessions": len(summaries),
		"sessions":      summaries,
	}, "Chat histories fetched successfully"))
}

// GetChatHistoryBySession handles GET /api/bots/{botId}/history/{sessionId}.
func (s *Server) GetChatHistoryBySession(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botId")
	sessionID := chi.URLParam(r, "sessionId")

	if _, err := s.Service.Bot(r.Context(), botID); err != nil {
		s.writeEnvelopeError(w, "GetChatHistoryBySession", err)
		return
	}
	transcript, err := s.Service.History(r.Context(), sessionID, true)
	if err == nil && transcript.BotID != botID {
		err = domain.ErrSessionNotFound
	}
	if err != nil {
		s.writeEnvelopeError(w, "GetChatHistoryBySession", err)
		return
	}
	s.writeJSON(w, http.StatusOK, ok(transcript, "Chat history fetched successfully"))
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := loadSpec(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":         "chatflow-http",
		"version":     strings.TrimSpace(s.version),
		"api_version": apiVersion,
	})
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type errorBody struct {
	Error  string `json:"error"`
	NodeID string `json:"nodeId,omitempty"`
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  any    `json:"result"`
}

func ok(result any, message string) envelope {
	return envelope{Status: "success", Message: message, Result: result}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInputRequired),
		errors.Is(err, domain.ErrInvalidBranchOption),
		errors.Is(err, runner.ErrInputTooLarge),
		errors.Is(err, runner.ErrInvalidUTF8):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrBotNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var inputErr *domain.InputError
	if errors.As(err, &inputErr) {
		body.NodeID = inputErr.NodeID
	}
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		body.Error = "Session not found"
	case errors.Is(err, domain.ErrBotNotFound):
		body.Error = "Bot not found"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Debug(op+" rejected", "err", err, "status", status)
	}
	s.writeJSON(w, status, body)
}

func (s *Server) writeEnvelopeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	}
	s.writeJSON(w, status, envelope{Status: "error", Message: http.StatusText(status), Result: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
