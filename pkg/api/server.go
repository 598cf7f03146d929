// Package api provides the HTTP surface of the engine: streaming and
// non-streaming chat endpoints, session inspection and health.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/sasya-arogya/engine/pkg/session"
	"github.com/sasya-arogya/engine/pkg/store"
	"github.com/sasya-arogya/engine/pkg/workflow"
)

// HealthChecker is the probe surface each upstream tool exposes.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	engine     *workflow.Engine
	sessions   *session.Manager
	upstreams  map[string]HealthChecker
}

// NewServer creates a new API server with Echo v5.
func NewServer(engine *workflow.Engine, sessions *session.Manager, upstreams map[string]HealthChecker) *Server {
	e := echo.New()

	s := &Server{
		echo:      e,
		engine:    engine,
		sessions:  sessions,
		upstreams: upstreams,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Plant images arrive base64-encoded in the chat body; allow generous
	// payloads but reject the truly pathological at the HTTP read level.
	s.echo.Use(middleware.BodyLimit(16 * 1024 * 1024))

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/chat", s.chatHandler)
	v1.POST("/chat-stream", s.chatStreamHandler)
	v1.GET("/sessions/:id", s.getSessionHandler)
	v1.POST("/sessions/:id/end", s.endSessionHandler)
	v1.GET("/ws", s.wsHandler)
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// chatHandler handles POST /api/v1/chat: one full turn, final state summary.
func (s *Server) chatHandler(c *echo.Context) error {
	req, err := bindChatRequest(c)
	if err != nil {
		return err
	}

	result, err := s.engine.ProcessMessage(c.Request().Context(),
		req.SessionID, req.Message, req.ImageB64, req.UserContext)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// chatStreamHandler handles POST /api/v1/chat-stream: Server-Sent Events,
// one event per engine emission, closing when the turn finishes.
func (s *Server) chatStreamHandler(c *echo.Context) error {
	req, err := bindChatRequest(c)
	if err != nil {
		return err
	}

	events, err := s.engine.StreamMessage(c.Request().Context(),
		req.SessionID, req.Message, req.ImageB64, req.UserContext)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := c.Response()
	resp.Header().Set("Content-Type", "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	for event := range events {
		payload, marshalErr := json.Marshal(event)
		if marshalErr != nil {
			slog.Error("Failed to marshal stream event", "error", marshalErr)
			continue
		}
		if _, writeErr := fmt.Fprintf(resp, "data: %s\n\n", payload); writeErr != nil {
			// Client went away; the request context cancellation stops the
			// engine without persisting partial state.
			slog.Debug("SSE client disconnected", "session_id", req.SessionID)
			break
		}
		_ = http.NewResponseController(resp).Flush()
	}
	return nil
}

// wsHandler handles GET /api/v1/ws: each client message is a ChatRequest,
// answered by the turn's event stream as JSON messages.
func (s *Server) wsHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		return nil // Accept already wrote the HTTP error
	}
	defer func() { _ = conn.CloseNow() }()

	ctx := c.Request().Context()
	for {
		var req ChatRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			return nil
		}
		if req.SessionID == "" {
			req.SessionID = uuid.New().String()
		}

		events, err := s.engine.StreamMessage(ctx, req.SessionID, req.Message, req.ImageB64, req.UserContext)
		if err != nil {
			_ = wsjson.Write(ctx, conn, map[string]any{
				"type": "error", "session_id": req.SessionID, "error": err.Error(),
			})
			continue
		}
		for event := range events {
			if err := wsjson.Write(ctx, conn, event); err != nil {
				return nil
			}
		}
	}
}

// getSessionHandler handles GET /api/v1/sessions/:id.
func (s *Server) getSessionHandler(c *echo.Context) error {
	state, err := s.sessions.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, &SessionResponse{
		SessionID:    state.SessionID,
		CurrentNode:  state.CurrentNode,
		SessionEnded: state.SessionEnded,
		MessageCount: len(state.Messages),
		DiseaseName:  state.DiseaseName,
		CreatedAt:    state.CreatedAt.Format(time.RFC3339),
	})
}

// endSessionHandler handles POST /api/v1/sessions/:id/end: an explicit
// goodbye turn on behalf of the client.
func (s *Server) endSessionHandler(c *echo.Context) error {
	result, err := s.engine.ProcessMessage(c.Request().Context(),
		c.Param("id"), "goodbye, end session", "", nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// healthHandler handles GET /health: engine liveness plus upstream probes.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	response := &HealthResponse{Status: "healthy", Upstreams: map[string]string{}}
	for name, checker := range s.upstreams {
		if err := checker.Health(reqCtx); err != nil {
			response.Upstreams[name] = err.Error()
			response.Status = "degraded"
		} else {
			response.Upstreams[name] = "healthy"
		}
	}

	code := http.StatusOK
	if response.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, response)
}

func bindChatRequest(c *echo.Context) (*ChatRequest, error) {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	return &req, nil
}
