// Package api exposes spec §6's "Agent execution API (exposed to callers)"
// over HTTP: create_agent, run, stream_events, cancel. Grounded on the
// teacher's cmd/hector A2A server (pkg/server) for the HTTP-surface-over-
// core-components shape, rewired from Hector's single-protocol A2A
// JSON-RPC surface onto go-chi/chi — the router the rest of the retrieved
// pack (other_examples) reaches for — since agentcore's wire format is this
// core's own Task/Event envelope rather than A2A's.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fractalminds/agentcore/pkg/agent"
	"github.com/fractalminds/agentcore/pkg/bus"
	"github.com/fractalminds/agentcore/pkg/session"
	"github.com/fractalminds/agentcore/pkg/wire"
)

// Server is the chi-routed HTTP front-end over a fixed set of pre-built
// agents (constructed by cmd/agentcore from config at startup — real LLM
// provider wiring is a consumed external interface, spec §6, so api.Server
// never constructs an Agent itself).
type Server struct {
	mux  *chi.Mux
	bus  *bus.Bus
	ctrl map[string]*session.Controller
	log  *slog.Logger
}

// New builds a Server routing requests to one Controller per agent_id.
func New(agents map[string]*agent.Agent, b *bus.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctrl := make(map[string]*session.Controller, len(agents))
	for id, ag := range agents {
		ctrl[id] = session.NewController(ag)
	}

	s := &Server{mux: chi.NewRouter(), bus: b, ctrl: ctrl, log: logger}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.mux.Use(middleware.RequestID)
	s.mux.Use(middleware.Recoverer)
	s.mux.Use(s.logRequests)

	s.mux.Route("/v1/agents/{agent}", func(r chi.Router) {
		r.Post("/sessions", s.createAgent)      // create_agent(config) -> agent/session
		r.Post("/sessions/{session}/tasks", s.runTask) // run(task) -> result
		r.Get("/sessions/{session}/events", s.streamEvents) // stream_events(filter)
		r.Post("/sessions/{session}/tasks/{task}/cancel", s.cancelTask) // cancel(task_id)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("api: request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) controller(agentID string) (*session.Controller, bool) {
	c, ok := s.ctrl[agentID]
	return c, ok
}

// createAgentRequest is the body for POST /v1/agents/{agent}/sessions
// (spec §6 create_agent(config) -> agent; agentcore interprets "config"
// here as which of the boot-time agent templates to open a new session
// against, since the template's LLM/tool wiring is fixed at process start).
type createAgentRequest struct {
	SessionID string `json:"session_id"`
	AppName   string `json:"app_name"`
	UserID    string `json:"user_id"`
}

func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent")
	ctrl, ok := s.controller(agentID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown agent %q", agentID))
		return
	}

	var req createAgentRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.SessionID == "" {
		req.SessionID = fmt.Sprintf("%s-%d", agentID, time.Now().UnixNano())
	}

	sess := ctrl.Open(req.SessionID, req.AppName, req.UserID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"agent_id":   agentID,
		"session_id": sess.ID(),
		"status":     sess.Status(),
	})
}

type runTaskRequest struct {
	Content string `json:"content"`
}

// runTask implements run(task) -> result synchronously: it submits the
// content to the session's agent and waits for the task to reach a
// terminal status, bounded by the request's context (spec §6 "run(task) ->
// result").
func (s *Server) runTask(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent")
	ctrl, ok := s.controller(agentID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown agent %q", agentID))
		return
	}
	sessionID := chi.URLParam(r, "session")
	sess := ctrl.Open(sessionID, "", "")

	var req runTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}

	task, err := sess.AddTask(r.Context(), req.Content)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	if err := waitTerminal(r.Context(), task); err != nil {
		writeError(w, http.StatusGatewayTimeout, err)
		return
	}

	writeJSON(w, http.StatusOK, taskView(task))
}

func waitTerminal(ctx context.Context, task *wire.Task) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if task.GetStatus().IsTerminal() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func taskView(t *wire.Task) map[string]any {
	return map[string]any{
		"task_id": t.TaskID,
		"status":  t.GetStatus(),
		"content": t.Content(),
	}
}

// cancelTask implements cancel(task_id) (spec §6).
func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent")
	ctrl, ok := s.controller(agentID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown agent %q", agentID))
		return
	}
	sess := ctrl.Open(chi.URLParam(r, "session"), "", "")
	if err := sess.Cancel(chi.URLParam(r, "task")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// streamEvents implements stream_events(filter) as Server-Sent Events,
// following the teacher's streaming-response convention (cmd/hector's
// chunked A2A SSE endpoints) generalized to this core's own Event envelope.
// Query params target_node/event_type/action map onto bus.Selector.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent")
	if _, ok := s.controller(agentID); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown agent %q", agentID))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	selector := bus.Selector{
		TargetNode: r.URL.Query().Get("target_node"),
		EventType:  wire.EventType(r.URL.Query().Get("event_type")),
		Action:     r.URL.Query().Get("action"),
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := make(chan wire.Event, 64)
	unsubscribe := s.bus.Subscribe(selector, func(ctx context.Context, e wire.Event) error {
		select {
		case events <- e:
		default:
		}
		return nil
	})
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			payload, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.EventID, e.EventType, payload)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
