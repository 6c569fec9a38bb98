// Package session implements C11, Session & Controller: the owner of one
// conversation's task flow, plus a Controller coordinating several sessions
// bound to the same agent.
//
// Grounded on the teacher's pkg/session (memorySession/inMemoryService):
// the same session-owns-state-and-event-history shape, generalized from the
// teacher's single ACTIVE-only session to the spec's three-state
// ACTIVE/PAUSED/ENDED lifecycle, and from "State" as a flat prefixed map to
// this core's typed StateEntry records (spec §4.11). The teacher's app:/user:
// /temp: key prefixes are kept verbatim as the three StateScope values.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fractalminds/agentcore/pkg/agent"
	"github.com/fractalminds/agentcore/pkg/llmprovider"
	"github.com/fractalminds/agentcore/pkg/token"
	"github.com/fractalminds/agentcore/pkg/wire"
)

// Status is one of the three lifecycle states (spec §4.11 "ACTIVE -> PAUSED
// -> ENDED (monotonic)").
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusEnded  Status = "ended"
)

var allowedTransitions = map[Status]map[Status]bool{
	StatusActive: {StatusPaused: true, StatusEnded: true},
	StatusPaused: {StatusActive: true, StatusEnded: true},
	StatusEnded:  {},
}

// StateScope mirrors the teacher's app:/user:/temp: session-state key
// prefixes (spec SPEC_FULL.md §C "session state key prefixes").
type StateScope string

const (
	StateApp  StateScope = "app"
	StateUser StateScope = "user"
	StateTemp StateScope = "temp"
)

// InvalidTransitionError is returned by Pause/Resume/End when the requested
// move isn't in allowedTransitions.
type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("session: cannot transition %s -> %s", e.From, e.To)
}

// ErrNotActive is returned by AddTask when the session isn't ACTIVE.
var ErrNotActive = errors.New("session: not active")

// ErrTaskNotFound is returned by Cancel for an unknown or already-finished
// task id.
var ErrTaskNotFound = errors.New("session: task not found")

// Session owns a conversation's task flow and state, bound to a single
// agent (spec §4.11).
type Session struct {
	id      string
	appName string
	userID  string
	agent   *agent.Agent

	mu      sync.Mutex
	status  Status
	tasks   []*wire.Task
	cancels map[string]context.CancelFunc
	state   map[StateScope]map[string]any

	lastUpdate time.Time
}

// New starts an ACTIVE session bound to ag.
func New(id, appName, userID string, ag *agent.Agent) *Session {
	return &Session{
		id: id, appName: appName, userID: userID, agent: ag,
		status:     StatusActive,
		cancels:    make(map[string]context.CancelFunc),
		state:      map[StateScope]map[string]any{StateApp: {}, StateUser: {}, StateTemp: {}},
		lastUpdate: time.Now().UTC(),
	}
}

func (s *Session) ID() string      { return s.id }
func (s *Session) AppName() string { return s.appName }
func (s *Session) UserID() string  { return s.userID }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetState writes a key under scope, as the teacher's memoryState.Set does
// per app:/user:/temp: prefix.
func (s *Session) SetState(scope StateScope, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[scope][key] = value
}

// GetState reads a key under scope.
func (s *Session) GetState(scope StateScope, key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state[scope][key]
	return v, ok
}

// ClearTemp discards all temp-scoped state, following the teacher's
// ClearTempKeys convention of running this after each invocation.
func (s *Session) ClearTemp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[StateTemp] = map[string]any{}
}

// AddTask submits content as a new task run by this session's agent,
// tracking it for Cancel (spec §4.11 "add_task").
func (s *Session) AddTask(ctx context.Context, content string) (*wire.Task, error) {
	s.mu.Lock()
	if s.status != StatusActive {
		s.mu.Unlock()
		return nil, ErrNotActive
	}
	s.mu.Unlock()

	task := wire.New(s.agent.ID(), s.agent.ID(), wire.ActionExecute, map[string]any{"content": content})
	task.SessionID = s.id

	taskCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.cancels[task.TaskID] = cancel
	s.lastUpdate = time.Now().UTC()
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.cancels, task.TaskID)
			s.lastUpdate = time.Now().UTC()
			s.mu.Unlock()
			s.ClearTemp()
		}()
		_ = s.agent.RunTask(taskCtx, task)
	}()

	return task, nil
}

// Cancel stops a still-running task started by AddTask (spec §4.11
// "cancel").
func (s *Session) Cancel(taskID string) error {
	s.mu.Lock()
	cancel, ok := s.cancels[taskID]
	s.mu.Unlock()
	if !ok {
		return ErrTaskNotFound
	}
	cancel()
	return nil
}

// Pause moves ACTIVE -> PAUSED; no new tasks may be added until Resume.
func (s *Session) Pause() error { return s.transition(StatusPaused) }

// Resume moves PAUSED -> ACTIVE.
func (s *Session) Resume() error { return s.transition(StatusActive) }

// End moves the session to ENDED, its terminal state (spec §4.11 "end").
// Every still-running task started by AddTask is cancelled.
func (s *Session) End() error {
	if err := s.transition(StatusEnded); err != nil {
		return err
	}
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.cancels))
	for _, c := range s.cancels {
		cancels = append(cancels, c)
	}
	s.mu.Unlock()
	for _, c := range cancels {
		c()
	}
	return nil
}

func (s *Session) transition(to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !allowedTransitions[s.status][to] {
		return &InvalidTransitionError{From: s.status, To: to}
	}
	s.status = to
	s.lastUpdate = time.Now().UTC()
	return nil
}

// Tasks returns a snapshot of every task this session has submitted.
func (s *Session) Tasks() []*wire.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*wire.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// LastUpdate reports when the session's status or task set last changed.
func (s *Session) LastUpdate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdate
}

// BuildContext runs this session's agent's Context Orchestrator standalone
// for query (spec §4.11 "plus a Context Orchestrator bound to the session's
// current agent").
func (s *Session) BuildContext(ctx context.Context, query string) ([]llmprovider.Message, error) {
	return s.agent.BuildMessages(ctx, s.id, s.id, "", query)
}

// Controller manages multiple sessions bound to the same agent (spec
// §4.11).
type Controller struct {
	agent *agent.Agent

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewController manages sessions for a single agent.
func NewController(ag *agent.Agent) *Controller {
	return &Controller{agent: ag, sessions: make(map[string]*Session)}
}

// Open starts (or returns, if already open) the named session.
func (c *Controller) Open(id, appName, userID string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[id]; ok {
		return s
	}
	s := New(id, appName, userID, c.agent)
	c.sessions[id] = s
	return s
}

// Sessions returns every session the controller currently tracks.
func (c *Controller) Sessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}

// AggregateContext merges the named sessions' context assemblies into one
// message list, re-budgeting each session's share of maxTokens in
// proportion to its own assembly size (spec §4.11
// "aggregate_context([sessions]) -> [Message]: merges per-session
// assemblies, re-budgeting proportionally"). maxTokens <= 0 means no
// re-budgeting: every session's assembly is concatenated in full.
func (c *Controller) AggregateContext(ctx context.Context, sessionIDs []string, query string, maxTokens int) ([]llmprovider.Message, error) {
	type assembly struct {
		msgs   []llmprovider.Message
		tokens int
	}

	c.mu.Lock()
	sessions := make([]*Session, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		if s, ok := c.sessions[id]; ok {
			sessions = append(sessions, s)
		}
	}
	c.mu.Unlock()

	model := c.agent.Model()
	counter := c.agent.Tokens()

	assemblies := make([]assembly, 0, len(sessions))
	total := 0
	for _, s := range sessions {
		msgs, err := s.BuildContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("session: aggregating context for %s: %w", s.ID(), err)
		}
		n, err := counter.CountMessages(model, toTokenMessages(msgs))
		if err != nil {
			return nil, err
		}
		assemblies = append(assemblies, assembly{msgs: msgs, tokens: n})
		total += n
	}

	if maxTokens <= 0 || total <= maxTokens {
		var merged []llmprovider.Message
		for _, a := range assemblies {
			merged = append(merged, a.msgs...)
		}
		return merged, nil
	}

	var merged []llmprovider.Message
	for _, a := range assemblies {
		share := maxTokens * a.tokens / total
		fitted, err := counter.FitWithinBudget(model, toTokenMessages(a.msgs), share)
		if err != nil {
			return nil, err
		}
		merged = append(merged, fromTokenMessages(fitted)...)
	}
	return merged, nil
}

// DistributeTask runs task against every named session whose agent accepts
// it, following requiredTag as a coarse capability filter matched against
// each session's state (spec §4.11 "distribute_task(task, [sessions]):
// broadcasts or filters a task across sessions"). An empty requiredTag
// broadcasts to every session.
func (c *Controller) DistributeTask(ctx context.Context, content, requiredTag string, sessionIDs []string) (map[string]*wire.Task, error) {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		if s, ok := c.sessions[id]; ok {
			sessions = append(sessions, s)
		}
	}
	c.mu.Unlock()

	out := make(map[string]*wire.Task, len(sessions))
	for _, s := range sessions {
		if requiredTag != "" {
			if v, ok := s.GetState(StateApp, "tags"); ok {
				if !hasTag(v, requiredTag) {
					continue
				}
			} else {
				continue
			}
		}
		task, err := s.AddTask(ctx, content)
		if err != nil {
			continue
		}
		out[s.ID()] = task
	}
	return out, nil
}

func hasTag(v any, tag string) bool {
	switch tags := v.(type) {
	case []string:
		for _, t := range tags {
			if t == tag {
				return true
			}
		}
	case string:
		for _, t := range strings.Split(tags, ",") {
			if strings.TrimSpace(t) == tag {
				return true
			}
		}
	}
	return false
}

func toTokenMessages(msgs []llmprovider.Message) []token.Message {
	out := make([]token.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, token.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func fromTokenMessages(msgs []token.Message) []llmprovider.Message {
	out := make([]llmprovider.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llmprovider.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
