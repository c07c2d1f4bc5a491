package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState tracks where a session is in its lifecycle. States only move
// forward: a created session becomes ready after a successful initialization
// handshake, and a closed session stays closed.
type SessionState int

// SessionState values.
const (
	SessionCreated SessionState = iota
	SessionReady
	SessionClosed
)

// Session owns the per-connection protocol state: the lifecycle state
// machine, the client identity recorded at initialization, and the tool,
// resource and prompt registries.
//
// Registration is legal while the session is created or ready and replaces
// any earlier entry with the same name. Lookups report absence with an
// ok-bool; the dispatcher is responsible for turning absence into the
// protocol-level not-found errors.
type Session struct {
	mu sync.RWMutex

	id    string
	state SessionState

	clientInfo    Info
	clientCaps    ClientCapabilities
	initializedAt time.Time

	tools     map[string]*Tool
	resources map[string]*Resource
	prompts   map[string]*Prompt

	// Registration order, so listings are stable across calls.
	toolOrder     []string
	resourceOrder []string
	promptOrder   []string

	defaultToolTimeout time.Duration
	loggingEnabled     bool
	logLevel           *slog.LevelVar
	logger             *slog.Logger
}

// SessionOption configures a Session at construction.
type SessionOption func(*Session)

// WithSessionLogger sets the logger used for session-scoped events.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithDefaultToolTimeout sets the wall-clock budget applied to tools that
// don't configure their own.
func WithDefaultToolTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.defaultToolTimeout = timeout
	}
}

// WithLogLevelVar hands the session the level var behind the process logger,
// so logging/setLevel adjusts log output at runtime.
func WithLogLevelVar(level *slog.LevelVar) SessionOption {
	return func(s *Session) {
		s.logLevel = level
	}
}

// WithLoggingCapability controls whether the session advertises the logging
// capability and accepts logging/setLevel. Enabled by default.
func WithLoggingCapability(enabled bool) SessionOption {
	return func(s *Session) {
		s.loggingEnabled = enabled
	}
}

// NewSession creates a session in the created state with empty registries.
func NewSession(options ...SessionOption) *Session {
	s := &Session{
		id:                 uuid.New().String(),
		state:              SessionCreated,
		tools:              make(map[string]*Tool),
		resources:          make(map[string]*Resource),
		prompts:            make(map[string]*Prompt),
		defaultToolTimeout: DefaultToolTimeout,
		loggingEnabled:     true,
		logger:             slog.Default(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("sessionID", s.id))
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Initialize performs the server half of the initialization handshake. It is
// legal exactly once, on a session in the created state, and moves the
// session to ready. The returned capability set reflects which registries
// are populated.
func (s *Session) Initialize(clientInfo Info, caps ClientCapabilities) (InitializeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case SessionReady:
		return InitializeResult{}, ErrAlreadyInitialized
	case SessionClosed:
		return InitializeResult{}, ErrSessionClosed
	}

	s.clientInfo = clientInfo
	s.clientCaps = caps
	s.initializedAt = time.Now()
	s.state = SessionReady

	s.logger.Info("session initialized",
		slog.String("client", clientInfo.Name),
		slog.String("clientVersion", clientInfo.Version))

	// ServerInfo is stamped by the dispatcher, which owns the server identity.
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    s.capabilitiesLocked(),
	}, nil
}

// ClientInfo returns the identity the client declared during initialization.
func (s *Session) ClientInfo() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientInfo
}

// Close moves the session to its terminal state. Closing an already closed
// session is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionClosed {
		return
	}
	s.state = SessionClosed
	s.logger.Info("session closed")
}

// SetLogLevel adjusts the minimum severity of emitted log records. It is
// rejected when the session does not carry the logging capability.
func (s *Session) SetLogLevel(level string) error {
	if !s.loggingEnabled {
		return ErrLoggingDisabled
	}
	if s.logLevel == nil {
		return nil
	}
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info", "notice":
		l = slog.LevelInfo
	case "warning":
		l = slog.LevelWarn
	case "error", "critical", "alert", "emergency":
		l = slog.LevelError
	default:
		return invalidParamsError("unknown log level %q", level)
	}
	s.logLevel.Set(l)
	return nil
}

// RegisterTool adds a tool to the registry, replacing any earlier tool with
// the same name. Registration is rejected once the session is closed.
func (s *Session) RegisterTool(t *Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionClosed {
		return fmt.Errorf("cannot register tool %q: %w", t.Name, ErrSessionClosed)
	}
	if _, exists := s.tools[t.Name]; !exists {
		s.toolOrder = append(s.toolOrder, t.Name)
	}
	s.tools[t.Name] = t
	return nil
}

// RegisterResource adds a resource to the registry, replacing any earlier
// resource with the same URI.
func (s *Session) RegisterResource(r *Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionClosed {
		return fmt.Errorf("cannot register resource %q: %w", r.URI, ErrSessionClosed)
	}
	if _, exists := s.resources[r.URI]; !exists {
		s.resourceOrder = append(s.resourceOrder, r.URI)
	}
	s.resources[r.URI] = r
	return nil
}

// RegisterPrompt adds a prompt to the registry, replacing any earlier prompt
// with the same name.
func (s *Session) RegisterPrompt(p *Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionClosed {
		return fmt.Errorf("cannot register prompt %q: %w", p.Name, ErrSessionClosed)
	}
	if _, exists := s.prompts[p.Name]; !exists {
		s.promptOrder = append(s.promptOrder, p.Name)
	}
	s.prompts[p.Name] = p
	return nil
}

// Tool looks up a registered tool by name.
func (s *Session) Tool(name string) (*Tool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[name]
	return t, ok
}

// Tools returns the registered tools in registration order.
func (s *Session) Tools() []*Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Tool, 0, len(s.toolOrder))
	for _, name := range s.toolOrder {
		out = append(out, s.tools[name])
	}
	return out
}

// Resource resolves a URI to a registered resource, checking exact entries
// first and templates second. The returned vars map holds the placeholder
// values when a template matched.
func (s *Session) Resource(uri string) (*Resource, map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.resources[uri]; ok && !r.IsTemplate() {
		return r, nil, true
	}
	for _, key := range s.resourceOrder {
		r := s.resources[key]
		if !r.IsTemplate() {
			continue
		}
		if vars, ok := r.Match(uri); ok {
			return r, vars, true
		}
	}
	return nil, nil, false
}

// Resources returns the registered non-template resources in registration order.
func (s *Session) Resources() []*Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Resource, 0, len(s.resourceOrder))
	for _, uri := range s.resourceOrder {
		if r := s.resources[uri]; !r.IsTemplate() {
			out = append(out, r)
		}
	}
	return out
}

// ResourceTemplates returns the registered template resources in registration order.
func (s *Session) ResourceTemplates() []*Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Resource, 0, len(s.resourceOrder))
	for _, uri := range s.resourceOrder {
		if r := s.resources[uri]; r.IsTemplate() {
			out = append(out, r)
		}
	}
	return out
}

// Prompt looks up a registered prompt by name.
func (s *Session) Prompt(name string) (*Prompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[name]
	return p, ok
}

// Prompts returns the registered prompts in registration order.
func (s *Session) Prompts() []*Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Prompt, 0, len(s.promptOrder))
	for _, name := range s.promptOrder {
		out = append(out, s.prompts[name])
	}
	return out
}

// CallTool executes a registered tool. Absence, a disabled flag, and schema
// violations are reported as errors before the body runs; failures inside
// the body, including its wall-clock timeout, come back as an error-flagged
// result instead.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (CallToolResult, error) {
	t, ok := s.Tool(name)
	if !ok {
		return CallToolResult{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if !t.Enabled {
		return CallToolResult{}, fmt.Errorf("%w: %s", ErrToolDisabled, name)
	}
	if err := t.InputSchema.ValidateArgs(args); err != nil {
		return CallToolResult{}, err
	}

	start := time.Now()
	result := t.execute(ctx, args, s.defaultToolTimeout)

	s.logger.Debug("tool executed",
		slog.String("tool", name),
		slog.Bool("isError", result.IsError),
		slog.Duration("elapsed", time.Since(start)))

	return result, nil
}

// Capabilities reports the capability set derived from the populated
// registries, as advertised during initialization.
func (s *Session) Capabilities() ServerCapabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capabilitiesLocked()
}

func (s *Session) capabilitiesLocked() ServerCapabilities {
	var caps ServerCapabilities
	if s.loggingEnabled {
		caps.Logging = &LoggingCapability{}
	}
	if len(s.tools) > 0 {
		caps.Tools = &ToolsCapability{ListChanged: true}
	}
	if len(s.resources) > 0 {
		caps.Resources = &ResourcesCapability{Subscribe: false, ListChanged: true}
	}
	if len(s.prompts) > 0 {
		caps.Prompts = &PromptsCapability{ListChanged: true}
	}
	return caps
}

func (st SessionState) String() string {
	switch st {
	case SessionCreated:
		return "created"
	case SessionReady:
		return "ready"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}
