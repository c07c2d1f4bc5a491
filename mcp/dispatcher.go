package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"regexp"
	"sync"
	"time"
)

// Connection is one client attachment delivered by a transport. Incoming
// yields raw line payloads; the dispatcher owns JSON parsing so malformed
// input can be answered with a parse error instead of silently dropped.
type Connection interface {
	// ID identifies the connection for logging.
	ID() string
	// Send writes one outbound message to the client.
	Send(ctx context.Context, msg Message) error
	// Incoming yields inbound units, one JSON text per line, until the
	// connection is closed.
	Incoming() iter.Seq[[]byte]
	// Close releases the connection.
	Close()
}

// ServerTransport delivers client connections to the dispatcher.
type ServerTransport interface {
	Connections() iter.Seq[Connection]
	Shutdown(ctx context.Context) error
}

// ServerOption represents the options for the server.
type ServerOption func(*Server)

// Server is the protocol dispatcher. It accepts connections from a
// transport, owns one Session per connection, and routes each inbound unit
// through a static method table with session-state preconditions enforced
// before any handler runs.
//
// Processing per connection is strictly sequential: one inbound unit is
// handled to completion, including any suspension on tool execution or
// upstream calls, before the next line is read. Response order therefore
// matches request order on a single connection.
type Server struct {
	info         Info
	instructions string
	transport    ServerTransport
	bootstrap    func(*Session) error

	handlers map[string]handlerFunc

	defaultToolTimeout time.Duration
	sendTimeout        time.Duration
	loggingEnabled     bool

	logger   *slog.Logger
	logLevel *slog.LevelVar

	sessionsWaitGroup *sync.WaitGroup
	done              chan struct{}
	shutdownOnce      *sync.Once

	connsMu sync.Mutex
	conns   map[string]Connection
}

type handlerFunc func(ctx context.Context, sess *Session, params json.RawMessage) (any, error)

var defaultSendTimeout = 30 * time.Second

// NewServer creates a protocol dispatcher for the given transport. The
// bootstrap function runs once per connection against the fresh session and
// is where tools, resources and prompts are registered.
func NewServer(info Info, transport ServerTransport, bootstrap func(*Session) error, options ...ServerOption) *Server {
	s := &Server{
		info:               info,
		transport:          transport,
		bootstrap:          bootstrap,
		defaultToolTimeout: DefaultToolTimeout,
		sendTimeout:        defaultSendTimeout,
		loggingEnabled:     true,
		logger:             slog.Default(),
		sessionsWaitGroup:  &sync.WaitGroup{},
		done:               make(chan struct{}),
		shutdownOnce:       &sync.Once{},
		conns:              make(map[string]Connection),
	}
	for _, opt := range options {
		opt(s)
	}

	// The method table is fixed at construction. Adding a method is a code
	// change, never a runtime mutation.
	s.handlers = map[string]handlerFunc{
		MethodInitialize:             s.handleInitialize,
		MethodPing:                   s.handlePing,
		MethodShutdown:               s.handleShutdown,
		MethodToolsList:              s.handleToolsList,
		MethodToolsCall:              s.handleToolsCall,
		MethodResourcesList:          s.handleResourcesList,
		MethodResourcesRead:          s.handleResourcesRead,
		MethodResourcesTemplatesList: s.handleResourcesTemplatesList,
		MethodPromptsList:            s.handlePromptsList,
		MethodPromptsGet:             s.handlePromptsGet,
		MethodLoggingSetLevel:        s.handleLoggingSetLevel,
		methodNotificationsInitialized: func(context.Context, *Session, json.RawMessage) (any, error) {
			return nil, nil
		},
	}

	return s
}

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger.With(slog.String("component", "server"))
	}
}

// WithServerLogLevelVar hands sessions the level var behind the process
// logger so logging/setLevel takes effect at runtime.
func WithServerLogLevelVar(level *slog.LevelVar) ServerOption {
	return func(s *Server) {
		s.logLevel = level
	}
}

// WithServerLoggingCapability controls whether sessions advertise the logging
// capability and accept logging/setLevel. Enabled by default.
func WithServerLoggingCapability(enabled bool) ServerOption {
	return func(s *Server) {
		s.loggingEnabled = enabled
	}
}

// WithServerInstructions sets the instructions string returned from initialize.
func WithServerInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithServerToolTimeout sets the default wall-clock budget for tool bodies.
func WithServerToolTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.defaultToolTimeout = timeout
	}
}

// WithServerSendTimeout bounds outbound writes to the client.
func WithServerSendTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.sendTimeout = timeout
	}
}

// Serve accepts connections until the transport closes. It blocks.
func (s *Server) Serve() {
	for conn := range s.transport.Connections() {
		s.trackConn(conn)
		s.sessionsWaitGroup.Add(1)
		go func() {
			defer s.sessionsWaitGroup.Done()
			defer s.untrackConn(conn)
			s.serveConnection(conn)
		}()
	}
}

// Shutdown terminates all sessions and closes the transport. Live connections
// are closed so their read loops unblock even when a client is idle. It
// returns when every connection goroutine has finished or the context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.done) })

	s.connsMu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.sessionsWaitGroup.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return fmt.Errorf("failed to drain sessions: %w", ctx.Err())
	}

	if err := s.transport.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown transport: %w", err)
	}
	return nil
}

func (s *Server) trackConn(conn Connection) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn.ID()] = conn
}

func (s *Server) untrackConn(conn Connection) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn.ID())
}

func (s *Server) serveConnection(conn Connection) {
	defer conn.Close()

	sess := NewSession(
		WithSessionLogger(s.logger),
		WithDefaultToolTimeout(s.defaultToolTimeout),
		WithLogLevelVar(s.logLevel),
		WithLoggingCapability(s.loggingEnabled),
	)
	defer sess.Close()

	logger := s.logger.With(slog.String("connectionID", conn.ID()))

	if s.bootstrap != nil {
		if err := s.bootstrap(sess); err != nil {
			logger.Error("session bootstrap failed", slog.String("err", err.Error()))
			return
		}
	}

	for line := range conn.Incoming() {
		select {
		case <-s.done:
			return
		default:
		}
		if closed := s.handleLine(sess, conn, logger, line); closed {
			return
		}
	}
}

// handleLine processes one inbound unit to completion. It reports true when
// the client asked the session to shut down.
func (s *Server) handleLine(sess *Session, conn Connection, logger *slog.Logger, line []byte) bool {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		// A response needs an id. Without framing there is no way to answer
		// malformed input unless the id can be salvaged from the raw bytes.
		id := salvageID(line)
		if !id.IsSet() {
			logger.Warn("dropping unparseable message", slog.String("err", err.Error()))
			return false
		}
		s.respondError(conn, logger, id, &ProtocolError{
			Code:    codeParseError,
			Message: "Parse error",
		})
		return false
	}

	if msg.JSONRPC != JSONRPCVersion || msg.Method == "" || (msg.ID.IsSet() && !msg.ID.Valid()) {
		if !msg.ID.IsSet() || !msg.ID.Valid() {
			logger.Warn("dropping invalid request without usable id", slog.String("method", msg.Method))
			return false
		}
		s.respondError(conn, logger, msg.ID, &ProtocolError{
			Code:    codeInvalidRequest,
			Message: "Invalid request",
		})
		return false
	}

	handler, ok := s.handlers[msg.Method]
	if !ok {
		if msg.ID.IsSet() {
			s.respondError(conn, logger, msg.ID, &ProtocolError{
				Code:    codeMethodNotFound,
				Message: fmt.Sprintf("Method not found: %s", msg.Method),
			})
		}
		return false
	}

	// Everything except initialize and ping requires a ready session.
	if msg.Method != MethodInitialize && msg.Method != MethodPing && sess.State() != SessionReady {
		if msg.ID.IsSet() {
			s.respondError(conn, logger, msg.ID, protocolError(ErrNotInitialized))
		}
		return false
	}

	result, err := s.invoke(handler, sess, msg)
	if err != nil {
		logger.Info("request failed",
			slog.String("method", msg.Method),
			slog.String("err", err.Error()))
		if msg.ID.IsSet() {
			s.respondError(conn, logger, msg.ID, protocolError(err))
		}
		return false
	}

	if msg.ID.IsSet() {
		resultBs, err := json.Marshal(result)
		if err != nil {
			s.respondError(conn, logger, msg.ID, &ProtocolError{
				Code:    codeInternalError,
				Message: "Internal error",
			})
			return msg.Method == MethodShutdown
		}
		s.respond(conn, logger, Message{
			JSONRPC: JSONRPCVersion,
			ID:      msg.ID,
			Result:  resultBs,
		})
	}

	return msg.Method == MethodShutdown
}

// invoke runs the handler with panic containment so a faulty handler maps to
// an internal error instead of tearing down the connection.
func (s *Server) invoke(handler handlerFunc, sess *Session, msg Message) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error in %s: %v", msg.Method, r)
		}
	}()
	return handler(context.Background(), sess, msg.Params)
}

func (s *Server) respondError(conn Connection, logger *slog.Logger, id RequestID, pe *ProtocolError) {
	s.respond(conn, logger, Message{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   pe,
	})
}

func (s *Server) respond(conn Connection, logger *slog.Logger, msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()
	if err := conn.Send(ctx, msg); err != nil {
		logger.Error("failed to send response", slog.String("err", err.Error()))
	}
}

func (s *Server) handleInitialize(_ context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParamsError("failed to unmarshal params: %s", err)
		}
	}

	result, err := sess.Initialize(p.ClientInfo, p.Capabilities)
	if err != nil {
		return nil, err
	}

	if p.ProtocolVersion != ProtocolVersion {
		s.logger.Warn("client requested different protocol version",
			slog.String("requested", p.ProtocolVersion),
			slog.String("serving", ProtocolVersion))
	}

	result.ServerInfo = s.info
	result.Instructions = s.instructions
	return result, nil
}

func (s *Server) handlePing(context.Context, *Session, json.RawMessage) (any, error) {
	return struct{}{}, nil
}

func (s *Server) handleShutdown(_ context.Context, sess *Session, _ json.RawMessage) (any, error) {
	sess.Close()
	return struct{}{}, nil
}

func (s *Server) handleToolsList(_ context.Context, sess *Session, _ json.RawMessage) (any, error) {
	tools := sess.Tools()
	infos := make([]ToolInfo, 0, len(tools))
	for _, t := range tools {
		infos = append(infos, t.Info())
	}
	return ListToolsResult{Tools: infos}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParamsError("failed to unmarshal params: %s", err)
	}
	if p.Name == "" {
		return nil, invalidParamsError("tool name is required")
	}
	if p.Arguments == nil {
		p.Arguments = map[string]any{}
	}
	return sess.CallTool(ctx, p.Name, p.Arguments)
}

func (s *Server) handleResourcesList(_ context.Context, sess *Session, _ json.RawMessage) (any, error) {
	resources := sess.Resources()
	infos := make([]ResourceInfo, 0, len(resources))
	for _, r := range resources {
		infos = append(infos, r.Info())
	}
	return ListResourcesResult{Resources: infos}, nil
}

func (s *Server) handleResourcesTemplatesList(_ context.Context, sess *Session, _ json.RawMessage) (any, error) {
	templates := sess.ResourceTemplates()
	infos := make([]ResourceTemplateInfo, 0, len(templates))
	for _, r := range templates {
		infos = append(infos, r.TemplateInfo())
	}
	return ListResourceTemplatesResult{Templates: infos}, nil
}

func (s *Server) handleResourcesRead(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p ReadResourceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParamsError("failed to unmarshal params: %s", err)
	}
	if p.URI == "" {
		return nil, invalidParamsError("resource URI is required")
	}

	r, vars, ok := sess.Resource(p.URI)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, p.URI)
	}

	contents, err := r.Reader(ctx, p.URI, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource %s: %w", p.URI, err)
	}
	return ReadResourceResult{Contents: contents}, nil
}

func (s *Server) handlePromptsList(_ context.Context, sess *Session, _ json.RawMessage) (any, error) {
	prompts := sess.Prompts()
	infos := make([]PromptInfo, 0, len(prompts))
	for _, p := range prompts {
		infos = append(infos, p.Info())
	}
	return ListPromptsResult{Prompts: infos}, nil
}

func (s *Server) handlePromptsGet(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p GetPromptParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParamsError("failed to unmarshal params: %s", err)
	}
	if p.Name == "" {
		return nil, invalidParamsError("prompt name is required")
	}

	prompt, ok := sess.Prompt(p.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPromptNotFound, p.Name)
	}
	return prompt.Render(ctx, p.Arguments)
}

func (s *Server) handleLoggingSetLevel(_ context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p SetLogLevelParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParamsError("failed to unmarshal params: %s", err)
	}
	if err := sess.SetLogLevel(p.Level); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

var salvageIDPattern = regexp.MustCompile(`"id"\s*:\s*("(?:[^"\\]|\\.)*"|-?\d+)`)

// salvageID pulls a request id out of bytes that failed to parse as JSON, so
// a parse error can still be answered when the id portion survived intact.
func salvageID(line []byte) RequestID {
	m := salvageIDPattern.FindSubmatch(line)
	if m == nil {
		return nil
	}
	return RequestID(m[1])
}
