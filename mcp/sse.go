package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

// SSEServer is the HTTP transport: each client holds a Server-Sent Events
// stream open for responses and posts its requests to a companion endpoint.
// The two http.Handlers returned by HandleSSE and HandleMessage mount on any
// mux; every SSE stream carries exactly one protocol session.
//
// Construct with NewSSEServer and tear down with Shutdown.
type SSEServer struct {
	messageURL string
	logger     *slog.Logger

	connections      chan sseConn
	removedConns     chan string
	receivedMessages chan sseConnMessage

	done   chan struct{}
	closed chan struct{}
}

type sseConn struct {
	id           string
	sess         *sse.Session
	sendMsgs     chan sseConnSendMsg
	receivedMsgs chan []byte
	logger       *slog.Logger

	done           chan struct{}
	sendClosed     chan struct{}
	receivedClosed chan struct{}

	// closeOnce guards done; receivedOnce guards receivedClosed, which is
	// closed by the Incoming iterator when it runs and by Close when it
	// never did.
	closeOnce    *sync.Once
	receivedOnce *sync.Once
}

type sseConnMessage struct {
	connID string
	body   []byte
}

type sseConnSendMsg struct {
	msg  *sse.Message
	errs chan<- error
}

// NewSSEServer creates an SSE transport whose clients post their messages to
// messageURL. It accepts streams as soon as its handlers are mounted.
func NewSSEServer(messageURL string) SSEServer {
	return SSEServer{
		messageURL:       messageURL,
		logger:           slog.Default(),
		connections:      make(chan sseConn, 5),
		removedConns:     make(chan string),
		receivedMessages: make(chan sseConnMessage),
		done:             make(chan struct{}),
		closed:           make(chan struct{}),
	}
}

// Connections returns an iterator over active client connections. The
// iterator yields a new Connection as each client attaches over SSE.
func (s SSEServer) Connections() iter.Seq[Connection] {
	return func(yield func(Connection) bool) {
		defer close(s.closed)

		// Posted messages carry only a connection id, so route them through
		// this map.
		connsMap := make(map[string]sseConn)

		for {
			select {
			case <-s.done:
				return
			case conn := <-s.connections:
				go conn.processSendMessages()

				connsMap[conn.id] = conn

				if !yield(conn) {
					return
				}
			case connID := <-s.removedConns:
				delete(connsMap, connID)
			case msg := <-s.receivedMessages:
				conn, ok := connsMap[msg.connID]
				if !ok {
					// Posted after the stream went away.
					continue
				}

				select {
				case <-s.done:
					return
				case conn.receivedMsgs <- msg.body:
				}
			}
		}
	}
}

// Shutdown gracefully shuts down the transport by terminating all active
// client connections. It blocks until shutdown is complete.
func (s SSEServer) Shutdown(ctx context.Context) error {
	close(s.done)

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to close SSE server: %w", ctx.Err())
	case <-s.closed:
	}
	return nil
}

// HandleSSE returns an http.Handler for establishing SSE connections over GET
// requests. The handler upgrades the HTTP connection, assigns a unique
// connection ID, and tells the client its message endpoint via an "endpoint"
// event. The connection remains open until either side closes it.
func (s SSEServer) HandleSSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sse.Upgrade(w, r)
		if err != nil {
			nErr := fmt.Errorf("failed to upgrade session: %w", err)
			s.logger.Error("failed to upgrade session", "err", nErr)
			http.Error(w, nErr.Error(), http.StatusInternalServerError)
			return
		}

		connID := uuid.New().String()

		// Form the URL the client uses to post messages to this connection.
		url := fmt.Sprintf("%s?sessionID=%s", s.messageURL, connID)

		msg := sse.Message{
			Type: sse.Type("endpoint"),
		}
		msg.AppendData(url)
		if err := sess.Send(&msg); err != nil {
			nErr := fmt.Errorf("failed to write SSE URL: %w", err)
			s.logger.Error("failed to write SSE URL", "err", nErr)
			http.Error(w, nErr.Error(), http.StatusInternalServerError)
			return
		}

		if err := sess.Flush(); err != nil {
			nErr := fmt.Errorf("failed to flush SSE: %w", err)
			s.logger.Error("failed to flush SSE", "err", nErr)
			http.Error(w, nErr.Error(), http.StatusInternalServerError)
			return
		}

		conn := sseConn{
			id:             connID,
			sess:           sess,
			logger:         s.logger,
			sendMsgs:       make(chan sseConnSendMsg, 5),
			receivedMsgs:   make(chan []byte, 5),
			done:           make(chan struct{}),
			sendClosed:     make(chan struct{}),
			receivedClosed: make(chan struct{}),
			closeOnce:      &sync.Once{},
			receivedOnce:   &sync.Once{},
		}

		s.connections <- conn

		// Returning would end the event stream, so hold the handler here
		// until the connection is torn down.
		<-conn.sendClosed
		<-conn.receivedClosed

		select {
		case s.removedConns <- connID:
		case <-s.done:
		}
	})
}

// HandleMessage returns an http.Handler for processing client messages sent
// via POST requests. The handler expects a sessionID query parameter and
// routes the raw body to the corresponding connection's Incoming stream; the
// dispatcher is the one that parses it.
func (s SSEServer) HandleMessage() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connID := r.URL.Query().Get("sessionID")
		if connID == "" {
			nErr := fmt.Errorf("missing sessionID query parameter")
			s.logger.Warn("missing sessionID query parameter", slog.String("err", nErr.Error()))
			http.Error(w, nErr.Error(), http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			nErr := fmt.Errorf("failed to read message body: %w", err)
			s.logger.Warn("failed to read message body", slog.String("err", nErr.Error()))
			http.Error(w, nErr.Error(), http.StatusBadRequest)
			return
		}

		select {
		case <-s.done:
			return
		case s.receivedMessages <- sseConnMessage{connID: connID, body: body}:
		}
	})
}

func (s sseConn) ID() string { return s.id }

func (s sseConn) Send(_ context.Context, msg Message) error {
	msgBs, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	sseMsg := &sse.Message{
		Type: sse.Type("message"),
	}
	sseMsg.AppendData(string(msgBs))

	errs := make(chan error)

	// All writes go through the queue goroutine; sse.Session is not safe for
	// concurrent senders.
	select {
	case s.sendMsgs <- sseConnSendMsg{sseMsg, errs}:
	case <-s.done:
		s.logger.Warn("connection is closed while sending message", slog.String("message", string(msgBs)))
		return fmt.Errorf("connection is closed")
	}

	select {
	case err := <-errs:
		return err
	case <-s.done:
		s.logger.Warn("connection is closed while sending message", slog.String("message", string(msgBs)))
		return fmt.Errorf("connection is closed")
	}
}

func (s sseConn) Incoming() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		defer s.receivedOnce.Do(func() { close(s.receivedClosed) })

		for {
			select {
			case body := <-s.receivedMsgs:
				if !yield(body) {
					return
				}
			case <-s.done:
				return
			}
		}
	}
}

func (s sseConn) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.receivedOnce.Do(func() { close(s.receivedClosed) })
	<-s.sendClosed
}

func (s sseConn) processSendMessages() {
	defer close(s.sendClosed)

	for {
		select {
		case sm := <-s.sendMsgs:
			if err := s.sess.Send(sm.msg); err != nil {
				s.logger.Warn("failed to send message", slog.String("err", err.Error()))

				select {
				case sm.errs <- err:
				default:
				}
				continue
			}
			if err := s.sess.Flush(); err != nil {
				s.logger.Warn("failed to flush message", slog.String("err", err.Error()))

				select {
				case sm.errs <- err:
				default:
				}
				continue
			}

			select {
			case sm.errs <- nil:
			default:
			}
		case <-s.done:
			return
		}
	}
}
