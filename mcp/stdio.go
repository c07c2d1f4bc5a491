package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
)

// StdIO is the newline-delimited JSON transport over an io.Reader/io.Writer
// pair, stdin/stdout in production. It carries a single persistent connection
// that lives until the reader hits EOF or the connection is closed; all
// writes are serialized through an internal queue.
//
// Construct with NewStdIO.
type StdIO struct {
	conn   stdIOConn
	closed chan struct{}
}

type stdIOConn struct {
	reader io.Reader
	writer io.Writer
	logger *slog.Logger

	writeMessages chan stdIOMessage
	done          chan struct{}
	readClosed    chan struct{}
	writeClosed   chan struct{}

	// closeOnce guards done; readOnce guards readClosed, which is closed by
	// the Incoming iterator when it runs and by Close when it never did.
	closeOnce *sync.Once
	readOnce  *sync.Once
}

type stdIOMessage struct {
	msg  []byte
	errs chan error
}

// NewStdIO creates a new StdIO transport over the provided reader and writer.
func NewStdIO(reader io.Reader, writer io.Writer) StdIO {
	return StdIO{
		conn: stdIOConn{
			reader:        reader,
			writer:        writer,
			logger:        slog.Default(),
			writeMessages: make(chan stdIOMessage),
			done:          make(chan struct{}),
			readClosed:    make(chan struct{}),
			writeClosed:   make(chan struct{}),
			closeOnce:     &sync.Once{},
			readOnce:      &sync.Once{},
		},
		closed: make(chan struct{}),
	}
}

// Connections implements the ServerTransport interface by yielding a single
// persistent connection that remains active for the lifetime of the StdIO
// instance.
func (s StdIO) Connections() iter.Seq[Connection] {
	return func(yield func(Connection) bool) {
		defer close(s.closed)

		go s.conn.processWriteMessages()

		// There is exactly one connection on a stdio pair. Yield it, then
		// keep the transport alive until it ends.
		yield(s.conn)
		<-s.conn.done
	}
}

// Shutdown implements the ServerTransport interface by waiting for the
// connection loop to finish.
func (s StdIO) Shutdown(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
	}
	return nil
}

func (s stdIOConn) ID() string {
	return "stdio"
}

func (s stdIOConn) Send(ctx context.Context, msg Message) error {
	msgBs, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	// The frame delimiter.
	msgBs = append(msgBs, '\n')

	ioMsg := stdIOMessage{
		msg:  msgBs,
		errs: make(chan error, 1),
	}

	// Queue the message so concurrent senders never interleave writes.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		s.logger.Warn("connection is closed while feeding write queue", slog.String("message", string(msgBs)))
		return nil
	case s.writeMessages <- ioMsg:
	}

	select {
	case err := <-ioMsg.errs:
		if err != nil {
			s.logger.Error("failed to write message", slog.String("err", err.Error()))
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		s.logger.Warn("connection is closed while waiting for write result", slog.String("message", string(msgBs)))
		return nil
	}
}

// Incoming yields each inbound line without interpreting it. Parsing belongs
// to the dispatcher, which can answer malformed input with a parse error.
func (s stdIOConn) Incoming() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		defer s.readOnce.Do(func() { close(s.readClosed) })

		// bufio.Scanner would cap the line length; ReadString does not.
		reader := bufio.NewReader(s.reader)
		for {
			type lineWithErr struct {
				line string
				err  error
			}

			lines := make(chan lineWithErr, 1)

			// Read in a goroutine so a slow reader doesn't keep us from
			// noticing the done channel.
			go func() {
				line, err := reader.ReadString('\n')
				if err != nil {
					lines <- lineWithErr{err: err}
					return
				}
				lines <- lineWithErr{line: strings.TrimSuffix(line, "\n")}
			}()

			var lwe lineWithErr
			select {
			case <-s.done:
				return
			case lwe = <-lines:
			}

			if lwe.err != nil {
				if !errors.Is(lwe.err, io.EOF) {
					s.logger.Error("failed to read message", "err", lwe.err)
				}
				return
			}

			if strings.TrimSpace(lwe.line) == "" {
				continue
			}

			if !yield([]byte(lwe.line)) {
				return
			}
		}
	}
}

func (s stdIOConn) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.readOnce.Do(func() { close(s.readClosed) })
	<-s.writeClosed
}

func (s stdIOConn) processWriteMessages() {
	defer close(s.writeClosed)

	for {
		// Drain the write queue until the connection is closed.
		var msg stdIOMessage
		select {
		case <-s.done:
			return
		case msg = <-s.writeMessages:
		}

		_, err := s.writer.Write(msg.msg)

		msg.errs <- err
	}
}
