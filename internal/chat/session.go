package chat

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/alexfirerain/chatwork/internal/chatlog"
)

const (
	greetingText      = "Hello! Register with /reg <name>; a name starts with a letter."
	registerRetryText = "Could not register that name, try another one!"
	passwordRequest   = "Enter the password to control the server"
)

var errQuitUnregistered = errors.New("left before registering")

// Authorizer checks a shutdown password and, on a match, stops the server.
type Authorizer interface {
	StopServer(password []byte) bool
}

// Session serves one accepted connection from its own goroutine.
type Session struct {
	id   string
	conn net.Conn
	in   *FrameReader
	out  *FrameWriter

	dispatcher *Dispatcher
	auth       Authorizer
	journal    *chatlog.Logger
	logger     *slog.Logger

	mode      atomic.Int32
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewSession(conn net.Conn, d *Dispatcher, auth Authorizer, journal *chatlog.Logger, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		id:         id,
		conn:       conn,
		in:         NewFrameReader(conn),
		out:        NewFrameWriter(conn),
		dispatcher: d,
		auth:       auth,
		journal:    journal,
		logger:     logger.With("session", id),
	}
}

func (s *Session) Mode() Mode { return Mode(s.mode.Load()) }

func (s *Session) setMode(m Mode) { s.mode.Store(int32(m)) }

// Run performs the registration handshake and then hands every message to
// the dispatcher until the connection ends. The connection is always closed
// on return.
func (s *Session) Run() {
	defer s.release()

	s.setMode(ModeLocal)
	name, err := s.register()
	if err != nil {
		s.readFailed(err)
		return
	}
	s.setMode(ModeGlobal)
	s.dispatcher.GreetUser(name)

	for {
		m, err := s.receive()
		if err != nil {
			s.readFailed(err)
			return
		}
		s.dispatcher.OperateOn(m, s)
		if s.Closed() {
			return
		}
	}
}

func (s *Session) register() (string, error) {
	if err := s.Send(FromServer(greetingText)); err != nil {
		return "", err
	}
	for {
		m, err := s.receive()
		if err != nil {
			return "", err
		}
		var name string
		switch m.Kind {
		case KindExit:
			return "", errQuitUnregistered
		case KindRegister:
			name = s.dispatcher.clampName(m.Sender)
		}
		if s.dispatcher.AddUser(name, s) {
			return name, nil
		}
		if err := s.Send(FromServer(registerRetryText)); err != nil {
			return "", err
		}
	}
}

// RequestShutdown asks this session's client for the server password and
// passes the reply to the authorizer. The session is back in global mode
// afterwards whatever the outcome.
func (s *Session) RequestShutdown() {
	s.setMode(ModeLocal)
	defer s.mode.CompareAndSwap(int32(ModeLocal), int32(ModeGlobal))

	name, _ := s.dispatcher.NameFor(s)
	prompt := FromServerTo(passwordRequest, name)
	if err := s.Send(prompt); err != nil {
		s.logger.Warn("password request not sent", "error", err)
		return
	}
	s.journal.Outbound(prompt, name)

	reply, err := s.in.ReadMessage()
	if err != nil {
		s.logger.Warn("password reply not received", "error", err)
		return
	}
	s.journal.Inbound(reply.Redacted(), s.label())

	if s.auth == nil || !s.auth.StopServer([]byte(reply.Body)) {
		s.journal.Event("shutdown request from %s refused", name)
		return
	}
	s.journal.Event("shutdown authorised by %s", name)
	s.logger.Info("shutdown authorised", "name", name)
}

// Send writes m to the client. Concurrent callers are serialised.
func (s *Session) Send(m Message) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return s.out.WriteMessage(m)
}

func (s *Session) receive() (Message, error) {
	m, err := s.in.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	s.journal.Inbound(m, s.label())
	return m, nil
}

// Close closes the connection. Only the first call can succeed.
func (s *Session) Close() error {
	err := ErrSessionClosed
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.conn.Close()
	})
	return err
}

func (s *Session) Closed() bool { return s.closed.Load() }

func (s *Session) String() string {
	return s.id + "@" + s.conn.RemoteAddr().String()
}

func (s *Session) label() string {
	if name, ok := s.dispatcher.NameFor(s); ok {
		return name
	}
	return s.String()
}

func (s *Session) readFailed(err error) {
	switch {
	case s.Closed():
		s.logger.Debug("session closed by server")
	case errors.Is(err, io.EOF), errors.Is(err, errQuitUnregistered):
		s.journal.Event("connection %s ended by client", s)
		s.logger.Info("client disconnected", "peer", s.String())
	case IsFramingError(err):
		s.journal.Event("malformed message from %s: %v", s, err)
		s.logger.Warn("framing error", "peer", s.String(), "error", err)
	default:
		s.journal.Event("connection %s failed: %v", s, err)
		s.logger.Warn("read failed", "peer", s.String(), "error", err)
	}
}

func (s *Session) release() {
	_ = s.Close()
	s.setMode(ModeClosed)
	s.dispatcher.Leave(s)
}
