package chat

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/alexfirerain/chatwork/internal/chatlog"
	"github.com/alexfirerain/chatwork/internal/config"
)

const welcomeTemplate = `Welcome to the chat room at %s!
Write your messages to the conversation and read what the others write.
Commands:
    /reg <name>      = change your name
    /users           = list connected participants
    @<name> <text>   = private message to a participant
    /exit            = leave the room`

type Server struct {
	addr     string
	password []byte
	logger   *slog.Logger
	journal  *chatlog.Logger

	dispatcher *Dispatcher

	mu       sync.Mutex
	listener net.Listener
	sessions map[*Session]struct{}
	wg       sync.WaitGroup
	stopping atomic.Bool
	done     chan struct{}
}

func NewServer(cfg config.Config, journal *chatlog.Logger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	addr := cfg.Addr()
	d := NewDispatcher(fmt.Sprintf(welcomeTemplate, addr), journal, logger)
	d.nickLimit = cfg.NickLimit
	return &Server{
		addr:       addr,
		password:   []byte(cfg.Password),
		logger:     logger,
		journal:    journal,
		dispatcher: d,
		sessions:   make(map[*Session]struct{}),
		done:       make(chan struct{}),
	}
}

func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Start binds the listener and accepts connections in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	// Port 0 only becomes concrete once bound.
	s.dispatcher.welcome = fmt.Sprintf(welcomeTemplate, ln.Addr())

	go s.acceptLoop(ln)

	s.journal.Event("server started on %s", ln.Addr())
	s.logger.Info("server started", "addr", ln.Addr().String())
	return nil
}

// Listen starts the server and blocks until it has shut down.
func (s *Server) Listen() error {
	if err := s.Start(); err != nil {
		return err
	}
	<-s.done
	return nil
}

// Addr is the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Done is closed once the accept loop has ended and every session is gone.
func (s *Server) Done() <-chan struct{} { return s.done }

// StopServer begins shutdown if password matches the configured one. It does
// not wait, so it is safe to call from a session goroutine.
func (s *Server) StopServer(password []byte) bool {
	if subtle.ConstantTimeCompare(password, s.password) != 1 {
		return false
	}
	s.trigger()
	return true
}

// Stop shuts the server down and waits for it to finish.
func (s *Server) Stop() {
	s.logger.Info("shutting down")
	s.trigger()
	if s.Addr() != nil {
		<-s.done
	}
}

func (s *Server) trigger() {
	if !s.stopping.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer close(s.done)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopping.Load() || errors.Is(err, net.ErrClosed) {
				break
			}
			s.journal.Event("accept failed: %v", err)
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.logger.Info("client connected", "addr", conn.RemoteAddr().String())

		sess := NewSession(conn, s.dispatcher, s, s.journal, s.logger)
		s.track(sess)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(sess)
			sess.Run()
		}()
	}

	s.shutdown()
}

func (s *Server) shutdown() {
	s.dispatcher.CloseSession()

	// Sessions still in the registration handshake are not in the registry.
	s.mu.Lock()
	for sess := range s.sessions {
		_ = sess.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.journal.Event("server stopped")
	s.logger.Info("shutdown complete")
}

func (s *Server) track(sess *Session) {
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	n := len(s.sessions)
	s.mu.Unlock()
	ConnectedClients.Set(float64(n))
}

func (s *Server) untrack(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	n := len(s.sessions)
	s.mu.Unlock()
	ConnectedClients.Set(float64(n))
}
