package chat

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	mu  sync.Mutex
	got []string
}

func (a *fakeAuth) StopServer(password []byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.got = append(a.got, string(password))
	return false
}

func (a *fakeAuth) attempts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.got...)
}

type pipeClient struct {
	conn net.Conn
	r    *FrameReader
	w    *FrameWriter
}

func startPipeSession(t *testing.T, d *Dispatcher, auth Authorizer) (*Session, *pipeClient, <-chan struct{}) {
	t.Helper()
	serverEnd, clientEnd := net.Pipe()
	s := NewSession(serverEnd, d, auth, nil, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run()
	}()
	t.Cleanup(func() {
		_ = clientEnd.Close()
		<-done
	})
	return s, &pipeClient{conn: clientEnd, r: NewFrameReader(clientEnd), w: NewFrameWriter(clientEnd)}, done
}

func (c *pipeClient) read(t *testing.T) Message {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	m, err := c.r.ReadMessage()
	require.NoError(t, err)
	return m
}

func (c *pipeClient) send(t *testing.T, m Message) {
	t.Helper()
	require.NoError(t, c.w.WriteMessage(m))
}

func TestSession_RegistrationRetriesUntilAccepted(t *testing.T) {
	d := NewDispatcher("welcome!", nil, nil)
	s, c, _ := startPipeSession(t, d, nil)

	require.Equal(t, greetingText, c.read(t).Body)
	require.Equal(t, ModeLocal, s.Mode())

	c.send(t, RegisterRequest("9lives"))
	require.Equal(t, registerRetryText, c.read(t).Body)

	c.send(t, Text("", "just talking"))
	require.Equal(t, registerRetryText, c.read(t).Body)

	c.send(t, RegisterRequest("Zed"))
	welcome := c.read(t)
	require.Equal(t, FromServerTo("welcome!", "Zed"), welcome)
	require.Eventually(t, func() bool { return s.Mode() == ModeGlobal }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"Zed"}, d.Users())
}

func TestSession_ShutdownExchangeReturnsToGlobal(t *testing.T) {
	d := NewDispatcher("welcome!", nil, nil)
	auth := &fakeAuth{}
	s, c, _ := startPipeSession(t, d, auth)

	c.read(t)
	c.send(t, RegisterRequest("Zed"))
	c.read(t)

	c.send(t, ShutdownRequest("Zed"))
	prompt := c.read(t)
	require.Equal(t, FromServerTo(passwordRequest, "Zed"), prompt)
	require.Equal(t, ModeLocal, s.Mode())

	c.send(t, Text("Zed", "/not-a-command"))
	require.Eventually(t, func() bool { return s.Mode() == ModeGlobal }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"/not-a-command"}, auth.attempts())

	c.send(t, ListRequest("Zed"))
	require.Equal(t, "Participants connected: 1:\nZed", c.read(t).Body)
}

func TestSession_ExitClosesAndDeregisters(t *testing.T) {
	d := NewDispatcher("welcome!", nil, nil)
	s, c, done := startPipeSession(t, d, nil)

	c.read(t)
	c.send(t, RegisterRequest("Zed"))
	c.read(t)

	c.send(t, ExitRequest("Zed"))
	require.True(t, c.read(t).IsStopSign())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after exit")
	}
	require.True(t, s.Closed())
	require.Equal(t, ModeClosed, s.Mode())
	require.Empty(t, d.Users())
}

func TestSession_ClientHangupRemovesRegistration(t *testing.T) {
	d := NewDispatcher("welcome!", nil, nil)
	other := newFakePeer("other")
	require.True(t, d.AddUser("Ann", other))

	_, c, done := startPipeSession(t, d, nil)
	c.read(t)
	c.send(t, RegisterRequest("Zed"))
	c.read(t)
	require.NoError(t, c.conn.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after hangup")
	}
	require.Equal(t, []string{"Ann"}, d.Users())
	require.Equal(t, []string{"Zed joins the conversation!", "Zed leaves the conversation."}, bodies(other.messages()))
}

func TestSession_SendAfterCloseFails(t *testing.T) {
	serverEnd, clientEnd := net.Pipe()
	defer clientEnd.Close()
	s := NewSession(serverEnd, NewDispatcher("", nil, nil), nil, nil, nil)

	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Close(), ErrSessionClosed)
	require.ErrorIs(t, s.Send(Text("a", "b")), ErrSessionClosed)
}
