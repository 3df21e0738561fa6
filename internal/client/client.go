// Package client is a console participant: it turns typed lines into chat
// messages and prints whatever the server routes back.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/samber/lo"

	"github.com/alexfirerain/chatwork/internal/chat"
	"github.com/alexfirerain/chatwork/internal/chatlog"
	"github.com/alexfirerain/chatwork/internal/config"
)

var (
	noticeColor  = color.New(color.FgCyan)
	privateColor = color.New(color.FgMagenta)
	stopColor    = color.New(color.FgYellow, color.Bold)
)

// JournalTarget is where the inbound journal is written; it follows the
// confirmed name. *chatlog.Writer implements it.
type JournalTarget interface {
	SetTarget(path string)
	Target() string
}

// Options configures a Client.
type Options struct {
	// Settings supplies the saved name, the nickname limit and the journal
	// file. The name is registered as soon as the connection is up.
	Settings config.Config
	// SettingsPath is rewritten with the confirmed name; empty disables saving.
	SettingsPath string
	Display      io.Writer
	Logger       *slog.Logger
	Journal      *chatlog.Logger
	Target       JournalTarget
}

// savedKeys are the settings a client writes back.
var savedKeys = []string{
	config.KeyHost, config.KeyPort, config.KeyName, config.KeyNickLimit,
	config.KeyLogInbound, config.KeyLogEvents, config.KeyLogFile, config.KeyLogQueue,
}

type Client struct {
	conn    net.Conn
	in      *chat.FrameReader
	out     *chat.FrameWriter
	opts    Options
	display io.Writer
	journal *chatlog.Logger
	logger  *slog.Logger

	mu       sync.Mutex
	name     string
	settings config.Config
}

// Dial connects to a chat server at addr.
func Dial(addr string, opts Options) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, opts), nil
}

// New wraps an established connection.
func New(conn net.Conn, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	display := opts.Display
	if display == nil {
		display = io.Discard
	}
	return &Client{
		conn:     conn,
		in:       chat.NewFrameReader(conn),
		out:      chat.NewFrameWriter(conn),
		opts:     opts,
		display:  display,
		journal:  opts.Journal,
		logger:   logger,
		settings: opts.Settings,
	}
}

// JournalPath is the journal file for name, next to logFile. Without a name
// logFile itself is used.
func JournalPath(logFile, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return logFile
	}
	return filepath.Join(filepath.Dir(logFile), name+".log")
}

// Name is the name the server last confirmed for this client.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// confirmName saves the name the server addressed us by and moves the
// journal to its file. Name reports it only once both are done.
func (c *Client) confirmName(name string) {
	c.mu.Lock()
	c.settings.Name = name
	settings := c.settings
	c.mu.Unlock()

	c.logger.Debug("registered name confirmed", "name", name)
	c.journal.Event("registered as %s", name)

	if c.opts.SettingsPath != "" {
		if err := config.Save(c.opts.SettingsPath, lo.PickByKeys(settings.Settings(), savedKeys)); err != nil {
			c.logger.Warn("settings not saved", "path", c.opts.SettingsPath, "error", err)
		}
	}
	if t := c.opts.Target; t != nil {
		next := JournalPath(settings.LogFile, name)
		if prev := t.Target(); prev != next {
			t.SetTarget(next)
			c.logger.Info("journal moved", "from", prev, "to", next)
		}
	}

	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

// Run sends every line read from input until the server sends a stop sign,
// the connection drops or input ends. End of input is treated as /exit.
func (c *Client) Run(input io.Reader) error {
	defer c.conn.Close()

	saved := strings.TrimSpace(c.opts.Settings.Name)
	received := make(chan error, 1)
	go func() { received <- c.receive() }()

	if chat.IsAcceptableName(saved) {
		if err := c.out.WriteMessage(chat.FromClientInput("/reg "+saved, "", c.opts.Settings.NickLimit)); err != nil {
			return fmt.Errorf("register: %w", err)
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case err := <-received:
			return err
		case line, ok := <-lines:
			if !ok {
				if err := c.out.WriteMessage(chat.ExitRequest(c.Name())); err != nil {
					return err
				}
				return <-received
			}
			if line == "" {
				continue
			}
			if err := c.out.WriteMessage(chat.FromClientInput(line, c.Name(), c.opts.Settings.NickLimit)); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}

func (c *Client) receive() error {
	for {
		m, err := c.in.ReadMessage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			c.journal.Event("connection with server failed: %v", err)
			return err
		}
		c.show(m)
		if m.IsStopSign() {
			return nil
		}
	}
}

// show prints m. Server notices addressed to us carry the name we are
// registered under, which is how registration and renames are confirmed.
func (c *Client) show(m chat.Message) {
	from := m.Sender
	if from == "" {
		from = "server"
	}
	c.journal.Inbound(m, from)

	var err error
	switch {
	case m.IsStopSign():
		_, err = stopColor.Fprintln(c.display, m.String())
	case m.Kind == chat.KindServer:
		if m.Addressee != "" && m.Addressee != c.Name() {
			c.confirmName(m.Addressee)
		}
		_, err = noticeColor.Fprintln(c.display, m.String())
	case m.Kind == chat.KindPrivate:
		_, err = privateColor.Fprintln(c.display, m.String())
	default:
		_, err = fmt.Fprintln(c.display, m.String())
	}
	if err != nil {
		c.logger.Warn("display failed", "error", err)
	}
}
