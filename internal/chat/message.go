package chat

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultNickLimit caps the length of a requested name when no limit is configured.
const DefaultNickLimit = 15

// A name is one or more letters, then any digits, then any whitespace.
var nameRe = regexp.MustCompile(`^\p{L}+\d*\s*$`)

// Message is the unit exchanged over the wire. Values are treated as immutable;
// use WithAddressee to derive a per-recipient copy.
type Message struct {
	Kind      Kind   `json:"kind"`
	Sender    string `json:"sender,omitempty"`
	Addressee string `json:"addressee,omitempty"`
	Body      string `json:"body,omitempty"`
	// Stop marks a server notice that terminates the receiving connection.
	Stop bool `json:"stop,omitempty"`
}

// Text builds a public chat message.
func Text(sender, body string) Message {
	return Message{Kind: KindText, Sender: sender, Body: body}
}

// Private builds a message for a single addressee.
func Private(sender, addressee, body string) Message {
	return Message{Kind: KindPrivate, Sender: sender, Addressee: addressee, Body: body}
}

// RegisterRequest asks the server to register (or rename to) name.
func RegisterRequest(name string) Message {
	return Message{Kind: KindRegister, Sender: name}
}

func ListRequest(sender string) Message {
	return Message{Kind: KindList, Sender: sender}
}

func ExitRequest(sender string) Message {
	return Message{Kind: KindExit, Sender: sender}
}

func ShutdownRequest(sender string) Message {
	return Message{Kind: KindShutdown, Sender: sender}
}

// FromServer builds a notice for everyone; the addressee is filled per recipient.
func FromServer(text string) Message {
	return Message{Kind: KindServer, Body: text}
}

// FromServerTo builds a notice for one participant.
func FromServerTo(text, who string) Message {
	return Message{Kind: KindServer, Addressee: who, Body: text}
}

// StopSign builds the notice that tells a client its connection is closing.
func StopSign(text, who string) Message {
	return Message{Kind: KindServer, Addressee: who, Body: text, Stop: true}
}

// IsStopSign reports whether m is a connection-termination notice.
func (m Message) IsStopSign() bool {
	return m.Kind == KindServer && m.Stop && m.Sender == ""
}

// WithAddressee returns a copy of m addressed to name.
func (m Message) WithAddressee(name string) Message {
	m.Addressee = name
	return m
}

// WithSender returns a copy of m attributed to name.
func (m Message) WithSender(name string) Message {
	m.Sender = name
	return m
}

// Redacted returns a copy with the body masked, for journal entries of credentials.
func (m Message) Redacted() Message {
	if m.Body != "" {
		m.Body = "******"
	}
	return m
}

func (m Message) String() string {
	var b strings.Builder
	switch m.Kind {
	case KindText:
	case KindServer:
		b.WriteString(">>> Server notice:\n")
	case KindPrivate:
		b.WriteString(">>> Private message:\n")
	default:
		b.WriteString("<" + m.Kind.String() + ">\n")
	}
	if m.Sender != "" {
		b.WriteString(m.Sender)
		b.WriteString(" > ")
	}
	b.WriteString(m.Body)
	return b.String()
}

// IsAcceptableName reports whether name may be registered.
func IsAcceptableName(name string) bool {
	return nameRe.MatchString(name)
}

// FromClientInput turns a console line into a message. A "/reg" name longer
// than nickLimit runes is truncated; nickLimit <= 0 means DefaultNickLimit.
func FromClientInput(text, sender string, nickLimit int) Message {
	if utf8.RuneCountInString(text) < 2 {
		return Text(sender, text)
	}
	space := strings.IndexByte(text, ' ')
	if space <= 0 {
		space = len(text)
	}
	keyword := text[1:space]
	rest := ""
	if space < len(text) {
		rest = text[space+1:]
	}

	switch text[0] {
	case '@':
		return Private(sender, keyword, rest)
	case '/':
		switch keyword {
		case "reg":
			return RegisterRequest(truncateName(strings.TrimSpace(rest), nickLimit))
		case "users":
			return ListRequest(sender)
		case "exit":
			return ExitRequest(sender)
		case "terminate":
			return ShutdownRequest(sender)
		}
	}
	return Text(sender, text)
}

func truncateName(name string, limit int) string {
	if limit <= 0 {
		limit = DefaultNickLimit
	}
	if utf8.RuneCountInString(name) <= limit {
		return name
	}
	return string([]rune(name)[:limit])
}
