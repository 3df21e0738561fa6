package chatlog

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const timeLayout = "02.01.2006 15:04:05"

// Categories selects which kinds of journal entries are written.
type Categories struct {
	Inbound     bool
	Outbound    bool
	Transferred bool
	Events      bool
}

// Sink accepts formatted entries. *Writer is the production sink.
type Sink interface {
	Enqueue(entry string) error
}

// Logger formats journal entries and hands them to a Sink. A nil *Logger
// discards everything.
type Logger struct {
	cats     Categories
	sink     Sink
	fallback *slog.Logger
	now      func() time.Time
}

func New(cats Categories, sink Sink, fallback *slog.Logger) *Logger {
	if fallback == nil {
		fallback = slog.Default()
	}
	return &Logger{cats: cats, sink: sink, fallback: fallback, now: time.Now}
}

// Log timestamps text and enqueues it regardless of category.
func (l *Logger) Log(text string) {
	if l == nil || l.sink == nil {
		return
	}
	entry := l.now().Format(timeLayout) + " : " + text + "\n"
	if err := l.sink.Enqueue(entry); err != nil {
		reason := "stopped"
		if errors.Is(err, ErrQueueFull) {
			reason = "full"
		}
		EntriesDropped.WithLabelValues(reason).Inc()
		l.fallback.Warn("journal entry dropped", "error", err)
	}
}

func (l *Logger) Inbound(m fmt.Stringer, from string) {
	if l == nil || !l.cats.Inbound {
		return
	}
	l.Log("received from " + from + ": " + m.String())
}

func (l *Logger) Outbound(m fmt.Stringer, to string) {
	if l == nil || !l.cats.Outbound {
		return
	}
	l.Log("sent to " + to + ": " + m.String())
}

func (l *Logger) Transferred(m fmt.Stringer, from string) {
	if l == nil || !l.cats.Transferred {
		return
	}
	l.Log("forwarded from " + from + ": " + m.String())
}

func (l *Logger) Event(format string, args ...any) {
	if l == nil || !l.cats.Events {
		return
	}
	l.Log(fmt.Sprintf(format, args...))
}
