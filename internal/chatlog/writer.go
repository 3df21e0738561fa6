// Package chatlog keeps the chat journal: a category-gated Logger that formats
// entries and a Writer that appends them to a file from a dedicated goroutine.
package chatlog

import (
	"errors"
	"log/slog"
	"os"
	"sync"
)

// DefaultCapacity is the queue length used when none is configured.
const DefaultCapacity = 128

var (
	ErrQueueFull     = errors.New("journal queue full")
	ErrWriterStopped = errors.New("journal writer stopped")
)

// Writer drains a bounded FIFO of formatted entries into the current target
// file. Producers call Enqueue; a single consumer runs in Run.
type Writer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []string
	capacity int
	stopping bool
	target   string

	// owned by the Run goroutine
	file     *os.File
	filePath string

	fallback *slog.Logger
	done     chan struct{}
}

func NewWriter(target string, capacity int, fallback *slog.Logger) *Writer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if fallback == nil {
		fallback = slog.Default()
	}
	w := &Writer{
		queue:    make([]string, 0, capacity),
		capacity: capacity,
		target:   target,
		fallback: fallback,
		done:     make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Enqueue places entry at the tail of the queue. It never blocks on file I/O.
func (w *Writer) Enqueue(entry string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopping {
		return ErrWriterStopped
	}
	if len(w.queue) >= w.capacity {
		return ErrQueueFull
	}
	w.queue = append(w.queue, entry)
	w.cond.Signal()
	return nil
}

// SetTarget switches the file subsequent flushes go to. Entries already queued
// are written to whichever target is current when they are popped.
func (w *Writer) SetTarget(path string) {
	w.mu.Lock()
	w.target = path
	w.mu.Unlock()
}

func (w *Writer) Target() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target
}

// Run consumes the queue until Stop is called and every queued entry is written.
func (w *Writer) Run() {
	defer close(w.done)
	defer w.closeFile()

	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.stopping {
			w.cond.Wait()
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		entry := w.queue[0]
		w.queue[0] = ""
		w.queue = w.queue[1:]
		target := w.target
		w.mu.Unlock()

		if err := w.write(target, entry); err != nil {
			w.fallback.Error("journal write failed", "path", target, "error", err)
		}
	}
}

// Stop asks Run to finish after draining the queue. Further Enqueue calls fail.
func (w *Writer) Stop() {
	w.mu.Lock()
	w.stopping = true
	w.cond.Broadcast()
	w.mu.Unlock()
}

// Wait blocks until Run has returned.
func (w *Writer) Wait() {
	<-w.done
}

func (w *Writer) write(target, entry string) error {
	if w.file == nil || w.filePath != target {
		w.closeFile()
		f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		w.file = f
		w.filePath = target
	}
	_, err := w.file.WriteString(entry)
	return err
}

func (w *Writer) closeFile() {
	if w.file == nil {
		return
	}
	if err := w.file.Close(); err != nil {
		w.fallback.Warn("journal close failed", "path", w.filePath, "error", err)
	}
	w.file = nil
	w.filePath = ""
}
