package chat

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// FrameWriter writes one JSON object per line. Writes are serialised so a
// connection never carries interleaved frames from two goroutines.
type FrameWriter struct {
	mu  sync.Mutex
	w   *bufio.Writer
	enc *json.Encoder
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &FrameWriter{w: bw, enc: enc}
}

func (f *FrameWriter) WriteMessage(m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enc.Encode(m); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := f.w.Flush(); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// FrameReader reads frames written by FrameWriter. It is not safe for
// concurrent use; each connection has exactly one reader.
type FrameReader struct {
	dec *json.Decoder
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{dec: json.NewDecoder(r)}
}

// ReadMessage returns io.EOF on a clean end of stream.
func (f *FrameReader) ReadMessage() (Message, error) {
	var m Message
	if err := f.dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, io.EOF
		}
		return Message{}, fmt.Errorf("read frame: %w", err)
	}
	return m, nil
}

// IsFramingError reports whether err came from a malformed frame rather than
// from the transport.
func IsFramingError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, ErrUnknownKind)
}
