package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Writer encodes events for a streaming HTTP response and flushes after each one.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

func NewWriter(w io.Writer) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// SetHeaders prepares an http.ResponseWriter for event streaming.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

func (w *Writer) write(ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return w.raw(string(b))
}

func (w *Writer) raw(data string) error {
	if _, err := fmt.Fprintf(w.w, "%s%s\n\n", dataPrefix, data); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

func (w *Writer) WriteResponse(text string) error { return w.write(Event{Response: text}) }

func (w *Writer) WriteError(msg string) error { return w.write(Event{Error: msg}) }

func (w *Writer) WriteDone() error { return w.raw(doneMarker) }

// Ping writes a comment line that decoders skip; it keeps idle connections open.
func (w *Writer) Ping() error {
	if _, err := io.WriteString(w.w, ": ping\n\n"); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
