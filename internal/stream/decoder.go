// Package stream implements the line framing used between the inference
// endpoint and chat clients: each event is a "data: " line holding a JSON
// object, and "data: [DONE]" terminates the stream.
package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"iter"
	"strings"
)

const (
	dataPrefix = "data: "
	doneMarker = "[DONE]"
)

// Event is one decoded payload. Response carries incremental text; Error is
// set when the server reports a failure mid-stream.
type Event struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

type Decoder struct {
	sc        *bufio.Scanner
	done      bool
	malformed int
}

func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	return &Decoder{sc: sc}
}

// Next returns the next event carrying a response or an error. Lines without
// the data marker and payloads that are not valid JSON are skipped. It
// returns io.EOF after the done marker or at the end of input.
func (d *Decoder) Next() (Event, error) {
	for !d.done && d.sc.Scan() {
		line := strings.TrimRight(d.sc.Text(), "\r")
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		data := strings.TrimSpace(line[len(dataPrefix):])
		if data == doneMarker {
			d.done = true
			break
		}
		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			d.malformed++
			continue
		}
		if ev.Response == "" && ev.Error == "" {
			continue
		}
		return ev, nil
	}
	if err := d.sc.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// Malformed reports how many data lines failed to parse.
func (d *Decoder) Malformed() int { return d.malformed }

// Events yields events until the stream ends. A read error is yielded once
// as the final pair.
func (d *Decoder) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := d.Next()
			if err == io.EOF {
				return
			}
			if !yield(ev, err) || err != nil {
				return
			}
		}
	}
}
