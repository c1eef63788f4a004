// Package eventlog captures raw realtime server events to disk and reads
// captures back for replay.
package eventlog

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/glizzus/talkback/internal/realtime"
)

// Writer appends one JSON document per line.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Append writes raw as a single line. raw must be a JSON document; it is
// compacted so embedded newlines cannot split a record.
func (l *Writer) Append(raw []byte) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return fmt.Errorf("failed to compact event: %w", err)
	}
	buf.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Observe is suitable for realtime.WithObserver. Failures are logged since
// the read loop cannot act on them.
func (l *Writer) Observe(raw []byte) {
	if err := l.Append(raw); err != nil {
		slog.Warn("failed to capture realtime event", "error", err)
	}
}

// File is a Writer backed by a file opened for appending.
type File struct {
	*Writer
	f *os.File
}

// OpenFile opens path for appending, creating it if needed.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	return &File{Writer: NewWriter(f), f: f}, nil
}

func (f *File) Close() error {
	return f.f.Close()
}

// Read decodes a capture. Both a single JSON array of events and one event
// per line are accepted.
func Read(r io.Reader) ([]realtime.ServerEvent, error) {
	br := bufio.NewReader(r)

	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}

	if first == '[' {
		var raws []json.RawMessage
		if err := json.NewDecoder(br).Decode(&raws); err != nil {
			return nil, fmt.Errorf("failed to decode event array: %w", err)
		}
		events := make([]realtime.ServerEvent, 0, len(raws))
		for i, raw := range raws {
			ev, err := realtime.DecodeServerEvent(raw)
			if err != nil {
				return nil, fmt.Errorf("failed to decode event %d: %w", i, err)
			}
			events = append(events, ev)
		}
		return events, nil
	}

	var events []realtime.ServerEvent
	dec := json.NewDecoder(br)
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return nil, fmt.Errorf("failed to decode event %d: %w", len(events), err)
		}
		ev, err := realtime.DecodeServerEvent(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event %d: %w", len(events), err)
		}
		events = append(events, ev)
	}
}

// ReadFile reads a capture from path.
func ReadFile(path string) ([]realtime.ServerEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}

// PCM concatenates the decoded audio of every audio delta in events.
func PCM(events []realtime.ServerEvent) ([]byte, error) {
	var pcm []byte
	for i, ev := range events {
		if ev.Type != realtime.EventAudioDelta {
			continue
		}
		chunk, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			return nil, fmt.Errorf("failed to decode audio of event %d: %w", i, err)
		}
		pcm = append(pcm, chunk...)
	}
	return pcm, nil
}
