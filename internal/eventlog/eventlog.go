// Package eventlog appends bridged events to a JSONL file.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"asmocha/internal/core"
)

type EventLog struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

func New(path string) (*EventLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	return &EventLog{file: file, now: time.Now}, nil
}

// Emit writes event as one line with an RFC 3339 timestamp.
func (l *EventLog) Emit(event core.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := struct {
		TS string `json:"ts"`
		core.Event
	}{
		TS:    l.now().UTC().Format(time.RFC3339Nano),
		Event: event,
	}

	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.EventType, err)
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write event log: %w", err)
	}
	return nil
}

func (l *EventLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
