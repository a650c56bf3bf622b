// Package events publishes run lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Event types.
const (
	TypeRunStarted     = "run.started"
	TypeTargetStarted  = "target.started"
	TypeTargetFinished = "target.finished"
	TypeReportWritten  = "report.written"
	TypeRunFinished    = "run.finished"
)

// DefaultSubjectPrefix is prepended to every event type to form the subject.
const DefaultSubjectPrefix = "screenshots"

// Event is one lifecycle notification.
type Event struct {
	Type      string                 `json:"type"`
	RunID     string                 `json:"runId"`
	Target    string                 `json:"target,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Publisher delivers events. Publish failures are reported but never block a run.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// Subject returns the subject an event type is published on.
func Subject(prefix, eventType string) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(ctx context.Context, ev Event) error { return nil }

func (Noop) Close() {}

// Memory keeps published events in order. Useful in tests and dry runs.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Publish(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) Close() {}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Types returns the published event types in order.
func (m *Memory) Types() []string {
	var types []string
	for _, ev := range m.Events() {
		types = append(types, ev.Type)
	}
	return types
}

// NATSPublisher publishes events as JSON on core NATS subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, prefix string, opts ...nats.Option) (*NATSPublisher, error) {
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	opts = append([]nats.Option{nats.Name("screenshot-orchestrator")}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: nc, prefix: prefix}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if p == nil {
		return errors.New("nil publisher")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.conn.Publish(Subject(p.prefix, ev.Type), data)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
