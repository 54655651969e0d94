// Package audit provides the append-only security audit trail.
//
// Every validation decision produces events that land in two places: a
// bounded in-memory ring (queryable, oldest-first eviction) and a durable
// JSON-lines file written by a single background goroutine. The file is
// append-only and write-only from the engine's perspective; replay and
// ingestion are external concerns.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/ParalexLabs/hyvbase/internal/idgen"
)

// Severity classifies an audit event.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// ErrClosed is returned by operations on a closed logger.
var ErrClosed = errors.New("audit: logger closed")

// Event is an immutable audit record. Never mutate an event after handing
// it to Logger.Log.
type Event struct {
	ID        string                 `json:"id"`
	EventType string                 `json:"event_type"`
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	UserID    string                 `json:"user_id,omitempty"`
	AgentID   string                 `json:"agent_id,omitempty"`
	SourceIP  string                 `json:"source_ip,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent creates an event with a fresh id and timestamp.
func NewEvent(eventType string, severity Severity, message string) *Event {
	return &Event{
		ID:        idgen.WithPrefix("evt_"),
		EventType: eventType,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Notifier receives ERROR and CRITICAL events for out-of-band alerting
// (chat, email, websocket stream). Implementations must not assume they are
// called on any particular goroutine; a panicking notifier is contained and
// never reaches the Log caller.
type Notifier interface {
	Notify(event *Event)
}

// Store is an optional durable mirror of the audit file (e.g. Postgres).
type Store interface {
	Record(ctx context.Context, event *Event) error
	List(ctx context.Context, f Filter, limit int) ([]*Event, error)
}

// Filter selects events from the in-memory tail. Zero-valued fields match
// everything.
type Filter struct {
	Since     time.Time
	Until     time.Time
	EventType string
	Severity  Severity
}

// matches reports whether the event passes the filter.
func (f Filter) matches(e *Event) bool {
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	return true
}
