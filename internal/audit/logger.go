package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultMemoryEvents is the default in-memory ring capacity.
	DefaultMemoryEvents = 1000

	writerChanSize = 4096
	storeTimeout   = 10 * time.Second
)

var (
	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hyvbase",
		Subsystem: "audit",
		Name:      "events_total",
		Help:      "Total audit events logged by severity.",
	}, []string{"severity"})

	droppedWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hyvbase",
		Subsystem: "audit",
		Name:      "dropped_writes_total",
		Help:      "Audit events dropped because the durable write queue was full.",
	})

	persistErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hyvbase",
		Subsystem: "audit",
		Name:      "persist_errors_total",
		Help:      "Failed durable audit writes (file or store).",
	})
)

func init() {
	prometheus.MustRegister(eventsTotal, droppedWrites, persistErrors)
}

// Logger is the append-only audit sink. Log never blocks on disk: durable
// writes go through a buffered channel drained by one background goroutine,
// so a slow disk cannot stall validation.
type Logger struct {
	mu     sync.Mutex
	ring   []*Event
	cap    int
	closed bool

	ch   chan *Event
	done chan struct{}

	path     string
	file     *os.File
	store    Store
	notifier Notifier
	logger   *slog.Logger

	dropped atomic.Int64
}

// Option configures the logger.
type Option func(*Logger)

// WithCapacity sets the in-memory ring capacity.
func WithCapacity(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.cap = n
		}
	}
}

// WithNotifier sets the hook invoked for ERROR/CRITICAL events.
func WithNotifier(n Notifier) Option {
	return func(l *Logger) { l.notifier = n }
}

// WithStore mirrors durable writes to an event store.
func WithStore(s Store) Option {
	return func(l *Logger) { l.store = s }
}

// WithSlog sets the internal diagnostics logger.
func WithSlog(s *slog.Logger) Option {
	return func(l *Logger) { l.logger = s }
}

// NewLogger opens (creating directories as needed) the append-only audit
// file at path and starts the background writer. Call Close on shutdown to
// flush pending writes.
func NewLogger(path string, opts ...Option) (*Logger, error) {
	l := &Logger{
		cap:    DefaultMemoryEvents,
		ch:     make(chan *Event, writerChanSize),
		done:   make(chan struct{}),
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open log file: %w", err)
	}
	l.file = f

	go l.writeLoop()
	return l, nil
}

// Log records the event: ring first, then the durable queue, then the
// notifier for high severities. Persistence and notifier failures never
// surface to the caller.
func (l *Logger) Log(event *Event) {
	eventsTotal.WithLabelValues(string(event.Severity)).Inc()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.ring = append(l.ring, event)
	if len(l.ring) > l.cap {
		l.ring = l.ring[len(l.ring)-l.cap:]
	}
	// Enqueue under the lock so no send can race Close closing the channel.
	select {
	case l.ch <- event:
	default:
		l.dropped.Add(1)
		droppedWrites.Inc()
	}
	l.mu.Unlock()

	if l.notifier != nil && (event.Severity == SeverityError || event.Severity == SeverityCritical) {
		go l.safeNotify(event)
	}
}

// Query returns events from the in-memory tail matching the filter, oldest
// first. The durable file is not consulted.
func (l *Logger) Query(f Filter) []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*Event
	for _, e := range l.ring {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Recent returns up to n most recent events, oldest first.
func (l *Logger) Recent(n int) []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.ring) {
		n = len(l.ring)
	}
	out := make([]*Event, n)
	copy(out, l.ring[len(l.ring)-n:])
	return out
}

// Len returns the number of events held in memory.
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ring)
}

// Dropped returns how many events missed the durable queue.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Close stops the writer, flushes queued events, and closes the file.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.closed = true
	l.mu.Unlock()

	close(l.ch)
	<-l.done
	return l.file.Close()
}

func (l *Logger) writeLoop() {
	defer close(l.done)
	for event := range l.ch {
		l.persist(event)
	}
}

// persist writes one JSON line and mirrors to the store. Best effort:
// failures are logged and counted, never propagated.
func (l *Logger) persist(event *Event) {
	line, err := json.Marshal(event)
	if err != nil {
		persistErrors.Inc()
		l.logger.Error("audit event marshal failed", "event_id", event.ID, "error", err)
		return
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		persistErrors.Inc()
		l.logger.Error("audit event write failed", "event_id", event.ID, "error", err)
	}

	if l.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := l.store.Record(ctx, event); err != nil {
			persistErrors.Inc()
			l.logger.Error("audit event store failed", "event_id", event.ID, "error", err)
		}
		cancel()
	}
}

// safeNotify shields Log callers from a misbehaving notifier.
func (l *Logger) safeNotify(event *Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic in audit notifier", "panic", fmt.Sprint(r))
		}
	}()
	l.notifier.Notify(event)
}
