package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, opts ...Option) *Logger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := NewLogger(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLogAppendsToRingAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := NewLogger(path)
	require.NoError(t, err)

	e := NewEvent("operation_validation", SeverityInfo, "Validating trade operation")
	e.AgentID = "agent-1"
	e.Metadata = map[string]interface{}{"operation_type": "trade"}
	l.Log(e)

	assert.Equal(t, 1, l.Len())
	require.NoError(t, l.Close())

	// One self-describing JSON record per line.
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var got Event
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &got))
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "operation_validation", got.EventType)
	assert.Equal(t, SeverityInfo, got.Severity)
	assert.Equal(t, "agent-1", got.AgentID)
	assert.Equal(t, "trade", got.Metadata["operation_type"])
	assert.False(t, got.Timestamp.IsZero())
	assert.False(t, scanner.Scan(), "expected exactly one line")
}

func TestRingEvictsOldestFirst(t *testing.T) {
	l := newTestLogger(t, WithCapacity(3))

	for i := 0; i < 5; i++ {
		l.Log(NewEvent(fmt.Sprintf("event_%d", i), SeverityInfo, "x"))
	}

	events := l.Recent(10)
	require.Len(t, events, 3)
	assert.Equal(t, "event_2", events[0].EventType)
	assert.Equal(t, "event_4", events[2].EventType)
}

func TestQueryFilters(t *testing.T) {
	l := newTestLogger(t)

	info := NewEvent("operation_validation", SeverityInfo, "ok")
	warn := NewEvent("operation_validation_complete", SeverityWarning, "rejected")
	errEvent := NewEvent("validation_error", SeverityError, "boom")
	for _, e := range []*Event{info, warn, errEvent} {
		l.Log(e)
	}

	assert.Len(t, l.Query(Filter{}), 3)
	assert.Len(t, l.Query(Filter{Severity: SeverityWarning}), 1)
	assert.Len(t, l.Query(Filter{EventType: "validation_error"}), 1)

	got := l.Query(Filter{Since: time.Now().Add(time.Hour)})
	assert.Empty(t, got)

	got = l.Query(Filter{Until: time.Now().Add(time.Hour)})
	assert.Len(t, got, 3)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*Event
	ch     chan struct{}
}

func (n *recordingNotifier) Notify(e *Event) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
	n.ch <- struct{}{}
}

type panickingNotifier struct{ ch chan struct{} }

func (n *panickingNotifier) Notify(*Event) {
	defer func() { n.ch <- struct{}{} }()
	panic("notifier exploded")
}

func TestNotifierFiresOnHighSeverityOnly(t *testing.T) {
	n := &recordingNotifier{ch: make(chan struct{}, 4)}
	l := newTestLogger(t, WithNotifier(n))

	l.Log(NewEvent("a", SeverityInfo, "info"))
	l.Log(NewEvent("b", SeverityWarning, "warn"))
	l.Log(NewEvent("c", SeverityError, "err"))
	l.Log(NewEvent("d", SeverityCritical, "crit"))

	for i := 0; i < 2; i++ {
		select {
		case <-n.ch:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for notifier")
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	require.Len(t, n.events, 2)
	severities := map[Severity]bool{}
	for _, e := range n.events {
		severities[e.Severity] = true
	}
	assert.True(t, severities[SeverityError])
	assert.True(t, severities[SeverityCritical])
}

func TestNotifierPanicIsContained(t *testing.T) {
	n := &panickingNotifier{ch: make(chan struct{}, 1)}
	l := newTestLogger(t, WithNotifier(n))

	assert.NotPanics(t, func() {
		l.Log(NewEvent("validation_error", SeverityCritical, "crit"))
	})

	select {
	case <-n.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier never ran")
	}

	// Logger still works afterwards.
	l.Log(NewEvent("ok", SeverityInfo, "still alive"))
	assert.Equal(t, 2, l.Len())
}

func TestCloseFlushesQueuedWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := NewLogger(path)
	require.NoError(t, err)

	const count = 200
	for i := 0; i < count; i++ {
		l.Log(NewEvent("flush_test", SeverityInfo, "x"))
	}
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, count, lines)
}

func TestLogAfterCloseIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := NewLogger(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	assert.NotPanics(t, func() {
		l.Log(NewEvent("late", SeverityInfo, "after close"))
	})
	assert.Equal(t, ErrClosed, l.Close())
}
