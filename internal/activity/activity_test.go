package activity

import (
	"sync"
	"testing"
	"time"
)

func newTestHistory() (*History, *time.Time) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h := NewHistory()
	h.now = func() time.Time { return base }
	return h, &base
}

func TestRecordAndCount(t *testing.T) {
	h, _ := newTestHistory()

	for i := 0; i < 5; i++ {
		h.Record("agent-1")
	}

	if got := h.CountRecent("agent-1"); got != 5 {
		t.Errorf("CountRecent = %d, want 5", got)
	}
	if got := h.CountRecent("agent-2"); got != 0 {
		t.Errorf("CountRecent for unseen agent = %d, want 0", got)
	}
}

func TestOldEntriesFallOutOfWindow(t *testing.T) {
	h, now := newTestHistory()

	h.Record("agent-1")
	h.Record("agent-1")

	*now = now.Add(30 * time.Minute)
	h.Record("agent-1")

	if got := h.CountRecent("agent-1"); got != 3 {
		t.Errorf("CountRecent = %d, want 3", got)
	}

	// First two entries are now 65 minutes old.
	*now = now.Add(35 * time.Minute)
	if got := h.CountRecent("agent-1"); got != 1 {
		t.Errorf("CountRecent after expiry = %d, want 1", got)
	}
}

func TestEmptyAgentsAreDropped(t *testing.T) {
	h, now := newTestHistory()

	h.Record("agent-1")
	*now = now.Add(2 * Window)

	if got := h.CountRecent("agent-1"); got != 0 {
		t.Errorf("CountRecent = %d, want 0", got)
	}
	if got := h.Agents(); got != 0 {
		t.Errorf("Agents after expiry = %d, want 0", got)
	}
}

func TestConcurrentRecords(t *testing.T) {
	h := NewHistory()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Record("shared")
			}
		}()
	}
	wg.Wait()

	if got := h.CountRecent("shared"); got != 1000 {
		t.Errorf("CountRecent = %d, want 1000", got)
	}
}
