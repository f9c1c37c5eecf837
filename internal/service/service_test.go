package service

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// compile-time check that the fake tracks the repository surface
var _ Store = (*fakeStore)(nil)

// testClock returns strictly increasing timestamps so ordering by
// created_at is deterministic.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestMemory(t *testing.T) (*Memory, *fakeStore, *testClock) {
	t.Helper()
	clock := newTestClock()
	store := newFakeStore(clock.Now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := New(store, nil, logger).WithNow(clock.Now)
	return mem, store, clock
}

func strptr(s string) *string { return &s }
