package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Priya8975/envelope-relay/internal/domain"
)

// callLog records sender invocations across senders in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

type recordingSender struct {
	name    string
	log     *callLog
	err     error
	panics  bool
	delay   time.Duration
	mu      sync.Mutex
	events  []*domain.Event
	running int
	maxSeen int
}

func (s *recordingSender) Name() string { return s.name }

func (s *recordingSender) Send(ctx context.Context, ev *domain.Event) error {
	s.mu.Lock()
	s.running++
	if s.running > s.maxSeen {
		s.maxSeen = s.running
	}
	s.events = append(s.events, ev)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running--
		s.mu.Unlock()
	}()

	if s.log != nil {
		s.log.add(s.name + ":" + ev.EventID)
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.panics {
		panic("boom")
	}
	return s.err
}

func (s *recordingSender) received() []*domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Event, len(s.events))
	copy(out, s.events)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// startDispatcher runs d in the background and returns a stop function that
// waits for Run to return.
func startDispatcher(t *testing.T, d *Dispatcher) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("dispatcher did not stop")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatcher_RoutesByLevel(t *testing.T) {
	q := NewMemoryQueue()
	r := NewRegistry()
	warning := &recordingSender{name: "warning-only"}
	errorSender := &recordingSender{name: "error-only"}
	_ = r.Register(domain.LevelWarning, warning)
	_ = r.Register(domain.LevelError, errorSender)

	d := NewDispatcher(q, r, time.Second, testLogger())
	stop := startDispatcher(t, d)
	defer stop()

	_ = q.Enqueue(context.Background(), testEvent("e1", domain.LevelError))

	waitFor(t, func() bool { return len(errorSender.received()) == 1 })
	// Give a misrouted send a chance to show up.
	time.Sleep(20 * time.Millisecond)

	if n := len(warning.received()); n != 0 {
		t.Errorf("warning sender should not receive error events, got %d", n)
	}
	if got := errorSender.received()[0].EventID; got != "e1" {
		t.Errorf("expected event e1, got %s", got)
	}
}

func TestDispatcher_FIFOAndSequentialSenders(t *testing.T) {
	q := NewMemoryQueue()
	r := NewRegistry()
	log := &callLog{}
	first := &recordingSender{name: "first", log: log, delay: 5 * time.Millisecond}
	second := &recordingSender{name: "second", log: log}
	_ = r.Register(domain.LevelError, first)
	_ = r.Register(domain.LevelError, second)

	for i := 0; i < 3; i++ {
		_ = q.Enqueue(context.Background(), testEvent(fmt.Sprint(i), domain.LevelError))
	}

	d := NewDispatcher(q, r, time.Second, testLogger())
	stop := startDispatcher(t, d)
	defer stop()

	waitFor(t, func() bool { return len(log.snapshot()) == 6 })

	want := []string{"first:0", "second:0", "first:1", "second:1", "first:2", "second:2"}
	got := log.snapshot()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected call order:\n  got:  %v\n  want: %v", got, want)
		}
	}
}

func TestDispatcher_SenderErrorDoesNotStopLoop(t *testing.T) {
	q := NewMemoryQueue()
	r := NewRegistry()
	failing := &recordingSender{name: "failing", err: errors.New("transport down")}
	panicking := &recordingSender{name: "panicking", panics: true}
	healthy := &recordingSender{name: "healthy"}
	_ = r.Register(domain.LevelCritical, failing)
	_ = r.Register(domain.LevelCritical, panicking)
	_ = r.Register(domain.LevelCritical, healthy)

	d := NewDispatcher(q, r, time.Second, testLogger())
	stop := startDispatcher(t, d)
	defer stop()

	_ = q.Enqueue(context.Background(), testEvent("a", domain.LevelCritical))
	_ = q.Enqueue(context.Background(), testEvent("b", domain.LevelCritical))

	waitFor(t, func() bool { return d.Stats().Dispatched == 2 })

	if n := len(healthy.received()); n != 2 {
		t.Errorf("expected healthy sender to receive 2 events, got %d", n)
	}
	stats := d.Stats()
	if stats.SenderErrors != 4 {
		t.Errorf("expected 4 sender errors, got %d", stats.SenderErrors)
	}
	if stats.Dispatched != 2 {
		t.Errorf("expected 2 dispatched events, got %d", stats.Dispatched)
	}
}

func TestDispatcher_UnroutedEventIsDropped(t *testing.T) {
	q := NewMemoryQueue()
	r := NewRegistry()
	errorSender := &recordingSender{name: "error"}
	_ = r.Register(domain.LevelError, errorSender)

	d := NewDispatcher(q, r, time.Second, testLogger())
	stop := startDispatcher(t, d)
	defer stop()

	_ = q.Enqueue(context.Background(), testEvent("debug", domain.LevelDebug))
	_ = q.Enqueue(context.Background(), testEvent("err", domain.LevelError))

	waitFor(t, func() bool { return len(errorSender.received()) == 1 })
	if got := errorSender.received()[0].EventID; got != "err" {
		t.Errorf("expected err event, got %s", got)
	}
}

func TestDispatcher_NoParallelDelivery(t *testing.T) {
	q := NewMemoryQueue()
	r := NewRegistry()
	slow := &recordingSender{name: "slow", delay: 10 * time.Millisecond}
	_ = r.Register(domain.LevelInfo, slow)

	d := NewDispatcher(q, r, time.Second, testLogger())
	stop := startDispatcher(t, d)
	defer stop()

	for i := 0; i < 5; i++ {
		_ = q.Enqueue(context.Background(), testEvent(fmt.Sprint(i), domain.LevelInfo))
	}

	waitFor(t, func() bool { return len(slow.received()) == 5 })

	slow.mu.Lock()
	maxSeen := slow.maxSeen
	slow.mu.Unlock()
	if maxSeen != 1 {
		t.Errorf("expected at most one concurrent send, saw %d", maxSeen)
	}
}

func TestDispatcher_SendTimeout(t *testing.T) {
	q := NewMemoryQueue()
	r := NewRegistry()
	blocking := &blockingSender{}
	_ = r.Register(domain.LevelError, blocking)

	d := NewDispatcher(q, r, 20*time.Millisecond, testLogger())
	stop := startDispatcher(t, d)
	defer stop()

	_ = q.Enqueue(context.Background(), testEvent("slow", domain.LevelError))
	waitFor(t, func() bool { return d.Stats().SenderErrors == 1 })
}

func TestDispatcher_FreezesRegistryAndStops(t *testing.T) {
	q := NewMemoryQueue()
	r := NewRegistry()
	d := NewDispatcher(q, r, time.Second, testLogger())

	stop := startDispatcher(t, d)
	waitFor(t, func() bool { return d.Stats().Running })

	if err := r.Register(domain.LevelError, &recordingSender{name: "late"}); !errors.Is(err, ErrRegistryFrozen) {
		t.Errorf("expected ErrRegistryFrozen, got %v", err)
	}

	stop()
	if d.Stats().Running {
		t.Error("dispatcher should report not running after stop")
	}
}

type blockingSender struct{}

func (blockingSender) Name() string { return "blocking" }

func (blockingSender) Send(ctx context.Context, _ *domain.Event) error {
	<-ctx.Done()
	return ctx.Err()
}
