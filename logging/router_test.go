package logging_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"wildshape/server/logging"
	"wildshape/server/logging/sinks"
)

func fixedClock(at time.Time) logging.ClockFunc {
	return func() time.Time { return at }
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestRouterForwardsToEverySink(t *testing.T) {
	first := sinks.NewMemory()
	second := sinks.NewMemory()
	router, err := logging.NewRouter(logging.DefaultConfig(), nil, quietLogger(), []logging.NamedSink{
		{Name: "first", Sink: first},
		{Name: "second", Sink: second},
	})
	if err != nil {
		t.Fatalf("failed to construct router: %v", err)
	}

	router.Publish(context.Background(), logging.Event{
		Type:     "lifecycle.player_authenticated",
		Version:  7,
		Severity: logging.SeverityInfo,
	})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	for name, sink := range map[string]*sinks.Memory{"first": first, "second": second} {
		events := sink.Events()
		if len(events) != 1 {
			t.Fatalf("expected sink %s to receive 1 event, got %d", name, len(events))
		}
		if events[0].Version != 7 {
			t.Fatalf("expected version 7 at sink %s, got %d", name, events[0].Version)
		}
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	sink := sinks.NewMemory()
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityWarn
	router, err := logging.NewRouter(cfg, nil, quietLogger(), []logging.NamedSink{{Name: "memory", Sink: sink}})
	if err != nil {
		t.Fatalf("failed to construct router: %v", err)
	}

	router.Publish(context.Background(), logging.Event{Type: "network.message_dropped", Severity: logging.SeverityInfo})
	router.Publish(context.Background(), logging.Event{Type: "network.send_failed", Severity: logging.SeverityError})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("expected only the error event to pass, got %d events", len(events))
	}
	if events[0].Type != "network.send_failed" {
		t.Fatalf("expected the error event, got %s", events[0].Type)
	}
}

func TestRouterStampsTimeAndSharedFields(t *testing.T) {
	sink := sinks.NewMemory()
	at := time.Unix(1700000000, 0)
	cfg := logging.DefaultConfig()
	cfg.Fields = map[string]any{"room": "lair"}
	router, err := logging.NewRouter(cfg, fixedClock(at), quietLogger(), []logging.NamedSink{{Name: "memory", Sink: sink}})
	if err != nil {
		t.Fatalf("failed to construct router: %v", err)
	}

	router.Publish(context.Background(), logging.Event{
		Type:     "command.denied",
		Severity: logging.SeverityWarn,
		Extra:    map[string]any{"action": "create-prop"},
	})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	event := events[0]
	if !event.Time.Equal(at) {
		t.Fatalf("expected the router to stamp %v, got %v", at, event.Time)
	}
	if event.Extra["room"] != "lair" {
		t.Fatalf("expected shared field to be merged, got %v", event.Extra)
	}
	if event.Extra["action"] != "create-prop" {
		t.Fatalf("expected event fields to survive the merge, got %v", event.Extra)
	}
}

func TestRouterDropsWhenQueueIsFull(t *testing.T) {
	release := make(chan struct{})
	gated := &gatedSink{memory: sinks.NewMemory(), release: release, entered: make(chan struct{})}
	cfg := logging.DefaultConfig()
	cfg.BufferSize = 1
	router, err := logging.NewRouter(cfg, nil, quietLogger(), []logging.NamedSink{{Name: "gated", Sink: gated}})
	if err != nil {
		t.Fatalf("failed to construct router: %v", err)
	}

	// The first event blocks inside the sink, the second fills the queue,
	// and the third has nowhere to go.
	router.Publish(context.Background(), logging.Event{Type: "a", Severity: logging.SeverityInfo})
	gated.waitForWriter(t)
	router.Publish(context.Background(), logging.Event{Type: "b", Severity: logging.SeverityInfo})
	router.Publish(context.Background(), logging.Event{Type: "c", Severity: logging.SeverityInfo})

	close(release)
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	stats := router.Stats()
	if stats.DroppedTotal != 1 {
		t.Fatalf("expected 1 dropped event, got %d", stats.DroppedTotal)
	}
	if got := len(gated.memory.Events()); got != 2 {
		t.Fatalf("expected 2 delivered events, got %d", got)
	}
}

func TestPublishAfterCloseIsIgnored(t *testing.T) {
	sink := sinks.NewMemory()
	router, err := logging.NewRouter(logging.DefaultConfig(), nil, quietLogger(), []logging.NamedSink{{Name: "memory", Sink: sink}})
	if err != nil {
		t.Fatalf("failed to construct router: %v", err)
	}
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	router.Publish(context.Background(), logging.Event{Type: "late", Severity: logging.SeverityError})

	if got := len(sink.Events()); got != 0 {
		t.Fatalf("expected no events after close, got %d", got)
	}
}

// gatedSink parks the dispatch goroutine inside Write until released, so
// tests can fill the queue deterministically.
type gatedSink struct {
	memory  *sinks.Memory
	release chan struct{}
	entered chan struct{}
	once    bool
}

func (s *gatedSink) Write(event logging.Event) error {
	if !s.once {
		s.once = true
		close(s.entered)
		<-s.release
	}
	return s.memory.Write(event)
}

func (s *gatedSink) Close(ctx context.Context) error {
	return s.memory.Close(ctx)
}

func (s *gatedSink) waitForWriter(t *testing.T) {
	t.Helper()
	select {
	case <-s.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("dispatch goroutine never reached the sink")
	}
}
