package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sink receives audit events. Implementations must be safe for concurrent
// use; failures are the sink's own problem (logged, never surfaced to the
// emitting operation).
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher emits audit events best-effort. Audit failure never fails the
// audited operation: the contract is log-and-continue.
type Publisher struct {
	sink   Sink
	logger *slog.Logger
}

// NewPublisher wires a sink; a nil sink yields a no-op publisher so callers
// never need nil checks.
func NewPublisher(sink Sink, logger *slog.Logger) *Publisher {
	return &Publisher{sink: sink, logger: logger}
}

// Emit records an event, stamping the time when the caller left it zero.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil || p.sink == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := p.sink.Append(ctx, event); err != nil && p.logger != nil {
		p.logger.WarnContext(ctx, "audit emit failed",
			"action", event.Action,
			"error", err.Error(),
		)
	}
}

// MemorySink buffers events in memory for tests and local runs.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything appended so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event{}, s.events...)
}
