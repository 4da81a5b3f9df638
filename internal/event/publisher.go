package event

import (
	"context"
	"sync"
)

// Publisher delivers change events downstream.
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
	PublishAll(ctx context.Context, evs []ChangeEvent) error
}

// publishEach implements PublishAll by publishing in order and stopping at
// the first failure.
func publishEach(ctx context.Context, p Publisher, evs []ChangeEvent) error {
	for _, ev := range evs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// Memory records published events. It is safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	events []ChangeEvent
	err    error
}

// NewMemory returns an empty recorder.
func NewMemory() *Memory {
	return &Memory{}
}

// FailWith makes subsequent publishes fail with err. A nil err clears it.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *Memory) Publish(_ context.Context, ev ChangeEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) PublishAll(ctx context.Context, evs []ChangeEvent) error {
	return publishEach(ctx, m, evs)
}

// Events returns a copy of the recorded events in publish order.
func (m *Memory) Events() []ChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChangeEvent(nil), m.events...)
}

// Reset drops recorded events.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.events = nil
	m.mu.Unlock()
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, ChangeEvent) error      { return nil }
func (discard) PublishAll(context.Context, []ChangeEvent) error { return nil }
