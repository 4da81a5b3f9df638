package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/change"
	"github.com/roach88/authsync/internal/event"
	"github.com/roach88/authsync/internal/tenant"
)

// Handler handles one authority change for a tenant.
type Handler interface {
	Handle(ctx context.Context, ev change.Event) (int, error)
}

// ResolveFunc returns the change handler of a tenant.
type ResolveFunc func(ctx context.Context, tenantID string) (Handler, error)

// Consumer feeds queued authority changes to their tenant's handler, one at a
// time.
type Consumer struct {
	queue    *eventQueue
	clock    *Clock
	resolve  ResolveFunc
	executor *tenant.Executor
	logger   *zap.Logger
}

// NewConsumer returns a consumer. A nil logger disables logging.
func NewConsumer(resolve ResolveFunc, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		queue:    newEventQueue(),
		clock:    NewClock(),
		resolve:  resolve,
		executor: tenant.NewExecutor(logger),
		logger:   logger,
	}
}

// Enqueue queues ev for tenantID. It returns false once the consumer has
// stopped.
func (c *Consumer) Enqueue(tenantID string, ev change.Event) bool {
	return c.queue.Enqueue(Item{Seq: c.clock.Next(), Tenant: tenantID, Event: ev})
}

// Len returns the number of queued changes.
func (c *Consumer) Len() int {
	return c.queue.Len()
}

// Run processes queued changes until ctx ends or Stop is called and the
// queue has drained. It returns ctx.Err() on cancellation and nil on Stop.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer starting")
	for {
		if it, ok := c.queue.TryDequeue(); ok {
			if err := c.process(ctx, it); err != nil {
				c.logItemError(it, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping: context cancelled")
			c.queue.Close()
			return ctx.Err()
		case <-c.queue.Wait():
			// The signal channel is closed by Stop; an empty queue then
			// means there is nothing left to drain.
			if c.queue.Len() == 0 && c.stopped() {
				c.logger.Info("consumer stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once the queued changes are handled.
func (c *Consumer) Stop() {
	c.queue.Close()
}

func (c *Consumer) stopped() bool {
	c.queue.mu.Lock()
	defer c.queue.mu.Unlock()
	return c.queue.closed
}

func (c *Consumer) process(ctx context.Context, it Item) error {
	return c.executor.RunAs(ctx, it.Tenant, func(ctx context.Context) error {
		h, err := c.resolve(ctx, it.Tenant)
		if err != nil {
			return fmt.Errorf("resolve handler: %w", err)
		}
		n, err := h.Handle(ctx, it.Event)
		if err != nil {
			return err
		}
		c.logger.Debug("authority change handled",
			zap.Int64("seq", it.Seq),
			zap.String("tenant", it.Tenant),
			zap.Stringer("authority_id", authorityID(it.Event)),
			zap.Int("events", n))
		return nil
	})
}

// logItemError records enough context to replay the change by hand.
func (c *Consumer) logItemError(it Item, err error) {
	fields := []zap.Field{
		zap.Int64("seq", it.Seq),
		zap.String("tenant", it.Tenant),
		zap.String("type", string(it.Event.Type)),
		zap.Stringer("authority_id", authorityID(it.Event)),
		zap.Error(err),
	}
	if change.IsUnsupported(err) {
		c.logger.Warn("authority change not propagated", fields...)
		return
	}
	c.logger.Error("authority change failed", fields...)
}

func authorityID(ev change.Event) uuid.UUID {
	if ev.Type == event.TypeDelete {
		return ev.Old.ID
	}
	return ev.New.ID
}
