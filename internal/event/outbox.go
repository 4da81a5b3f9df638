package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/authsync/internal/tenant"
)

// OutboxRecord is an encoded event waiting to be relayed.
type OutboxRecord struct {
	Tenant  string
	JobID   string
	Type    Type
	Payload []byte
}

// OutboxWriter appends records to durable storage.
type OutboxWriter interface {
	AppendOutbox(ctx context.Context, recs []OutboxRecord) error
}

// Outbox publishes by appending encoded events to an OutboxWriter. Records of
// one PublishAll call are appended together.
type Outbox struct {
	w OutboxWriter
}

// NewOutbox returns an outbox publisher over w.
func NewOutbox(w OutboxWriter) *Outbox {
	return &Outbox{w: w}
}

func (o *Outbox) Publish(ctx context.Context, ev ChangeEvent) error {
	return o.PublishAll(ctx, []ChangeEvent{ev})
}

func (o *Outbox) PublishAll(ctx context.Context, evs []ChangeEvent) error {
	if len(evs) == 0 {
		return nil
	}
	id, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	recs := make([]OutboxRecord, 0, len(evs))
	for _, ev := range evs {
		if err := ev.Validate(); err != nil {
			return err
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.JobID, err)
		}
		recs = append(recs, OutboxRecord{Tenant: id, JobID: ev.JobID.String(), Type: ev.Type, Payload: payload})
	}
	return o.w.AppendOutbox(ctx, recs)
}
