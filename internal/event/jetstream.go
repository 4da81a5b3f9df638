package event

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/tenant"
)

// HeaderTenant carries the tenant of a published event.
const HeaderTenant = "Authsync-Tenant"

// SubjectSuffix is appended to "<prefix>.<tenant>." to form the event subject.
const SubjectSuffix = "links.instance-authority"

// JetStreamAPI is the subset of nats.JetStreamContext the publisher uses.
type JetStreamAPI interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// JetStream publishes change events to a JetStream stream.
type JetStream struct {
	js     JetStreamAPI
	stream string
	prefix string
	logger *zap.Logger
}

// NewJetStream returns a publisher on stream, creating the stream with file
// storage over "<prefix>.>" if it does not exist.
func NewJetStream(js JetStreamAPI, stream, prefix string, logger *zap.Logger) (*JetStream, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := js.StreamInfo(stream); err != nil {
		logger.Info("creating stream", zap.String("stream", stream), zap.String("subjects", prefix+".>"))
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     stream,
			Subjects: []string{prefix + ".>"},
			Storage:  nats.FileStorage,
		}); err != nil {
			return nil, fmt.Errorf("add stream %s: %w", stream, err)
		}
	}
	return &JetStream{js: js, stream: stream, prefix: prefix, logger: logger}, nil
}

// Subject returns the subject events of tenant id are published on.
func (p *JetStream) Subject(id string) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, id, SubjectSuffix)
}

func (p *JetStream) Publish(ctx context.Context, ev ChangeEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.JobID, err)
	}
	id, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	return p.PublishRaw(ctx, id, ev.JobID.String(), payload)
}

func (p *JetStream) PublishAll(ctx context.Context, evs []ChangeEvent) error {
	return publishEach(ctx, p, evs)
}

// PublishRaw publishes an already encoded event for tenant id. The message id
// is derived from the job id and the payload, so a redelivered outbox row is
// deduplicated by the stream.
func (p *JetStream) PublishRaw(ctx context.Context, id, jobID string, payload []byte) error {
	sum := sha256.Sum256(payload)
	msg := nats.NewMsg(p.Subject(id))
	msg.Data = payload
	msg.Header.Set(HeaderTenant, id)

	ack, err := p.js.PublishMsg(msg, nats.Context(ctx), nats.MsgId(jobID+"-"+hex.EncodeToString(sum[:8])))
	if err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Subject, err)
	}
	p.logger.Debug("published change event",
		zap.String("subject", msg.Subject),
		zap.String("job_id", jobID),
		zap.Uint64("sequence", ack.Sequence))
	return nil
}
