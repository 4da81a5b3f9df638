package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/authsync/internal/metrics"
	"github.com/roach88/authsync/internal/tenant"
)

var (
	jobID      = uuid.MustParse("0195508c-4000-7000-8000-0000000000aa")
	authorityA = uuid.MustParse("0195508c-4000-7000-8000-000000000001")
	instance1  = uuid.MustParse("0195508c-4000-7000-8000-000000000101")
	instance2  = uuid.MustParse("0195508c-4000-7000-8000-000000000102")
	stamp      = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

func updateEvent() ChangeEvent {
	return ChangeEvent{
		JobID:       jobID,
		AuthorityID: authorityA,
		Type:        TypeUpdate,
		UpdateTargets: []UpdateTarget{
			{BibFieldTag: "100", Links: []LinkRef{{InstanceID: instance1, LinkID: 1}}},
			{BibFieldTag: "700", Links: []LinkRef{{InstanceID: instance1, LinkID: 2}, {InstanceID: instance2, LinkID: 3}}},
		},
		SubfieldChanges: []SubfieldChange{{Code: "a", Value: "Tesla, Nikola"}, {Code: "d", Value: ""}},
		Timestamp:       stamp,
	}
}

func deleteEvent() ChangeEvent {
	return ChangeEvent{
		JobID:         jobID,
		AuthorityID:   authorityA,
		Type:          TypeDelete,
		UpdateTargets: []UpdateTarget{{BibFieldTag: "650", Links: []LinkRef{{InstanceID: instance2, LinkID: 9}}}},
		Timestamp:     stamp.In(time.FixedZone("CET", 3600)),
	}
}

func TestChangeEventWireShape(t *testing.T) {
	tests := []struct {
		name string
		ev   ChangeEvent
	}{
		{"update_event", updateEvent()},
		{"delete_event", deleteEvent()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.MarshalIndent(tt.ev, "", "  ")
			require.NoError(t, err)
			g := goldie.New(t,
				goldie.WithFixtureDir("testdata/golden"),
				goldie.WithNameSuffix(".golden"),
			)
			g.Assert(t, tt.name, append(data, '\n'))
		})
	}
}

func TestChangeEventDecodes(t *testing.T) {
	data, err := json.Marshal(updateEvent())
	require.NoError(t, err)
	var got ChangeEvent
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, updateEvent(), got)
	assert.Equal(t, 3, got.LinkCount())
}

func TestValidate(t *testing.T) {
	require.NoError(t, updateEvent().Validate())
	require.NoError(t, deleteEvent().Validate())

	bad := deleteEvent()
	bad.SubfieldChanges = []SubfieldChange{{Code: "a", Value: "x"}}
	assert.Error(t, bad.Validate())

	bad = updateEvent()
	bad.Type = "MOVE"
	assert.Error(t, bad.Validate())

	bad = updateEvent()
	bad.JobID = uuid.Nil
	assert.Error(t, bad.Validate())
}

func TestMemoryPublisher(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.PublishAll(ctx, []ChangeEvent{updateEvent(), deleteEvent()}))
	evs := m.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, TypeUpdate, evs[0].Type)
	assert.Equal(t, TypeDelete, evs[1].Type)

	boom := errors.New("down")
	m.FailWith(boom)
	assert.ErrorIs(t, m.Publish(ctx, updateEvent()), boom)
	m.Reset()
	assert.Empty(t, m.Events())
}

type fakeOutbox struct {
	batches [][]OutboxRecord
}

func (f *fakeOutbox) AppendOutbox(_ context.Context, recs []OutboxRecord) error {
	f.batches = append(f.batches, recs)
	return nil
}

func TestOutboxPublisher(t *testing.T) {
	w := &fakeOutbox{}
	o := NewOutbox(w)

	err := o.Publish(context.Background(), updateEvent())
	assert.ErrorIs(t, err, tenant.ErrNoTenant)

	ctx := tenant.WithTenant(context.Background(), "diku")
	require.NoError(t, o.PublishAll(ctx, []ChangeEvent{updateEvent(), deleteEvent()}))
	require.NoError(t, o.PublishAll(ctx, nil))
	require.Len(t, w.batches, 1)
	require.Len(t, w.batches[0], 2)

	rec := w.batches[0][1]
	assert.Equal(t, "diku", rec.Tenant)
	assert.Equal(t, jobID.String(), rec.JobID)
	assert.Equal(t, TypeDelete, rec.Type)
	assert.JSONEq(t, `{"jobId":"`+jobID.String()+`","authorityId":"`+authorityA.String()+`","type":"DELETE",
		"updateTargets":[{"bibFieldTag":"650","links":[{"instanceId":"`+instance2.String()+`","linkId":9}]}],
		"subfieldChanges":[],"timestamp":"2025-03-01T12:00:00Z"}`, string(rec.Payload))
}

func TestMeteredPublisher(t *testing.T) {
	m := metrics.New(nil)
	mem := NewMemory()
	p := NewMetered(mem, m)
	ctx := context.Background()

	require.NoError(t, p.PublishAll(ctx, []ChangeEvent{updateEvent(), deleteEvent()}))
	mem.FailWith(errors.New("down"))
	assert.Error(t, p.Publish(ctx, updateEvent()))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("UPDATE", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("DELETE", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("UPDATE", "error")))
}
