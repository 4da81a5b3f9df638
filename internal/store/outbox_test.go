package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/authsync/internal/event"
)

func TestOutbox_Lifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendOutbox(ctx, []event.OutboxRecord{
		{Tenant: "diku", JobID: "job-1", Type: event.TypeUpdate, Payload: []byte(`{"n":1}`)},
		{Tenant: "diku", JobID: "job-1", Type: event.TypeUpdate, Payload: []byte(`{"n":2}`)},
		{Tenant: "diku", JobID: "job-2", Type: event.TypeDelete, Payload: []byte(`{"n":3}`)},
	}))

	pending, err := s.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, `{"n":1}`, string(pending[0].Record.Payload))
	assert.Equal(t, event.TypeDelete, pending[2].Record.Type)
	assert.Less(t, pending[0].Seq, pending[1].Seq)

	require.NoError(t, s.MarkOutboxSent(ctx, pending[0].Seq))
	require.NoError(t, s.MarkOutboxSent(ctx, pending[0].Seq))
	require.NoError(t, s.MarkOutboxFailed(ctx, pending[1].Seq, errors.New("nats: timeout")))

	n, err := s.CountPendingOutbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err = s.PendingOutbox(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "nats: timeout", pending[0].LastError)
}

func TestAppendOutbox_Empty(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.AppendOutbox(context.Background(), nil))
}
