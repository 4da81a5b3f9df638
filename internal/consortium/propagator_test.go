package consortium

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/authsync/internal/authority"
	"github.com/roach88/authsync/internal/metrics"
	"github.com/roach88/authsync/internal/tenant"
)

type fakeReplayer struct {
	mu      sync.Mutex
	applied map[string][]authority.Mutation
	fail    map[string]error
}

func (f *fakeReplayer) forTenant(_ context.Context, id string) (Replayer, error) {
	if id == "unknown" {
		return nil, errors.New("no such tenant")
	}
	return replayerFunc(func(ctx context.Context, m authority.Mutation) error {
		got, _ := tenant.FromContext(ctx)
		if got != id {
			return errors.New("wrong tenant in context")
		}
		if err := f.fail[id]; err != nil {
			return err
		}
		if id == "panicky" {
			panic("boom")
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.applied[id] = append(f.applied[id], m)
		return nil
	}), nil
}

type replayerFunc func(ctx context.Context, m authority.Mutation) error

func (f replayerFunc) Apply(ctx context.Context, m authority.Mutation) error { return f(ctx, m) }

type membersFunc func(ctx context.Context, id string) ([]string, error)

func (f membersFunc) MembersOf(ctx context.Context, id string) ([]string, error) { return f(ctx, id) }

func waitReport(t *testing.T, h *Handle) Report {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := h.Wait(ctx)
	require.NoError(t, err)
	return r
}

func TestPropagator_IsolatesMemberFailure(t *testing.T) {
	fake := &fakeReplayer{
		applied: map[string][]authority.Mutation{},
		fail:    map[string]error{"member_2": errors.New("database locked")},
	}
	members := membersFunc(func(context.Context, string) ([]string, error) {
		return []string{"member_1", "member_2", "member_3"}, nil
	})
	m := metrics.New(prometheus.NewRegistry())
	p := NewPropagator(members, fake.forTenant, m, nil)

	mut := authority.Mutation{Entity: authority.EntityAuthority, Op: authority.OpUpdate, ID: uuid.New()}
	h := p.Handle(tenant.WithTenant(context.Background(), "central"), mut)
	report := waitReport(t, h)

	assert.Equal(t, []string{"member_1", "member_3"}, report.Replayed)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "member_2", report.Failed[0].Tenant)
	assert.ErrorContains(t, report.Err(), "database locked")

	assert.Len(t, fake.applied["member_1"], 1)
	assert.Len(t, fake.applied["member_3"], 1)
	assert.Equal(t, "central", fake.applied["member_1"][0].Origin)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PropagationReplays.WithLabelValues("authority", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PropagationReplays.WithLabelValues("authority", "error")))
}

func TestPropagator_ResolutionFailureAndPanicContained(t *testing.T) {
	fake := &fakeReplayer{applied: map[string][]authority.Mutation{}}
	members := membersFunc(func(context.Context, string) ([]string, error) {
		return []string{"unknown", "panicky", "good"}, nil
	})
	p := NewPropagator(members, fake.forTenant, nil, nil)

	h := p.Handle(context.Background(), authority.Mutation{Entity: authority.EntitySourceFile, Op: authority.OpCreate, Origin: "central"})
	report := waitReport(t, h)

	assert.Equal(t, []string{"good"}, report.Replayed)
	assert.Len(t, report.Failed, 2)
	p.Wait()
}

func TestPropagator_NoMembersIsNoop(t *testing.T) {
	members := membersFunc(func(context.Context, string) ([]string, error) { return nil, nil })
	p := NewPropagator(members, nil, nil, nil)

	h := p.Handle(context.Background(), authority.Mutation{Origin: "diku"})
	select {
	case <-h.Done():
	default:
		t.Fatal("handle should be done immediately")
	}
	report := waitReport(t, h)
	assert.Empty(t, report.Replayed)
	assert.NoError(t, report.Err())
}

func TestPropagator_MembershipErrorIsLogged(t *testing.T) {
	members := membersFunc(func(context.Context, string) ([]string, error) { return nil, errors.New("membership down") })
	p := NewPropagator(members, nil, nil, nil)

	report := waitReport(t, p.Handle(context.Background(), authority.Mutation{Origin: "central"}))
	assert.Empty(t, report.Failed)
}

func TestHandle_WaitAbandoned(t *testing.T) {
	block := make(chan struct{})
	members := membersFunc(func(context.Context, string) ([]string, error) { return []string{"slow"}, nil })
	resolve := func(context.Context, string) (Replayer, error) {
		return replayerFunc(func(context.Context, authority.Mutation) error {
			<-block
			return nil
		}), nil
	}
	p := NewPropagator(members, resolve, nil, nil)
	h := p.Handle(context.Background(), authority.Mutation{Origin: "central"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(block)
	report := waitReport(t, h)
	assert.Equal(t, []string{"slow"}, report.Replayed)
}
