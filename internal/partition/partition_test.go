package partition

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/authsync/internal/event"
	"github.com/roach88/authsync/internal/model"
)

var (
	authorityID = uuid.MustParse("0195508c-4000-7000-8000-000000000001")
	otherAuth   = uuid.MustParse("0195508c-4000-7000-8000-000000000002")
	fixedJob    = uuid.MustParse("0195508c-4000-7000-8000-0000000000aa")
	fixedNow    = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

func makeLinks(n int, tags ...string) []model.Link {
	if len(tags) == 0 {
		tags = []string{"100"}
	}
	links := make([]model.Link, n)
	for i := range links {
		links[i] = model.Link{
			ID:            int64(i + 1),
			InstanceID:    uuid.New(),
			AuthorityID:   authorityID,
			BibRecordTag:  tags[i%len(tags)],
			LinkingRuleID: 1,
		}
	}
	return links
}

func newPartitioner(links []model.Link, size int) *Partitioner {
	return New(NewSlicePager(links),
		WithPageSize(size),
		WithJobIDs(NewFixedGenerator(fixedJob)),
		WithClock(func() time.Time { return fixedNow }))
}

func TestEmitDelete250Links(t *testing.T) {
	p := newPartitioner(makeLinks(250), 100)

	evs, err := p.Emit(Request{
		AuthorityID:     authorityID,
		Type:            event.TypeDelete,
		SubfieldChanges: []event.SubfieldChange{{Code: "a", Value: "ignored"}},
	}).Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, evs, 3)
	assert.Equal(t, []int{100, 100, 50}, []int{evs[0].LinkCount(), evs[1].LinkCount(), evs[2].LinkCount()})
	for _, ev := range evs {
		assert.Equal(t, fixedJob, ev.JobID)
		assert.Equal(t, authorityID, ev.AuthorityID)
		assert.Equal(t, event.TypeDelete, ev.Type)
		assert.Empty(t, ev.SubfieldChanges)
		assert.Equal(t, fixedNow, ev.Timestamp)
		require.NoError(t, ev.Validate())
	}
	assert.Equal(t, int64(101), evs[1].UpdateTargets[0].Links[0].LinkID)
}

func TestEmitExactMultipleHasNoEmptyPage(t *testing.T) {
	evs, err := newPartitioner(makeLinks(200), 100).
		Emit(Request{AuthorityID: authorityID, Type: event.TypeUpdate}).
		Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, evs, 2)
}

func TestEmitNoLinks(t *testing.T) {
	evs, err := newPartitioner(nil, 100).
		Emit(Request{AuthorityID: authorityID, Type: event.TypeUpdate}).
		Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestEmitGroupsByTag(t *testing.T) {
	p := newPartitioner(makeLinks(5, "100", "700"), 10)
	changes := []event.SubfieldChange{{Code: "a", Value: "Tesla, Nikola"}}

	pages := p.Emit(Request{AuthorityID: authorityID, Type: event.TypeUpdate, SubfieldChanges: changes})
	require.True(t, pages.Next(context.Background()))
	ev := pages.Event()
	require.Len(t, ev.UpdateTargets, 2)
	assert.Equal(t, "100", ev.UpdateTargets[0].BibFieldTag)
	assert.Len(t, ev.UpdateTargets[0].Links, 3)
	assert.Equal(t, "700", ev.UpdateTargets[1].BibFieldTag)
	assert.Len(t, ev.UpdateTargets[1].Links, 2)
	assert.Equal(t, changes, ev.SubfieldChanges)

	assert.False(t, pages.Next(context.Background()))
	assert.False(t, pages.Next(context.Background()), "not restartable")
	assert.NoError(t, pages.Err())
}

func TestEmitIgnoresOtherAuthorities(t *testing.T) {
	links := makeLinks(3)
	links[1].AuthorityID = otherAuth
	evs, err := newPartitioner(links, 100).
		Emit(Request{AuthorityID: authorityID, Type: event.TypeDelete}).
		Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, 2, evs[0].LinkCount())
}

type failingPager struct {
	calls  int
	failAt int
}

func (f *failingPager) FindByAuthorityIDPaged(ctx context.Context, id uuid.UUID, after int64, limit int) ([]model.Link, error) {
	f.calls++
	if f.calls == f.failAt {
		return nil, errors.New("db gone")
	}
	return NewSlicePager(makeLinks(30)).FindByAuthorityIDPaged(ctx, id, after, limit)
}

func TestEmitStopsOnPagerError(t *testing.T) {
	pager := &failingPager{failAt: 2}
	p := New(pager, WithPageSize(10), WithJobIDs(NewFixedGenerator(fixedJob)))

	n, err := p.Emit(Request{AuthorityID: authorityID, Type: event.TypeDelete}).
		Drain(context.Background(), func(event.ChangeEvent) error { return nil })
	assert.Equal(t, 1, n)
	assert.ErrorContains(t, err, "db gone")
}

func TestEmitHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pages := newPartitioner(makeLinks(5), 2).Emit(Request{AuthorityID: authorityID, Type: event.TypeDelete})
	assert.False(t, pages.Next(ctx))
	assert.ErrorIs(t, pages.Err(), context.Canceled)
}

func TestFixedGeneratorExhausted(t *testing.T) {
	g := NewFixedGenerator(fixedJob)
	assert.Equal(t, fixedJob, g.NewJobID())
	assert.Panics(t, func() { g.NewJobID() })
}

func TestPartitionBoundProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("N links at page size P yield ceil(N/P) events of at most P links", prop.ForAll(
		func(n, size int) bool {
			evs, err := New(NewSlicePager(makeLinks(n)), WithPageSize(size)).
				Emit(Request{AuthorityID: authorityID, Type: event.TypeUpdate}).
				Collect(context.Background())
			if err != nil {
				return false
			}
			if len(evs) != (n+size-1)/size {
				return false
			}
			total := 0
			seen := make(map[int64]bool)
			for _, ev := range evs {
				if ev.LinkCount() > size || ev.LinkCount() == 0 || ev.JobID != evs[0].JobID {
					return false
				}
				for _, tgt := range ev.UpdateTargets {
					for _, l := range tgt.Links {
						if seen[l.LinkID] {
							return false
						}
						seen[l.LinkID] = true
					}
				}
				total += ev.LinkCount()
			}
			return total == n
		},
		gen.IntRange(0, 600),
		gen.IntRange(1, 150),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func ExamplePages() {
	p := New(NewSlicePager(makeLinks(3)), WithPageSize(2))
	pages := p.Emit(Request{AuthorityID: authorityID, Type: event.TypeDelete})
	for pages.Next(context.Background()) {
		fmt.Println(pages.Event().LinkCount())
	}
	// Output:
	// 2
	// 1
}
