// Package partition splits the links of one changed authority into bounded
// pages and turns each page into a ChangeEvent.
//
// Emit returns a Pages iterator. Pages fetches lazily with keyset pagination
// (links with id greater than the last id seen), so a page never repeats or
// skips a link while earlier pages are being processed. N links with page size
// P yield exactly ceil(N/P) events, every event sharing the job id of the
// change. The iterator is finite and cannot be restarted.
package partition

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/authsync/internal/event"
	"github.com/roach88/authsync/internal/model"
)

// DefaultPageSize is the number of links per event.
const DefaultPageSize = 100

// LinkPager pages through the links of an authority in ascending id order.
type LinkPager interface {
	FindByAuthorityIDPaged(ctx context.Context, authorityID uuid.UUID, afterID int64, limit int) ([]model.Link, error)
}

// Request describes one logical authority change.
type Request struct {
	AuthorityID     uuid.UUID
	Type            event.Type
	SubfieldChanges []event.SubfieldChange
}

// Partitioner emits change events page by page.
type Partitioner struct {
	pager    LinkPager
	jobIDs   JobIDGenerator
	pageSize int
	now      func() time.Time
}

// Option configures a Partitioner.
type Option func(*Partitioner)

// WithPageSize sets the number of links per event. Non-positive sizes are
// ignored.
func WithPageSize(n int) Option {
	return func(p *Partitioner) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// WithJobIDs sets the job id generator.
func WithJobIDs(g JobIDGenerator) Option {
	return func(p *Partitioner) { p.jobIDs = g }
}

// WithClock sets the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Partitioner) { p.now = now }
}

// New returns a partitioner over pager.
func New(pager LinkPager, opts ...Option) *Partitioner {
	p := &Partitioner{
		pager:    pager,
		jobIDs:   UUIDv7Generator{},
		pageSize: DefaultPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PageSize returns the configured page size.
func (p *Partitioner) PageSize() int {
	return p.pageSize
}

// Emit starts a change. DELETE requests always carry empty subfield changes.
func (p *Partitioner) Emit(req Request) *Pages {
	changes := req.SubfieldChanges
	if req.Type == event.TypeDelete {
		changes = nil
	}
	return &Pages{
		p:       p,
		req:     req,
		changes: changes,
		jobID:   p.jobIDs.NewJobID(),
	}
}

// Pages is a single-use iterator over the events of one change.
//
//	pages := partitioner.Emit(req)
//	for pages.Next(ctx) {
//		publish(pages.Event())
//	}
//	if err := pages.Err(); err != nil { ... }
type Pages struct {
	p       *Partitioner
	req     Request
	changes []event.SubfieldChange
	jobID   uuid.UUID

	afterID int64
	done    bool
	err     error
	current event.ChangeEvent
}

// JobID returns the job id shared by every event of the change.
func (it *Pages) JobID() uuid.UUID {
	return it.jobID
}

// Next fetches the next page. It returns false when the links are exhausted
// or a fetch failed; check Err afterwards.
func (it *Pages) Next(ctx context.Context) bool {
	if it.done {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.fail(err)
		return false
	}

	size := it.p.pageSize
	links, err := it.p.pager.FindByAuthorityIDPaged(ctx, it.req.AuthorityID, it.afterID, size)
	if err != nil {
		it.fail(fmt.Errorf("page links of authority %s after %d: %w", it.req.AuthorityID, it.afterID, err))
		return false
	}
	if len(links) == 0 {
		it.done = true
		return false
	}
	if len(links) > size {
		links = links[:size]
	}
	if len(links) < size {
		it.done = true
	}
	for _, l := range links {
		if l.ID <= it.afterID {
			it.fail(fmt.Errorf("pager returned link %d out of order after %d", l.ID, it.afterID))
			return false
		}
		it.afterID = l.ID
	}

	it.current = event.ChangeEvent{
		JobID:           it.jobID,
		AuthorityID:     it.req.AuthorityID,
		Type:            it.req.Type,
		UpdateTargets:   Targets(links),
		SubfieldChanges: it.changes,
		Timestamp:       it.p.now().UTC(),
	}
	return true
}

func (it *Pages) fail(err error) {
	it.err = err
	it.done = true
}

// Event returns the event of the current page.
func (it *Pages) Event() event.ChangeEvent {
	return it.current
}

// Err returns the error that stopped iteration, if any.
func (it *Pages) Err() error {
	return it.err
}

// Drain passes every remaining event to fn, stopping at the first error.
func (it *Pages) Drain(ctx context.Context, fn func(event.ChangeEvent) error) (int, error) {
	n := 0
	for it.Next(ctx) {
		if err := fn(it.Event()); err != nil {
			return n, err
		}
		n++
	}
	return n, it.Err()
}

// Collect returns every remaining event.
func (it *Pages) Collect(ctx context.Context) ([]event.ChangeEvent, error) {
	var out []event.ChangeEvent
	_, err := it.Drain(ctx, func(ev event.ChangeEvent) error {
		out = append(out, ev)
		return nil
	})
	return out, err
}

// Targets groups links by bib tag in order of first appearance.
func Targets(links []model.Link) []event.UpdateTarget {
	var out []event.UpdateTarget
	index := make(map[string]int)
	for _, l := range links {
		i, ok := index[l.BibRecordTag]
		if !ok {
			i = len(out)
			index[l.BibRecordTag] = i
			out = append(out, event.UpdateTarget{BibFieldTag: l.BibRecordTag})
		}
		out[i].Links = append(out[i].Links, event.LinkRef{InstanceID: l.InstanceID, LinkID: l.ID})
	}
	return out
}
