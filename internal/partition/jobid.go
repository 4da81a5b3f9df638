package partition

import (
	"sync"

	"github.com/google/uuid"
)

// JobIDGenerator produces the job id shared by every page of one change.
type JobIDGenerator interface {
	NewJobID() uuid.UUID
}

// UUIDv7Generator generates time-sortable UUIDv7 job ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewJobID panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) NewJobID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// FixedGenerator returns predetermined job ids in order.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []uuid.UUID
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...uuid.UUID) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// NewJobID returns the next predetermined id. It panics once all ids have
// been consumed, which catches tests that start more jobs than expected.
func (g *FixedGenerator) NewJobID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all job ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
