package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
)

// SequentialJobIDs hands out job ids 00000000-0000-7000-8000-00000000000N
// for N = 1, 2, .... It never runs out, unlike partition.FixedGenerator, so
// golden scenarios need not count their jobs in advance.
type SequentialJobIDs struct {
	mu sync.Mutex
	n  uint64
}

// NewSequentialJobIDs returns a generator whose first id ends in 1.
func NewSequentialJobIDs() *SequentialJobIDs {
	return &SequentialJobIDs{}
}

// NewJobID implements partition.JobIDGenerator.
func (g *SequentialJobIDs) NewJobID() uuid.UUID {
	g.mu.Lock()
	g.n++
	n := g.n
	g.mu.Unlock()
	return JobID(n)
}

// JobID returns the n-th sequential job id.
func JobID(n uint64) uuid.UUID {
	var id uuid.UUID
	id[6] = 0x70 // version 7
	id[8] = 0x80 // RFC 4122 variant
	binary.BigEndian.PutUint64(id[8:], binary.BigEndian.Uint64(id[8:])|n)
	return id
}
