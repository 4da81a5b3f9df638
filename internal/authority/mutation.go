package authority

import (
	"context"

	"github.com/google/uuid"

	"github.com/roach88/authsync/internal/model"
)

// Entity names a shareable record kind.
type Entity string

const (
	EntityAuthority  Entity = "authority"
	EntitySourceFile Entity = "authority-source-file"
	EntityArchive    Entity = "authority-archive"
)

// Op is a mutation kind.
type Op string

const (
	OpCreate Op = "CREATE"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Mutation describes a completed write, as replayed into other tenants.
// Authority or SourceFile carries the record as written; deletes only need ID.
type Mutation struct {
	Entity     Entity
	Op         Op
	ID         uuid.UUID
	Origin     string
	Authority  *model.Authority
	SourceFile *model.SourceFile
}

type replayKey struct{}

// WithReplay marks ctx as replaying a mutation from another tenant.
func WithReplay(ctx context.Context) context.Context {
	return context.WithValue(ctx, replayKey{}, true)
}

// IsReplay reports whether ctx replays a mutation from another tenant.
func IsReplay(ctx context.Context) bool {
	v, _ := ctx.Value(replayKey{}).(bool)
	return v
}
