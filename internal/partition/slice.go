package partition

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/roach88/authsync/internal/model"
)

// SlicePager pages over an in-memory link set, such as the links a
// reconciliation has just saved. Links without an id are never returned.
type SlicePager struct {
	links []model.Link
}

// NewSlicePager copies links and orders them by id.
func NewSlicePager(links []model.Link) *SlicePager {
	cp := make([]model.Link, len(links))
	copy(cp, links)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].ID < cp[j].ID })
	return &SlicePager{links: cp}
}

func (s *SlicePager) FindByAuthorityIDPaged(_ context.Context, authorityID uuid.UUID, afterID int64, limit int) ([]model.Link, error) {
	var out []model.Link
	for _, l := range s.links {
		if l.AuthorityID != authorityID || l.ID <= afterID {
			continue
		}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
