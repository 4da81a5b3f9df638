package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/authsync/internal/model"
)

// createTestStore creates a new temp-dir store for testing with a clock that
// advances one second per call.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestLink creates a link with minimal required fields.
func createTestLink(instanceID, authorityID uuid.UUID, tag string, ruleID int) model.Link {
	return model.Link{
		InstanceID:         instanceID,
		AuthorityID:        authorityID,
		AuthorityNaturalID: "n1",
		BibRecordTag:       tag,
		BibRecordSubfields: []string{"a", "d"},
		LinkingRuleID:      ruleID,
		Status:             model.LinkStatusActual,
	}
}

// createTestAuthority creates an authority with a single 100 heading.
func createTestAuthority(naturalID, heading string) model.Authority {
	return model.Authority{
		ID:        uuid.New(),
		NaturalID: naturalID,
		Fields: []model.Field{{
			Tag:       "100",
			Ind1:      "1",
			Subfields: []model.Subfield{{Code: "a", Value: heading}},
		}},
	}
}
