package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/authsync/internal/model"
)

func TestCreateAuthority_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := createTestAuthority("n1", "Tesla, Nikola")

	first, err := s.CreateAuthority(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Version)

	second, err := s.CreateAuthority(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	a.Fields[0].Subfields[0].Value = "Edison, Thomas"
	_, err = s.CreateAuthority(ctx, a)
	assert.True(t, IsConflict(err), "different content under same id: %v", err)
}

func TestUpdateAuthority_OptimisticLock(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	created, err := s.CreateAuthority(ctx, createTestAuthority("n1", "Tesla, Nikola"))
	require.NoError(t, err)

	edit := created.Clone()
	edit.Fields[0].Subfields[0].Value = "Tesla, N."
	updated, err := s.UpdateAuthority(ctx, edit, false)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Version)

	// edit still carries version 0.
	_, err = s.UpdateAuthority(ctx, edit, false)
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	noop, err := s.UpdateAuthority(ctx, updated, false)
	require.NoError(t, err)
	assert.Equal(t, updated, noop, "unchanged content is not re-versioned")

	stale := created.Clone()
	stale.NaturalID = "n2"
	forced, err := s.UpdateAuthority(ctx, stale, true)
	require.NoError(t, err)
	assert.Equal(t, 2, forced.Version)
	assert.Equal(t, "n2", forced.NaturalID)
}

func TestArchiveAuthority(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	created, err := s.CreateAuthority(ctx, createTestAuthority("n1", "Tesla, Nikola"))
	require.NoError(t, err)

	archived, err := s.ArchiveAuthority(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, archived.Deleted)
	assert.Equal(t, 1, archived.Version)

	again, err := s.ArchiveAuthority(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, archived, again)

	_, err = s.UpdateAuthority(ctx, archived, false)
	assert.True(t, IsNotFound(err))

	content, err := s.FetchByIDs(ctx, []uuid.UUID{created.ID})
	require.NoError(t, err)
	assert.Empty(t, content, "archived authorities are not linkable")

	list, err := s.ListArchived(ctx, archived.UpdatedAt.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	list, err = s.ListArchived(ctx, archived.UpdatedAt)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.DeleteAuthority(ctx, created.ID))
	_, err = s.GetAuthority(ctx, created.ID)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, s.DeleteAuthority(ctx, created.ID))
}

func TestFetchByIDs_JoinsSourceFileBaseURL(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sf, err := s.CreateSourceFile(ctx, model.SourceFile{
		ID:      uuid.New(),
		Name:    "LC Name Authority File",
		BaseURL: "http://id.loc.gov/authorities/names/",
		Codes:   []string{"n", "nb"},
	})
	require.NoError(t, err)

	withFile := createTestAuthority("n83169267", "Tesla, Nikola")
	withFile.SourceFileID = &sf.ID
	bare := createTestAuthority("local1", "Edison, Thomas")
	for _, a := range []model.Authority{withFile, bare} {
		_, err := s.CreateAuthority(ctx, a)
		require.NoError(t, err)
	}

	content, err := s.FetchByIDs(ctx, []uuid.UUID{withFile.ID, bare.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, content, 2)

	byID := map[uuid.UUID]model.AuthorityContent{}
	for _, c := range content {
		byID[c.AuthorityID] = c
	}
	assert.Equal(t, "http://id.loc.gov/authorities/names/n83169267", byID[withFile.ID].SubfieldZero())
	assert.Equal(t, "local1", byID[bare.ID].SubfieldZero())
	assert.Equal(t, withFile.Fields, byID[withFile.ID].Fields)

	byNatural, err := s.FindByNaturalIDs(ctx, []string{"n83169267"})
	require.NoError(t, err)
	require.Len(t, byNatural, 1)
	assert.Equal(t, withFile.ID, byNatural[0].AuthorityID)

	err = s.DeleteSourceFile(ctx, sf.ID)
	assert.ErrorContains(t, err, "referenced by 1 authorities")
	assert.ErrorIs(t, err, ErrInUse)
}
