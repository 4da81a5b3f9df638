package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/authsync/internal/event"
	"github.com/roach88/authsync/internal/model"
	"github.com/roach88/authsync/internal/partition"
	"github.com/roach88/authsync/internal/rules"
)

var (
	instanceID = uuid.MustParse("5bf370e0-8cca-4d9c-82e4-5170ab2a0a39")
	teslaID    = uuid.MustParse("0191e5c4-8d2a-7b1e-9c3f-5a6b7c8d9e01")
	edisonID   = uuid.MustParse("0191e5c4-8d2a-7b1e-9c3f-5a6b7c8d9e02")
	missingID  = uuid.MustParse("0191e5c4-8d2a-7b1e-9c3f-5a6b7c8d9e03")
	jobA       = uuid.MustParse("0191e5c4-0000-7000-8000-00000000000a")
	jobB       = uuid.MustParse("0191e5c4-0000-7000-8000-00000000000b")
	fixedNow   = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

type contentMap map[uuid.UUID]model.AuthorityContent

func (m contentMap) FetchByIDs(_ context.Context, ids []uuid.UUID) ([]model.AuthorityContent, error) {
	var out []model.AuthorityContent
	for _, id := range ids {
		if c, ok := m[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type linkList []model.Link

func (l linkList) FindByInstanceID(_ context.Context, id uuid.UUID) ([]model.Link, error) {
	var out []model.Link
	for _, link := range l {
		if link.InstanceID == id {
			out = append(out, link)
		}
	}
	return out, nil
}

type failingRules struct{}

func (failingRules) ListRules(context.Context) ([]rules.LinkingRule, error) {
	return nil, errors.New("redis: connection refused")
}

func defaultRules(t *testing.T) *rules.Static {
	t.Helper()
	rs, err := rules.NewStatic(rules.MustDefault())
	require.NoError(t, err)
	return rs
}

func authorities() contentMap {
	return contentMap{
		teslaID: {
			AuthorityID:       teslaID,
			NaturalID:         "n79021164",
			SourceFileBaseURL: "http://id.loc.gov/authorities/names",
			Fields: []model.Field{{Tag: "100", Subfields: []model.Subfield{
				{Code: "a", Value: "Tesla, Nikola,"}, {Code: "d", Value: "1856-1943"},
			}}},
		},
		edisonID: {
			AuthorityID: edisonID,
			NaturalID:   "n79060447",
			Fields: []model.Field{{Tag: "100", Subfields: []model.Subfield{
				{Code: "a", Value: "Edison, Thomas A."}, {Code: "t", Value: "Works."},
			}}},
		},
	}
}

func link(authorityID uuid.UUID, tag string, ruleID int) model.Link {
	return model.Link{
		InstanceID:         instanceID,
		AuthorityID:        authorityID,
		AuthorityNaturalID: "stale",
		BibRecordTag:       tag,
		BibRecordSubfields: []string{"a", "d"},
		LinkingRuleID:      ruleID,
	}
}

func newReconciler(t *testing.T, stored linkList, jobs ...uuid.UUID) *Reconciler {
	return New(defaultRules(t), authorities(), stored, WithPartitionOptions(
		partition.WithJobIDs(partition.NewFixedGenerator(jobs...)),
		partition.WithClock(func() time.Time { return fixedNow }),
	))
}

func TestReconcile_NewLinks(t *testing.T) {
	r := newReconciler(t, nil)

	res, err := r.Reconcile(context.Background(), instanceID, []model.Link{
		link(teslaID, "600", 9),
		link(teslaID, "100", 1),
	})
	require.NoError(t, err)

	require.Len(t, res.ToPersist, 2)
	assert.Equal(t, "100", res.ToPersist[0].BibRecordTag, "ordered by tag")
	for _, l := range res.ToPersist {
		assert.Zero(t, l.ID)
		assert.Equal(t, "n79021164", l.AuthorityNaturalID, "natural id refreshed")
		assert.Equal(t, model.LinkStatusActual, l.Status)
	}
	assert.Empty(t, res.ToDelete)
	assert.Empty(t, res.Invalid)
	assert.Equal(t, map[uuid.UUID]string{teslaID: "n79021164"}, res.NaturalIDs)
}

func TestReconcile_KeepsIDsAndDeletesAbsent(t *testing.T) {
	kept := link(teslaID, "100", 1)
	kept.ID = 7
	gone := link(teslaID, "700", 16)
	gone.ID = 8
	r := newReconciler(t, linkList{kept, gone})

	res, err := r.Reconcile(context.Background(), instanceID, []model.Link{link(teslaID, "100", 1)})
	require.NoError(t, err)

	require.Len(t, res.ToPersist, 1)
	assert.Equal(t, int64(7), res.ToPersist[0].ID)
	require.Len(t, res.ToDelete, 1)
	assert.Equal(t, []int64{8}, res.DeleteIDs())
}

func TestReconcile_InvalidLinks(t *testing.T) {
	storedMissing := link(missingID, "100", 1)
	storedMissing.ID = 3
	r := newReconciler(t, linkList{storedMissing})

	res, err := r.Reconcile(context.Background(), instanceID, []model.Link{
		link(missingID, "100", 1), // authority gone
		link(edisonID, "100", 1),  // heading has $t, rule 1 forbids it
		link(edisonID, "240", 5),  // valid: rule 5 requires $t
		link(teslaID, "650", 9),   // rule 9 targets 600
	})
	require.NoError(t, err)

	require.Len(t, res.Invalid, 3)
	causes := map[string]string{}
	for _, inv := range res.Invalid {
		causes[inv.Link.AuthorityID.String()+"/"+inv.Link.BibRecordTag] = inv.Cause
		assert.Equal(t, model.LinkStatusError, inv.Link.Status)
	}
	assert.Equal(t, model.ErrorAuthorityNotFound, causes[missingID.String()+"/100"])
	assert.Equal(t, model.ErrorAuthorityFieldInvalid, causes[edisonID.String()+"/100"])
	assert.Equal(t, model.ErrorAuthorityFieldInvalid, causes[teslaID.String()+"/650"])

	require.Len(t, res.ToPersist, 1)
	assert.Equal(t, "240", res.ToPersist[0].BibRecordTag)
	assert.Equal(t, map[uuid.UUID]string{edisonID: "n79060447"}, res.NaturalIDs, "tesla had no valid link")
	assert.Equal(t, []int64{3}, res.DeleteIDs())

	for _, inv := range res.Invalid {
		if inv.Link.AuthorityID == missingID {
			assert.Equal(t, int64(3), inv.Link.ID, "stored id carried for DELETE event")
		}
	}
}

func TestReconcile_DuplicatesKeepLast(t *testing.T) {
	r := newReconciler(t, nil)
	first := link(teslaID, "100", 1)
	second := link(teslaID, "100", 1)
	second.BibRecordSubfields = []string{"a"}

	res, err := r.Reconcile(context.Background(), instanceID, []model.Link{first, second})
	require.NoError(t, err)
	require.Len(t, res.ToPersist, 1)
	assert.Equal(t, []string{"a"}, res.ToPersist[0].BibRecordSubfields)
}

func TestReconcile_DoesNotMutateInput(t *testing.T) {
	r := newReconciler(t, nil)
	in := []model.Link{link(teslaID, "100", 1)}
	in[0].InstanceID = uuid.Nil

	_, err := r.Reconcile(context.Background(), instanceID, in)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, in[0].InstanceID)
	assert.Equal(t, "stale", in[0].AuthorityNaturalID)
}

func TestReconcile_ResolutionError(t *testing.T) {
	r := New(failingRules{}, authorities(), linkList{})

	_, err := r.Reconcile(context.Background(), instanceID, nil)
	require.Error(t, err)
	assert.True(t, IsResolutionError(err))

	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, StageRules, re.Stage)
	assert.ErrorContains(t, err, "connection refused")
}

func TestEvents(t *testing.T) {
	storedMissing := link(missingID, "100", 1)
	storedMissing.ID = 3
	r := newReconciler(t, linkList{storedMissing}, jobA, jobB)
	ctx := context.Background()

	res, err := r.Reconcile(ctx, instanceID, []model.Link{
		link(missingID, "100", 1),
		link(teslaID, "100", 1),
	})
	require.NoError(t, err)

	saved := make([]model.Link, len(res.ToPersist))
	copy(saved, res.ToPersist)
	saved[0].ID = 11

	evs, err := r.Events(ctx, res, saved)
	require.NoError(t, err)
	require.Len(t, evs, 2)

	del := evs[0]
	assert.Equal(t, event.TypeDelete, del.Type)
	assert.Equal(t, jobA, del.JobID)
	assert.Equal(t, missingID, del.AuthorityID)
	assert.Empty(t, del.SubfieldChanges)
	assert.Equal(t, []event.UpdateTarget{{BibFieldTag: "100", Links: []event.LinkRef{{InstanceID: instanceID, LinkID: 3}}}}, del.UpdateTargets)

	upd := evs[1]
	assert.Equal(t, event.TypeUpdate, upd.Type)
	assert.Equal(t, jobB, upd.JobID)
	assert.Equal(t, fixedNow, upd.Timestamp)
	assert.Equal(t, []event.SubfieldChange{
		{Code: "a", Value: "Tesla, Nikola,"},
		{Code: "d", Value: "1856-1943"},
		{Code: "b", Value: ""},
		{Code: "c", Value: ""},
		{Code: "j", Value: ""},
		{Code: "q", Value: ""},
		{Code: "0", Value: "http://id.loc.gov/authorities/names/n79021164"},
	}, upd.SubfieldChanges)
	assert.Equal(t, 1, upd.LinkCount())
}

func TestEvents_PartitionedByPageSize(t *testing.T) {
	var incoming []model.Link
	var stored linkList
	for i := 0; i < 5; i++ {
		l := link(missingID, "100", i+1)
		l.ID = int64(i + 1)
		stored = append(stored, l)
		l.ID = 0
		incoming = append(incoming, l)
	}
	r := New(defaultRules(t), authorities(), stored, WithPartitionOptions(
		partition.WithPageSize(2),
		partition.WithJobIDs(partition.NewFixedGenerator(jobA)),
	))
	ctx := context.Background()

	res, err := r.Reconcile(ctx, instanceID, incoming)
	require.NoError(t, err)
	require.Len(t, res.Invalid, 5)

	evs, err := r.Events(ctx, res, nil)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	for _, ev := range evs {
		assert.Equal(t, jobA, ev.JobID, "one job per authority change")
		assert.LessOrEqual(t, ev.LinkCount(), 2)
	}
}
