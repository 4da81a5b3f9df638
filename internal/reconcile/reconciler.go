package reconcile

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/event"
	"github.com/roach88/authsync/internal/model"
	"github.com/roach88/authsync/internal/partition"
	"github.com/roach88/authsync/internal/rules"
	"github.com/roach88/authsync/internal/subfield"
)

// Reconciler computes link diffs for instances.
type Reconciler struct {
	rules     RuleSource
	content   ContentProvider
	links     LinkReader
	partition []partition.Option
	logger    *zap.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPartitionOptions sets the page size, job ids and clock used for events.
func WithPartitionOptions(opts ...partition.Option) Option {
	return func(r *Reconciler) { r.partition = append(r.partition, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a reconciler.
func New(rs RuleSource, content ContentProvider, links LinkReader, opts ...Option) *Reconciler {
	r := &Reconciler{
		rules:   rs,
		content: content,
		links:   links,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile diffs incoming against the stored links of instanceID. Incoming
// links are taken to belong to instanceID whatever their InstanceID says.
// Duplicate identities keep the last occurrence.
func (r *Reconciler) Reconcile(ctx context.Context, instanceID uuid.UUID, incoming []model.Link) (Result, error) {
	ruleList, err := r.rules.ListRules(ctx)
	if err != nil {
		return Result{}, &ResolutionError{Stage: StageRules, InstanceID: instanceID, Err: err}
	}
	ruleByID := make(map[int]rules.LinkingRule, len(ruleList))
	for _, rule := range ruleList {
		ruleByID[rule.ID] = rule
	}

	links := dedupe(instanceID, incoming)

	content, err := r.content.FetchByIDs(ctx, authorityIDs(links))
	if err != nil {
		return Result{}, &ResolutionError{Stage: StageAuthorities, InstanceID: instanceID, Err: err}
	}
	authorities := make(map[uuid.UUID]model.AuthorityContent, len(content))
	for _, c := range content {
		authorities[c.AuthorityID] = c
	}

	stored, err := r.links.FindByInstanceID(ctx, instanceID)
	if err != nil {
		return Result{}, &ResolutionError{Stage: StageLinks, InstanceID: instanceID, Err: err}
	}
	storedByKey := make(map[model.LinkKey]model.Link, len(stored))
	for _, l := range stored {
		storedByKey[l.Key()] = l
	}

	valid, invalid := partitionLinks(links, authorities, ruleByID)

	res := Result{
		InstanceID:  instanceID,
		ToPersist:   make([]model.Link, 0, len(valid)),
		ToDelete:    []model.Link{},
		Invalid:     make([]InvalidLink, 0, len(invalid)),
		NaturalIDs:  make(map[uuid.UUID]string),
		authorities: make(map[uuid.UUID]model.AuthorityContent),
		rules:       make(map[int]rules.LinkingRule),
	}

	keep := make(map[model.LinkKey]bool, len(valid))
	for _, l := range valid {
		c := authorities[l.AuthorityID]
		l.AuthorityNaturalID = c.NaturalID
		if s, ok := storedByKey[l.Key()]; ok {
			l.ID = s.ID
			l.CreatedAt = s.CreatedAt
			l.UpdatedAt = s.UpdatedAt
		} else {
			l.ID = 0
		}
		keep[l.Key()] = true
		res.ToPersist = append(res.ToPersist, l)
		res.NaturalIDs[l.AuthorityID] = c.NaturalID
		res.authorities[l.AuthorityID] = c
		res.rules[l.LinkingRuleID] = ruleByID[l.LinkingRuleID]
	}
	for _, inv := range invalid {
		if s, ok := storedByKey[inv.Link.Key()]; ok {
			inv.Link.ID = s.ID
		} else {
			inv.Link.ID = 0
		}
		res.Invalid = append(res.Invalid, inv)
	}
	for _, l := range stored {
		if !keep[l.Key()] {
			res.ToDelete = append(res.ToDelete, l)
		}
	}
	sortLinks(res.ToPersist)

	r.logger.Debug("reconciled instance links",
		zap.Stringer("instance_id", instanceID),
		zap.Int("incoming", len(incoming)),
		zap.Int("persist", len(res.ToPersist)),
		zap.Int("delete", len(res.ToDelete)),
		zap.Int("invalid", len(res.Invalid)),
	)
	return res, nil
}

// Events builds the change events for a persisted result. saved holds the
// links as stored, with ids. Invalid links that were stored produce DELETE
// events, one job per authority. Saved links produce UPDATE events carrying
// the controlled subfields and $0 of their authority, one job per authority
// and rule.
func (r *Reconciler) Events(ctx context.Context, res Result, saved []model.Link) ([]event.ChangeEvent, error) {
	var out []event.ChangeEvent

	deletes := make(map[uuid.UUID][]model.Link)
	var deleteOrder []uuid.UUID
	for _, inv := range res.Invalid {
		if inv.Link.ID == 0 {
			continue
		}
		id := inv.Link.AuthorityID
		if _, ok := deletes[id]; !ok {
			deleteOrder = append(deleteOrder, id)
		}
		deletes[id] = append(deletes[id], inv.Link)
	}
	for _, id := range deleteOrder {
		evs, err := r.emit(ctx, deletes[id], partition.Request{AuthorityID: id, Type: event.TypeDelete})
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}

	type group struct {
		authorityID uuid.UUID
		ruleID      int
	}
	updates := make(map[group][]model.Link)
	var updateOrder []group
	for _, l := range saved {
		if l.ID == 0 {
			continue
		}
		if _, ok := res.authorities[l.AuthorityID]; !ok {
			continue
		}
		if _, ok := res.rules[l.LinkingRuleID]; !ok {
			continue
		}
		g := group{l.AuthorityID, l.LinkingRuleID}
		if _, ok := updates[g]; !ok {
			updateOrder = append(updateOrder, g)
		}
		updates[g] = append(updates[g], l)
	}
	for _, g := range updateOrder {
		content := res.authorities[g.authorityID]
		rule := res.rules[g.ruleID]
		changes := SubfieldChanges(content, rule)
		evs, err := r.emit(ctx, updates[g], partition.Request{
			AuthorityID:     g.authorityID,
			Type:            event.TypeUpdate,
			SubfieldChanges: changes,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}
	return out, nil
}

func (r *Reconciler) emit(ctx context.Context, links []model.Link, req partition.Request) ([]event.ChangeEvent, error) {
	p := partition.New(partition.NewSlicePager(links), r.partition...)
	return p.Emit(req).Collect(ctx)
}

// SubfieldChanges returns the controlled subfields of the rule's authority
// field, with authority-side codes, followed by $0.
func SubfieldChanges(content model.AuthorityContent, rule rules.LinkingRule) []event.SubfieldChange {
	var out []event.SubfieldChange
	fields := content.FieldsByTag(rule.AuthorityField)
	if len(fields) == 1 {
		for _, sf := range subfield.Changes(fields[0], rule) {
			out = append(out, event.SubfieldChange{Code: sf.Code, Value: sf.Value})
		}
	}
	return append(out, event.SubfieldChange{Code: model.SubfieldNaturalID, Value: content.SubfieldZero()})
}

// partitionLinks splits links into valid and invalid sets without touching
// its inputs. An authority that did not resolve makes all of its links
// invalid.
func partitionLinks(links []model.Link, authorities map[uuid.UUID]model.AuthorityContent, ruleByID map[int]rules.LinkingRule) ([]model.Link, []InvalidLink) {
	var (
		valid   []model.Link
		invalid []InvalidLink
	)
	for _, l := range links {
		if cause := validate(l, authorities, ruleByID); cause != "" {
			l.Status = model.LinkStatusError
			l.ErrorCause = cause
			invalid = append(invalid, InvalidLink{Link: l, Cause: cause})
			continue
		}
		l.Status = model.LinkStatusActual
		l.ErrorCause = ""
		valid = append(valid, l)
	}
	return valid, invalid
}

func validate(l model.Link, authorities map[uuid.UUID]model.AuthorityContent, ruleByID map[int]rules.LinkingRule) string {
	content, ok := authorities[l.AuthorityID]
	if !ok {
		return model.ErrorAuthorityNotFound
	}
	rule, ok := ruleByID[l.LinkingRuleID]
	if !ok || rule.BibField != l.BibRecordTag {
		return model.ErrorAuthorityFieldInvalid
	}
	fields := content.FieldsByTag(rule.AuthorityField)
	if len(fields) != 1 || !rule.Accepts(fields[0]) {
		return model.ErrorAuthorityFieldInvalid
	}
	return ""
}

func dedupe(instanceID uuid.UUID, incoming []model.Link) []model.Link {
	index := make(map[model.LinkKey]int, len(incoming))
	out := make([]model.Link, 0, len(incoming))
	for _, l := range incoming {
		l = l.Clone()
		l.InstanceID = instanceID
		if i, ok := index[l.Key()]; ok {
			out[i] = l
			continue
		}
		index[l.Key()] = len(out)
		out = append(out, l)
	}
	return out
}

func authorityIDs(links []model.Link) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(links))
	var ids []uuid.UUID
	for _, l := range links {
		if !seen[l.AuthorityID] {
			seen[l.AuthorityID] = true
			ids = append(ids, l.AuthorityID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
