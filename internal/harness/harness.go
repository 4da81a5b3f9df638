package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/authority"
	"github.com/roach88/authsync/internal/change"
	"github.com/roach88/authsync/internal/event"
	"github.com/roach88/authsync/internal/linking"
	"github.com/roach88/authsync/internal/match"
	"github.com/roach88/authsync/internal/model"
	"github.com/roach88/authsync/internal/partition"
	"github.com/roach88/authsync/internal/rules"
	"github.com/roach88/authsync/internal/store"
	"github.com/roach88/authsync/internal/testutil"
)

// Harness executes the steps of one scenario against a scratch tenant.
type Harness struct {
	store       *store.Store
	links       *linking.Service
	authorities *authority.Service
	changes     *recordingChanges
	publisher   *event.Memory
	published   int
}

// recordingChanges keeps the last change-pipeline error, which
// authority.Service logs and swallows for unsupported changes.
type recordingChanges struct {
	next *change.Handler
	last error
}

func (r *recordingChanges) HandleUpdate(ctx context.Context, prev, next model.Authority) (int, error) {
	n, err := r.next.HandleUpdate(ctx, prev, next)
	r.last = err
	return n, err
}

func (r *recordingChanges) HandleDelete(ctx context.Context, a model.Authority) (int, error) {
	n, err := r.next.HandleDelete(ctx, a)
	r.last = err
	return n, err
}

// Run executes a scenario in a fresh database and returns its result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
//
// An error is returned only when the scenario cannot be executed at all.
// Failed expectations, failed steps and failed assertions are recorded in
// the result.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "authsync-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewDeterministicClock()
	st.SetClock(clock.Now)

	ruleList, err := loadRules(scenario)
	if err != nil {
		return nil, err
	}
	rs, err := rules.NewStatic(ruleList)
	if err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}

	opts := []partition.Option{
		partition.WithJobIDs(testutil.NewSequentialJobIDs()),
		partition.WithClock(clock.Now),
		partition.WithPageSize(scenario.PageSize),
	}
	logger := zap.NewNop()
	pub := event.NewMemory()
	changes := &recordingChanges{next: change.NewHandler(st, rs, pub, nil, logger, opts...)}

	h := &Harness{
		store:       st,
		links:       linking.NewService(st, rs, pub, nil, logger, opts...),
		authorities: authority.NewService(st, changes, authority.Standalone{}, logger),
		changes:     changes,
		publisher:   pub,
	}

	if err := h.seed(ctx, scenario); err != nil {
		return nil, fmt.Errorf("setup failed: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		h.executeStep(ctx, i, step, result)
		h.traceEvents(result)
	}
	for i, a := range scenario.Assertions {
		if err := h.evaluate(ctx, a, result); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	result.Events = pub.Events()
	return result, nil
}

func loadRules(s *Scenario) ([]rules.LinkingRule, error) {
	if s.Rules == "" {
		return rules.Default()
	}
	src, err := os.ReadFile(s.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	rs, err := rules.CompileString(string(src), filepath.Base(s.Rules))
	if err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}
	return rs, nil
}

func (h *Harness) seed(ctx context.Context, s *Scenario) error {
	for _, spec := range s.SourceFiles {
		sf := model.SourceFile{ID: uuid.MustParse(spec.ID), Name: spec.Name, BaseURL: spec.BaseURL}
		if _, err := h.authorities.CreateSourceFile(ctx, sf); err != nil {
			return fmt.Errorf("source file %s: %w", spec.ID, err)
		}
	}
	for _, spec := range s.Authorities {
		a := model.Authority{ID: uuid.MustParse(spec.ID), NaturalID: spec.NaturalID, Fields: toModelFields(spec.Fields)}
		if spec.SourceFile != "" {
			id := uuid.MustParse(spec.SourceFile)
			a.SourceFileID = &id
		}
		if _, err := h.authorities.CreateAuthority(ctx, a); err != nil {
			return fmt.Errorf("authority %s: %w", spec.ID, err)
		}
	}
	return nil
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) {
	var (
		detail map[string]any
		err    error
	)
	switch step.Kind() {
	case StepSuggest:
		detail, err = h.suggest(ctx, step.Suggest, step.Expect)
	case StepUpdateLinks:
		detail, err = h.updateLinks(ctx, step.UpdateLinks, step.Expect)
	case StepUpdateAuthority:
		detail, err = h.updateAuthority(ctx, step.UpdateAuthority, step.Expect)
	case StepDeleteAuthority:
		detail, err = h.deleteAuthority(ctx, step.DeleteAuthority)
	}
	if detail == nil {
		detail = map[string]any{}
	}
	detail["step"] = i

	var mismatch *ExpectError
	switch {
	case errors.As(err, &mismatch):
		result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.Kind(), err))
	case err != nil:
		detail["error"] = err.Error()
		result.AddError(fmt.Sprintf("steps[%d] %s failed: %v", i, step.Kind(), err))
	}
	if step.Expect != nil && step.Expect.Events != nil && err == nil {
		if got := len(h.publisher.Events()) - h.published; got != *step.Expect.Events {
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.Kind(),
				&ExpectError{Key: "events", Expected: *step.Expect.Events, Actual: got}))
		}
	}
	result.addTrace(int64(len(result.Trace)+1), step.Kind(), detail)
}

func (h *Harness) suggest(ctx context.Context, s *SuggestStep, expect *Expect) (map[string]any, error) {
	opts := linking.SuggestOptions{IgnoreAutoLinking: s.IgnoreAutoLinking, SearchBy: match.SearchBy(s.SearchBy)}
	out, err := h.links.Suggest(ctx, toModelFields(s.Fields), opts)
	if err != nil {
		return nil, err
	}
	fields := make([]any, len(out))
	for i, f := range out {
		fields[i] = fieldDetail(f)
	}
	detail := map[string]any{"fields": fields}
	if expect == nil {
		return detail, nil
	}
	return detail, checkFields(expect.Fields, out)
}

func (h *Harness) updateLinks(ctx context.Context, s *UpdateLinksStep, expect *Expect) (map[string]any, error) {
	instanceID := uuid.MustParse(s.Instance)
	incoming := make([]model.Link, len(s.Links))
	for i, l := range s.Links {
		incoming[i] = model.Link{
			InstanceID:         instanceID,
			AuthorityID:        uuid.MustParse(l.Authority),
			AuthorityNaturalID: l.NaturalID,
			BibRecordTag:       l.Tag,
			BibRecordSubfields: l.Subfields,
			LinkingRuleID:      l.Rule,
		}
	}
	res, err := h.links.UpdateInstanceLinks(ctx, instanceID, incoming)
	if err != nil {
		return nil, err
	}

	invalid := map[string]int{}
	for _, inv := range res.Invalid {
		invalid[inv.Cause]++
	}
	invalidDetail := make(map[string]any, len(invalid))
	for cause, n := range invalid {
		invalidDetail[cause] = n
	}
	detail := map[string]any{
		"instance": s.Instance,
		"links":    len(res.Links),
		"deleted":  res.Deleted,
		"invalid":  invalidDetail,
	}
	if expect == nil {
		return detail, nil
	}
	if expect.Links != nil && *expect.Links != len(res.Links) {
		return detail, &ExpectError{Key: "links", Expected: *expect.Links, Actual: len(res.Links)}
	}
	if expect.Deleted != nil && *expect.Deleted != res.Deleted {
		return detail, &ExpectError{Key: "deleted", Expected: *expect.Deleted, Actual: res.Deleted}
	}
	for cause, want := range expect.Invalid {
		if invalid[cause] != want {
			return detail, &ExpectError{Key: "invalid." + cause, Expected: want, Actual: invalid[cause]}
		}
	}
	return detail, nil
}

func (h *Harness) updateAuthority(ctx context.Context, s *UpdateAuthorityStep, expect *Expect) (map[string]any, error) {
	id := uuid.MustParse(s.ID)
	current, err := h.authorities.GetAuthority(ctx, id)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	if s.NaturalID != "" {
		next.NaturalID = s.NaturalID
	}
	if s.Fields != nil {
		next.Fields = toModelFields(s.Fields)
	}

	h.changes.last = nil
	stored, err := h.authorities.UpdateAuthority(ctx, next, true)
	if err != nil {
		return nil, err
	}
	unsupported := change.IsUnsupported(h.changes.last)
	detail := map[string]any{
		"authority":   s.ID,
		"version":     stored.Version,
		"unsupported": unsupported,
	}
	if expect != nil && expect.Unsupported != unsupported {
		return detail, &ExpectError{Key: "unsupported", Expected: expect.Unsupported, Actual: unsupported}
	}
	return detail, nil
}

func (h *Harness) deleteAuthority(ctx context.Context, s *DeleteAuthorityStep) (map[string]any, error) {
	if err := h.authorities.DeleteAuthority(ctx, uuid.MustParse(s.ID)); err != nil {
		return nil, err
	}
	return map[string]any{"authority": s.ID}, nil
}

// traceEvents appends the events published since the last call.
func (h *Harness) traceEvents(result *Result) {
	evs := h.publisher.Events()
	for _, ev := range evs[h.published:] {
		result.addTrace(int64(len(result.Trace)+1), "event", eventDetail(ev))
	}
	h.published = len(evs)
}

func fieldDetail(f model.Field) map[string]any {
	d := map[string]any{"tag": f.Tag, "subfields": subfieldStrings(f.Subfields)}
	if f.Link == nil {
		return d
	}
	d["status"] = string(f.Link.Status)
	if f.Link.RuleID != nil {
		d["rule"] = *f.Link.RuleID
	}
	if f.Link.AuthorityID != nil {
		d["authority"] = f.Link.AuthorityID.String()
	}
	if f.Link.ErrorCause != "" {
		d["error"] = f.Link.ErrorCause
	}
	return d
}

func eventDetail(ev event.ChangeEvent) map[string]any {
	tags := make([]string, 0, len(ev.UpdateTargets))
	for _, t := range ev.UpdateTargets {
		tags = append(tags, t.BibFieldTag)
	}
	sort.Strings(tags)
	changes := make([]string, len(ev.SubfieldChanges))
	for i, c := range ev.SubfieldChanges {
		changes[i] = formatSubfield(model.Subfield{Code: c.Code, Value: c.Value})
	}
	return map[string]any{
		"type":             string(ev.Type),
		"job_id":           ev.JobID.String(),
		"authority":        ev.AuthorityID.String(),
		"links":            ev.LinkCount(),
		"tags":             tags,
		"subfield_changes": changes,
	}
}

func subfieldStrings(sfs []model.Subfield) []string {
	out := make([]string, len(sfs))
	for i, sf := range sfs {
		out[i] = formatSubfield(sf)
	}
	return out
}
