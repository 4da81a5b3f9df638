package harness

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/authsync/internal/event"
	"github.com/roach88/authsync/internal/model"
)

// ExpectError is a step outcome that differs from its expect clause.
type ExpectError struct {
	Key      string
	Expected any
	Actual   any
}

func (e *ExpectError) Error() string {
	return fmt.Sprintf("expect %s: expected %v, got %v", e.Key, e.Expected, e.Actual)
}

// AssertionError is a failed final-state assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v\n", ev.Seq, ev.Kind, ev.Detail)
		}
	}
	return buf.String()
}

func checkFields(want []FieldExpect, got []model.Field) error {
	if len(want) == 0 {
		return nil
	}
	if len(want) != len(got) {
		return &ExpectError{Key: "fields", Expected: len(want), Actual: len(got)}
	}
	for i, w := range want {
		f := got[i]
		key := func(k string) string { return fmt.Sprintf("fields[%d].%s", i, k) }
		if w.Tag != f.Tag {
			return &ExpectError{Key: key("tag"), Expected: w.Tag, Actual: f.Tag}
		}
		var d model.LinkDetails
		if f.Link != nil {
			d = *f.Link
		}
		if w.Status != "" && w.Status != string(d.Status) {
			return &ExpectError{Key: key("status"), Expected: w.Status, Actual: d.Status}
		}
		if w.Rule != 0 && (d.RuleID == nil || *d.RuleID != w.Rule) {
			return &ExpectError{Key: key("rule"), Expected: w.Rule, Actual: d.RuleID}
		}
		if w.Authority != "" && (d.AuthorityID == nil || d.AuthorityID.String() != w.Authority) {
			return &ExpectError{Key: key("authority"), Expected: w.Authority, Actual: d.AuthorityID}
		}
		if w.Error != "" && w.Error != d.ErrorCause {
			return &ExpectError{Key: key("error"), Expected: w.Error, Actual: d.ErrorCause}
		}
		if w.Subfields != nil {
			if actual := subfieldStrings(f.Subfields); !slices.Equal(w.Subfields, actual) {
				return &ExpectError{Key: key("subfields"), Expected: w.Subfields, Actual: actual}
			}
		}
	}
	return nil
}

func (h *Harness) evaluate(ctx context.Context, a Assertion, result *Result) error {
	switch a.Type {
	case AssertLinkCount:
		id := uuid.MustParse(a.Authority)
		counts, err := h.store.CountByAuthorityIDs(ctx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		if counts[id] != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d links to authority %s", a.Count, a.Authority),
				Actual:   fmt.Sprintf("%d links", counts[id]),
			}
		}
	case AssertInstanceLinks:
		links, err := h.store.FindByInstanceID(ctx, uuid.MustParse(a.Instance))
		if err != nil {
			return err
		}
		if len(links) != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d links on instance %s", a.Count, a.Instance),
				Actual:   fmt.Sprintf("%d links", len(links)),
			}
		}
		if a.Tags != nil {
			tags := make([]string, len(links))
			for i, l := range links {
				tags[i] = l.BibRecordTag
			}
			sort.Strings(tags)
			want := slices.Clone(a.Tags)
			sort.Strings(want)
			if !slices.Equal(want, tags) {
				return &AssertionError{
					Type:     a.Type,
					Expected: fmt.Sprintf("tags %v", want),
					Actual:   fmt.Sprintf("tags %v", tags),
				}
			}
		}
	case AssertEventCount, AssertEventLinks:
		n := 0
		for _, ev := range h.publisher.Events() {
			if a.Event != "" && ev.Type != event.Type(a.Event) {
				continue
			}
			if a.Type == AssertEventCount {
				n++
			} else {
				n += ev.LinkCount()
			}
		}
		if n != a.Count {
			what := "events"
			if a.Type == AssertEventLinks {
				what = "event links"
			}
			if a.Event != "" {
				what = a.Event + " " + what
			}
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d %s", a.Count, what),
				Actual:   fmt.Sprintf("%d", n),
				Trace:    result.Trace,
			}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
