package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/roach88/authsync/internal/model"
)

// Scenario is one linking scenario: a tenant's initial authorities, a
// sequence of steps against the link services, and assertions on the final
// state.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Rules is a CUE rules file relative to the scenario file. The embedded
	// default rules are used when empty.
	Rules string `yaml:"rules,omitempty"`

	// PageSize overrides the number of links per change event.
	PageSize int `yaml:"page_size,omitempty"`

	SourceFiles []SourceFileSpec `yaml:"source_files,omitempty"`
	Authorities []AuthoritySpec  `yaml:"authorities,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`

	dir string
}

// SourceFileSpec seeds one authority source file.
type SourceFileSpec struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// AuthoritySpec seeds one authority.
type AuthoritySpec struct {
	ID         string      `yaml:"id"`
	NaturalID  string      `yaml:"natural_id"`
	SourceFile string      `yaml:"source_file,omitempty"`
	Fields     []FieldSpec `yaml:"fields"`
}

// FieldSpec is a MARC field. Each subfield is written "<code> <value>".
type FieldSpec struct {
	Tag       string   `yaml:"tag"`
	Ind1      string   `yaml:"ind1,omitempty"`
	Ind2      string   `yaml:"ind2,omitempty"`
	Subfields []string `yaml:"subfields"`
}

// Step is one action. Exactly one of the action fields is set.
type Step struct {
	Suggest         *SuggestStep         `yaml:"suggest,omitempty"`
	UpdateLinks     *UpdateLinksStep     `yaml:"update_links,omitempty"`
	UpdateAuthority *UpdateAuthorityStep `yaml:"update_authority,omitempty"`
	DeleteAuthority *DeleteAuthorityStep `yaml:"delete_authority,omitempty"`

	// Expect is checked against the step's outcome when present.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Kind names the action of the step.
func (s Step) Kind() string {
	switch {
	case s.Suggest != nil:
		return StepSuggest
	case s.UpdateLinks != nil:
		return StepUpdateLinks
	case s.UpdateAuthority != nil:
		return StepUpdateAuthority
	case s.DeleteAuthority != nil:
		return StepDeleteAuthority
	}
	return ""
}

// Step kinds.
const (
	StepSuggest         = "suggest"
	StepUpdateLinks     = "update_links"
	StepUpdateAuthority = "update_authority"
	StepDeleteAuthority = "delete_authority"
)

// SuggestStep asks for link suggestions for a bib record.
type SuggestStep struct {
	Fields            []FieldSpec `yaml:"fields"`
	SearchBy          string      `yaml:"search_by,omitempty"`
	IgnoreAutoLinking bool        `yaml:"ignore_auto_linking,omitempty"`
}

// UpdateLinksStep replaces the links of an instance.
type UpdateLinksStep struct {
	Instance string     `yaml:"instance"`
	Links    []LinkSpec `yaml:"links"`
}

// LinkSpec is one incoming link of an UpdateLinksStep.
type LinkSpec struct {
	Authority string   `yaml:"authority"`
	NaturalID string   `yaml:"natural_id,omitempty"`
	Tag       string   `yaml:"tag"`
	Rule      int      `yaml:"rule"`
	Subfields []string `yaml:"subfields"`
}

// UpdateAuthorityStep force-updates an authority. Empty NaturalID and nil
// Fields keep the stored values.
type UpdateAuthorityStep struct {
	ID        string      `yaml:"id"`
	NaturalID string      `yaml:"natural_id,omitempty"`
	Fields    []FieldSpec `yaml:"fields,omitempty"`
}

// DeleteAuthorityStep deletes an authority.
type DeleteAuthorityStep struct {
	ID string `yaml:"id"`
}

// Expect is the expected outcome of a step. Only the keys that apply to the
// step's kind may be set.
type Expect struct {
	// Fields is the expected suggestion per bib field, in order.
	Fields []FieldExpect `yaml:"fields,omitempty"`

	Links   *int           `yaml:"links,omitempty"`
	Deleted *int           `yaml:"deleted,omitempty"`
	Invalid map[string]int `yaml:"invalid,omitempty"`
	Events  *int           `yaml:"events,omitempty"`

	// Unsupported expects an authority update that was stored but not
	// propagated.
	Unsupported bool `yaml:"unsupported,omitempty"`
}

// FieldExpect is the expected link details of one suggested field. Empty
// keys are not checked.
type FieldExpect struct {
	Tag       string   `yaml:"tag"`
	Status    string   `yaml:"status,omitempty"`
	Rule      int      `yaml:"rule,omitempty"`
	Authority string   `yaml:"authority,omitempty"`
	Error     string   `yaml:"error,omitempty"`
	Subfields []string `yaml:"subfields,omitempty"`
}

// Assertion checks the final state of a scenario.
type Assertion struct {
	Type string `yaml:"type"`

	Authority string   `yaml:"authority,omitempty"`
	Instance  string   `yaml:"instance,omitempty"`
	Event     string   `yaml:"event,omitempty"`
	Tags      []string `yaml:"tags,omitempty"`
	Count     int      `yaml:"count"`
}

// Assertion types.
const (
	AssertLinkCount     = "link_count"
	AssertInstanceLinks = "instance_links"
	AssertEventCount    = "event_count"
	AssertEventLinks    = "event_links"
)

// LoadScenario reads and validates a scenario file. Unknown keys are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.dir = filepath.Dir(path)
	if s.Rules != "" && !filepath.IsAbs(s.Rules) {
		s.Rules = filepath.Join(s.dir, s.Rules)
	}
	if s.Rules != "" {
		if _, err := os.Stat(s.Rules); err != nil {
			return nil, fmt.Errorf("%s: rules file: %w", path, err)
		}
	}
	return s, nil
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, sf := range s.SourceFiles {
		if err := validUUID(sf.ID); err != nil {
			return fmt.Errorf("source_files[%d].id: %w", i, err)
		}
		if sf.Name == "" {
			return fmt.Errorf("source_files[%d]: name is required", i)
		}
	}
	for i, a := range s.Authorities {
		if err := validUUID(a.ID); err != nil {
			return fmt.Errorf("authorities[%d].id: %w", i, err)
		}
		if a.SourceFile != "" {
			if err := validUUID(a.SourceFile); err != nil {
				return fmt.Errorf("authorities[%d].source_file: %w", i, err)
			}
		}
		if err := validateFields(a.Fields); err != nil {
			return fmt.Errorf("authorities[%d]: %w", i, err)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	set := 0
	for _, p := range []bool{step.Suggest != nil, step.UpdateLinks != nil, step.UpdateAuthority != nil, step.DeleteAuthority != nil} {
		if p {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one action is required, got %d", set)
	}

	switch {
	case step.Suggest != nil:
		if err := validateFields(step.Suggest.Fields); err != nil {
			return err
		}
		switch step.Suggest.SearchBy {
		case "", "NATURAL_ID", "ID":
		default:
			return fmt.Errorf("search_by must be NATURAL_ID or ID, got %q", step.Suggest.SearchBy)
		}
	case step.UpdateLinks != nil:
		if err := validUUID(step.UpdateLinks.Instance); err != nil {
			return fmt.Errorf("instance: %w", err)
		}
		for i, l := range step.UpdateLinks.Links {
			if err := validUUID(l.Authority); err != nil {
				return fmt.Errorf("links[%d].authority: %w", i, err)
			}
			if l.Tag == "" {
				return fmt.Errorf("links[%d]: tag is required", i)
			}
		}
	case step.UpdateAuthority != nil:
		if err := validUUID(step.UpdateAuthority.ID); err != nil {
			return fmt.Errorf("id: %w", err)
		}
		if err := validateFields(step.UpdateAuthority.Fields); err != nil {
			return err
		}
	case step.DeleteAuthority != nil:
		if err := validUUID(step.DeleteAuthority.ID); err != nil {
			return fmt.Errorf("id: %w", err)
		}
	}

	if step.Expect != nil && len(step.Expect.Fields) > 0 && step.Suggest == nil {
		return fmt.Errorf("expect.fields only applies to suggest")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertLinkCount:
		if err := validUUID(a.Authority); err != nil {
			return fmt.Errorf("link_count authority: %w", err)
		}
	case AssertInstanceLinks:
		if err := validUUID(a.Instance); err != nil {
			return fmt.Errorf("instance_links instance: %w", err)
		}
	case AssertEventCount, AssertEventLinks:
		switch a.Event {
		case "", "UPDATE", "DELETE":
		default:
			return fmt.Errorf("%s: unknown event type %q", a.Type, a.Event)
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("%s: count must be >= 0", a.Type)
	}
	return nil
}

func validateFields(fields []FieldSpec) error {
	for i, f := range fields {
		if f.Tag == "" {
			return fmt.Errorf("fields[%d]: tag is required", i)
		}
		for j, sf := range f.Subfields {
			if sf == "" {
				return fmt.Errorf("fields[%d].subfields[%d]: empty subfield", i, j)
			}
		}
	}
	return nil
}

func validUUID(s string) error {
	if s == "" {
		return fmt.Errorf("is required")
	}
	if _, err := uuid.Parse(s); err != nil {
		return fmt.Errorf("%q: %w", s, err)
	}
	return nil
}

// ParseSubfield splits "<code> <value>" into a subfield. A bare code yields
// an empty value.
func ParseSubfield(s string) model.Subfield {
	code, value, _ := strings.Cut(s, " ")
	return model.Subfield{Code: code, Value: value}
}

func formatSubfield(sf model.Subfield) string {
	if sf.Value == "" {
		return sf.Code
	}
	return sf.Code + " " + sf.Value
}

func (f FieldSpec) toModel() model.Field {
	out := model.Field{Tag: f.Tag, Ind1: f.Ind1, Ind2: f.Ind2, Subfields: make([]model.Subfield, len(f.Subfields))}
	for i, s := range f.Subfields {
		out.Subfields[i] = ParseSubfield(s)
	}
	return out
}

func toModelFields(fs []FieldSpec) []model.Field {
	out := make([]model.Field, len(fs))
	for i, f := range fs {
		out[i] = f.toModel()
	}
	return out
}
