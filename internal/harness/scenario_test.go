package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_AllFixtures(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)
		assert.NotEmpty(t, s.Steps, path)
	}
}

func TestLoadScenario_ResolvesRulesPath(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/custom_rules.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "rules", "name_only.cue"), s.Rules)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestParseSubfield(t *testing.T) {
	assert.Equal(t, "a", ParseSubfield("a Tesla, Nikola,").Code)
	assert.Equal(t, "Tesla, Nikola,", ParseSubfield("a Tesla, Nikola,").Value)
	assert.Equal(t, "", ParseSubfield("b").Value)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown key",
			yaml: "name: x\ndescription: y\nstep: []\n",
			want: "field step not found",
		},
		{
			name: "missing name",
			yaml: "description: y\nsteps: [{delete_authority: {id: 0191e5c4-8d2a-7b1e-9c3f-5a6b7c8d9e01}}]\n",
			want: "name is required",
		},
		{
			name: "no steps",
			yaml: "name: x\ndescription: y\nsteps: []\n",
			want: "steps list is required",
		},
		{
			name: "two actions in one step",
			yaml: `name: x
description: y
steps:
  - delete_authority: {id: 0191e5c4-8d2a-7b1e-9c3f-5a6b7c8d9e01}
    update_authority: {id: 0191e5c4-8d2a-7b1e-9c3f-5a6b7c8d9e01}
`,
			want: "exactly one action",
		},
		{
			name: "bad uuid",
			yaml: "name: x\ndescription: y\nsteps: [{delete_authority: {id: tesla}}]\n",
			want: "steps[0]: id",
		},
		{
			name: "bad search_by",
			yaml: "name: x\ndescription: y\nsteps: [{suggest: {fields: [], search_by: \"1\"}}]\n",
			want: "search_by",
		},
		{
			name: "field expectations on a link update",
			yaml: `name: x
description: y
steps:
  - update_links: {instance: 5bf370e0-8cca-4d9c-82e4-5170ab2a0a39, links: []}
    expect: {fields: [{tag: "100"}]}
`,
			want: "expect.fields only applies to suggest",
		},
		{
			name: "unknown assertion",
			yaml: `name: x
description: y
steps: [{delete_authority: {id: 0191e5c4-8d2a-7b1e-9c3f-5a6b7c8d9e01}}]
assertions: [{type: trace_contains}]
`,
			want: "unknown assertion type",
		},
		{
			name: "unknown event type",
			yaml: `name: x
description: y
steps: [{delete_authority: {id: 0191e5c4-8d2a-7b1e-9c3f-5a6b7c8d9e01}}]
assertions: [{type: event_count, event: CREATE, count: 1}]
`,
			want: "unknown event type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
