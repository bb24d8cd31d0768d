package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `name: minimal
description: "one step"
project: p1
steps:
  - op: generate
    stage: segments
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, "p1", s.Project)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, OpGenerate, s.Steps[0].Op)
	assert.Nil(t, s.Steps[0].Expect)
}

func TestParseScenario_Full(t *testing.T) {
	yaml := `name: full
description: "every field"
project: p1
items: 4
steps:
  - op: patch
    stage: jobs
    segment: 1
    rows: [2]
    fields: { job: "Plan meals", tags: ["a", "b"], weight: 3 }
  - op: top
    stage: pains-ranking
    segment: 1
    rows: [1, 3]
    top: false
  - op: render
    stage: canvas
    segment: 1
    pain: 2
    lang: fr
    approved: true
    expect: { outcome: ok, rows: 2 }
assertions:
  - type: trace_order
    ops: ["patch:jobs", "top:pains-ranking"]
  - type: final_state
    table: drafts
    stage: jobs
    segment: 1
    expect: { count: 3, top: 0, labels: ["a"] }
`
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	assert.Equal(t, 4, s.Items)

	patch := s.Steps[0]
	assert.Equal(t, []int{2}, patch.Rows)
	assert.Equal(t, "Plan meals", patch.Fields["job"])
	assert.Equal(t, 3, patch.Fields["weight"])

	top := s.Steps[1]
	require.NotNil(t, top.Top)
	assert.False(t, *top.Top)

	render := s.Steps[2]
	assert.Equal(t, 2, render.Pain)
	assert.True(t, render.Approved)
	require.NotNil(t, render.Expect.Rows)
	assert.Equal(t, 2, *render.Expect.Rows)

	state := s.Assertions[1]
	require.NotNil(t, state.Expect)
	assert.Equal(t, 3, *state.Expect.Count)
	assert.Equal(t, 0, *state.Expect.Top)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", minimalScenario + "assertion: []\n", "field assertion not found"},
		{"no name", "description: d\nproject: p\nsteps: [{op: generate, stage: s}]\n", "name is required"},
		{"no description", "name: n\nproject: p\nsteps: [{op: generate, stage: s}]\n", "description is required"},
		{"no project", "name: n\ndescription: d\nsteps: [{op: generate, stage: s}]\n", "project is required"},
		{"no steps", "name: n\ndescription: d\nproject: p\n", "steps list is required"},
		{"unknown op", "name: n\ndescription: d\nproject: p\nsteps: [{op: publish, stage: s}]\n", `unknown op "publish"`},
		{"no stage", "name: n\ndescription: d\nproject: p\nsteps: [{op: generate}]\n", "stage is required"},
		{"pain without segment", "name: n\ndescription: d\nproject: p\nsteps: [{op: generate, stage: s, pain: 1}]\n", "pain requires segment"},
		{"zero row", "name: n\ndescription: d\nproject: p\nsteps: [{op: approve, stage: s, rows: [0]}]\n", "row positions start at 1"},
		{"top without rows", "name: n\ndescription: d\nproject: p\nsteps: [{op: top, stage: s}]\n", "top requires rows"},
		{"patch without fields", "name: n\ndescription: d\nproject: p\nsteps: [{op: patch, stage: s, rows: [1]}]\n", "patch requires"},
		{"regenerate without field", "name: n\ndescription: d\nproject: p\nsteps: [{op: regenerate, stage: s, rows: [1]}]\n", "regenerate requires"},
		{"expect without outcome", "name: n\ndescription: d\nproject: p\nsteps: [{op: generate, stage: s, expect: {rows: 1}}]\n", "outcome is required"},
		{"unknown assertion", minimalScenario + "assertions: [{type: nope}]\n", `unknown assertion type "nope"`},
		{"order entry", minimalScenario + "assertions: [{type: trace_order, ops: [generate]}]\n", "must be op:stage"},
		{"count without op", minimalScenario + "assertions: [{type: trace_count, count: 1}]\n", "op is required"},
		{"state table", minimalScenario + "assertions: [{type: final_state, table: rows, stage: s, expect: {count: 1}}]\n", "table must be"},
		{"state expect", minimalScenario + "assertions: [{type: final_state, table: drafts, stage: s}]\n", "expect is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MissingStageTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario+"stages: missing.cue\n"), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage table")
}
