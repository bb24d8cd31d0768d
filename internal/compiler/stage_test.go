package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/registry"
)

func TestCompileStagesBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		stage: {
			segments: { shape: "project", label: "name" }
			"pains-ranking": {
				shape:    "segment"
				upstream: ["segments"]
				ranking:  true
				insert:   "augment"
				label:    "name"
				draft_store: "ranking_work"
			}
		}
	`)
	require.NoError(t, v.Err())

	stages, err := CompileStages(v)
	require.NoError(t, err)
	require.Len(t, stages, 2)

	assert.Equal(t, registry.StageID("segments"), stages[0].ID)
	assert.Equal(t, ir.ShapeProject, stages[0].Shape)
	assert.Empty(t, stages[0].Upstream)
	assert.False(t, stages[0].Ranking)

	rank := stages[1]
	assert.Equal(t, registry.StageID("pains-ranking"), rank.ID)
	assert.Equal(t, []registry.StageID{"segments"}, rank.Upstream)
	assert.True(t, rank.Ranking)
	assert.Equal(t, registry.InsertAugment, rank.Insert)
	assert.Equal(t, "ranking_work", rank.DraftStore)
	assert.Empty(t, rank.ApprovedStore)
}

func TestCompileStagesErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"no table", `other: 1`, "stage table is required"},
		{"empty table", `stage: {}`, "at least one stage"},
		{"missing shape", `stage: a: { label: "name" }`, "shape is required"},
		{"bad shape", `stage: a: { shape: "world", label: "name" }`, "shape must be one of"},
		{"missing label", `stage: a: { shape: "project" }`, "label is required"},
		{"empty label", `stage: a: { shape: "project", label: "" }`, "label must not be empty"},
		{"bad insert", `stage: a: { shape: "project", label: "x", insert: "merge" }`, "insert must be"},
		{"upstream not strings", `stage: a: { shape: "project", label: "x", upstream: [1] }`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := cuecontext.New()
			v := ctx.CompileString(tt.src)
			require.NoError(t, v.Err())

			_, err := CompileStages(v)
			require.Error(t, err)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestCompileErrorCarriesPosition(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`stage: a: { shape: "world", label: "name" }`, cue.Filename("stages.cue"))
	require.NoError(t, v.Err())

	_, err := CompileStages(v)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "stage.a.shape", ce.Field)
	assert.True(t, ce.Pos.IsValid())
	assert.Contains(t, err.Error(), "stages.cue:1:")
}

func TestLoadStagesFileMatchesDefault(t *testing.T) {
	stages, err := LoadStagesFile(filepath.Join("..", "..", "stages", "default.cue"))
	require.NoError(t, err)

	reg, err := registry.New(stages...)
	require.NoError(t, err)
	assert.Equal(t, registry.Default().Stages(), reg.Stages())
}

func TestLoadRegistryRejectsCycle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stages.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
stage: {
	a: {shape: "segment", upstream: ["b"], label: "name"}
	b: {shape: "segment", upstream: ["a"], label: "name"}
}
`), 0o644))

	_, err := LoadRegistry(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycles")
}

func TestLoadStagesFileMissing(t *testing.T) {
	_, err := LoadStagesFile(filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)
}

func TestLoadStagesFileWrongExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stage: {}"), 0o644))

	_, err := LoadStagesFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a .cue file")
}
