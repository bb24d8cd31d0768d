package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cliRun executes one command against the database at db with an empty
// environment and returns stdout.
func cliRun(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := newRootCommand(&RootOptions{Getenv: func(string) string { return "" }})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--db", db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

type rowRef struct {
	ID  string `json:"id"`
	Top bool   `json:"top"`
}

func decodeData(t *testing.T, out string, into any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, into))
}

func TestStagesList(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cp.db")
	out, err := cliRun(t, db, "stages", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "pains-ranking")
	assert.Contains(t, out, "replace,ranking")

	out, err = cliRun(t, db, "--format", "json", "stages", "list")
	require.NoError(t, err)
	var infos []StageInfo
	decodeData(t, out, &infos)
	require.NotEmpty(t, infos)
	assert.Equal(t, "segments", string(infos[0].ID))
	assert.Equal(t, "project", infos[0].Shape)
}

func TestStagesValidateBuiltIn(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cp.db")
	out, err := cliRun(t, db, "--format", "json", "stages", "validate")
	require.NoError(t, err)
	var res StagesValidation
	decodeData(t, out, &res)
	assert.True(t, res.Valid)
	assert.Equal(t, "built-in", res.Source)
	assert.Equal(t, 14, res.Stages)
}

func TestStagesValidateBrokenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stages.cue")
	require.NoError(t, os.WriteFile(path, []byte("stage: segments: {shape: \"galaxy\"}\n"), 0o644))

	out, err := cliRun(t, filepath.Join(dir, "cp.db"), "--format", "json", "stages", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeStages, resp.Error.Code)
}

func TestPipelineWalkThroughCLI(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cp.db")

	// Nothing approved: segment stages are blocked.
	out, err := cliRun(t, db, "gate", "can-enter", "jobs", "--project", "p1", "--segment", "s1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "blocked by segments")

	out, err = cliRun(t, db, "--format", "json", "drafts", "generate", "segments", "--project", "p1")
	require.NoError(t, err)
	var generated []rowRef
	decodeData(t, out, &generated)
	require.Len(t, generated, 3)

	out, err = cliRun(t, db, "--format", "json", "approve", "segments", "--project", "p1",
		"--ids", generated[0].ID+","+generated[1].ID)
	require.NoError(t, err)
	var approved struct {
		Records []struct {
			SourceDraftID string `json:"source_draft_id"`
		} `json:"records"`
	}
	decodeData(t, out, &approved)
	require.Len(t, approved.Records, 2)
	segment := approved.Records[0].SourceDraftID
	assert.Equal(t, generated[0].ID, segment)

	out, err = cliRun(t, db, "gate", "can-enter", "jobs", "--project", "p1", "--segment", segment)
	require.NoError(t, err)
	assert.Contains(t, out, "jobs: enterable")

	out, err = cliRun(t, db, "--format", "json", "gate", "progress", "--project", "p1")
	require.NoError(t, err)
	var progress []struct {
		SegmentID    string   `json:"segment_id"`
		Approved     []string `json:"approved"`
		CurrentStage string   `json:"current_stage"`
	}
	decodeData(t, out, &progress)
	require.Len(t, progress, 2)
	assert.Equal(t, segment, progress[0].SegmentID)
	assert.Equal(t, []string{"segments"}, progress[0].Approved)
	assert.Equal(t, "jobs", progress[0].CurrentStage)

	out, err = cliRun(t, db, "--format", "json", "revoke", "segments", "--project", "p1")
	require.NoError(t, err)
	var revoked struct {
		Revoked int `json:"revoked"`
	}
	decodeData(t, out, &revoked)
	assert.Equal(t, 2, revoked.Revoked)

	_, err = cliRun(t, db, "gate", "can-enter", "jobs", "--project", "p1", "--segment", segment)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestGenerateBlockedStage(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cp.db")

	out, err := cliRun(t, db, "--format", "json", "drafts", "generate", "pains", "--project", "p1", "--segment", "s1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UPSTREAM_UNMET", resp.Error.Code)
	assert.Equal(t, "pains", resp.Error.Stage)
}

func TestDraftsEditing(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cp.db")

	out, err := cliRun(t, db, "--format", "json", "drafts", "generate", "segments", "--project", "p1")
	require.NoError(t, err)
	var rows []rowRef
	decodeData(t, out, &rows)
	require.Len(t, rows, 3)

	out, err = cliRun(t, db, "drafts", "patch", "segments", rows[0].ID, "--fields", `{"name":"Busy parents"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "patched "+rows[0].ID)

	_, err = cliRun(t, db, "drafts", "patch", "segments", rows[0].ID, "--fields", `{"name":`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = cliRun(t, db, "drafts", "patch", "segments", rows[0].ID, "--fields", `{"name":"x"}`, "--if-version", "99")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, err = cliRun(t, db, "drafts", "delete", "segments", rows[2].ID, rows[2].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	out, err = cliRun(t, db, "drafts", "list", "segments", "--project", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "Busy parents")
	assert.NotContains(t, out, rows[2].ID)

	out, err = cliRun(t, db, "regen", "segments", rows[0].ID, "name", "--project", "p1", "--context", "shorter")
	require.NoError(t, err)
	assert.Contains(t, out, "Busy parents [shorter] (revised)")
}

func TestTranslateCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cp.db")

	_, err := cliRun(t, db, "drafts", "generate", "segments", "--project", "p1")
	require.NoError(t, err)
	_, err = cliRun(t, db, "approve", "segments", "--project", "p1", "--all")
	require.NoError(t, err)

	out, err := cliRun(t, db, "--format", "json", "translate", "segments", "--project", "p1", "--approved", "--lang", "fr")
	require.NoError(t, err)
	var view struct {
		Approved bool `json:"approved"`
		Rows     []struct {
			Label      string `json:"label"`
			Translated bool   `json:"translated"`
		} `json:"rows"`
	}
	decodeData(t, out, &view)
	assert.True(t, view.Approved)
	require.Len(t, view.Rows, 3)
	for _, row := range view.Rows {
		assert.True(t, row.Translated)
		assert.Contains(t, row.Label, "[fr] ")
	}

	out, err = cliRun(t, db, "translate", "segments", "--project", "p1", "--approved", "--lang", "en")
	require.NoError(t, err)
	assert.NotContains(t, out, "[en]")
}

func TestTranslateKeysSubset(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cp.db")

	_, err := cliRun(t, db, "drafts", "generate", "segments", "--project", "p1")
	require.NoError(t, err)

	out, err := cliRun(t, db, "--format", "json", "translate", "segments", "--project", "p1",
		"--lang", "fr", "--keys", "description")
	require.NoError(t, err)
	var view struct {
		Keys []string `json:"keys"`
		Rows []struct {
			Label   string            `json:"label"`
			Payload map[string]string `json:"payload"`
		} `json:"rows"`
	}
	decodeData(t, out, &view)
	assert.Equal(t, []string{"description"}, view.Keys)
	require.NotEmpty(t, view.Rows)
	for _, row := range view.Rows {
		assert.NotContains(t, row.Label, "[fr]")
		assert.Contains(t, row.Payload["description"], "[fr] ")
	}
}

func TestApproveIfVersion(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cp.db")

	_, err := cliRun(t, db, "drafts", "generate", "segments", "--project", "p1")
	require.NoError(t, err)
	_, err = cliRun(t, db, "drafts", "generate", "segments", "--project", "p1")
	require.NoError(t, err)

	out, err := cliRun(t, db, "--format", "json", "approve", "segments", "--project", "p1", "--all", "--if-version", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONFLICT", resp.Error.Code)

	_, err = cliRun(t, db, "approve", "segments", "--project", "p1", "--all", "--if-version", "2")
	require.NoError(t, err)
}

func TestBatchCommandsDefaultToApprovedSegments(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cp.db")

	_, err := cliRun(t, db, "drafts", "generate", "segments", "--project", "p1")
	require.NoError(t, err)
	_, err = cliRun(t, db, "approve", "segments", "--project", "p1", "--all")
	require.NoError(t, err)

	out, err := cliRun(t, db, "--format", "json", "drafts", "generate-all", "jobs", "--project", "p1")
	require.NoError(t, err)
	var report struct {
		Results []struct {
			Rows int `json:"rows"`
		} `json:"results"`
	}
	decodeData(t, out, &report)
	assert.Len(t, report.Results, 3)

	out, err = cliRun(t, db, "--format", "json", "approve-all", "jobs", "--project", "p1")
	require.NoError(t, err)
	decodeData(t, out, &report)
	require.Len(t, report.Results, 3)
	for _, res := range report.Results {
		assert.Equal(t, 3, res.Rows)
	}

	_, err = cliRun(t, db, "drafts", "generate-all", "canvas", "--project", "p1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestApproveRequiresIDsOrAll(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cp.db")
	_, err := cliRun(t, db, "approve", "segments", "--project", "p1")
	require.Error(t, err)
}
