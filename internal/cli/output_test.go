package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/canvaspipe/internal/ir"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data, nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("ignored", func(w io.Writer) {
		fmt.Fprintln(w, "3 stages approved")
	})
	require.NoError(t, err)
	assert.Equal(t, "3 stages approved\n", buf.String())
}

func TestOutputFormatter_TextSuccessWithoutRenderer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("plain", nil))
	assert.Equal(t, "plain\n", buf.String())
}

func TestOutputFormatter_FailPipelineError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	scope := ir.Scope{ProjectID: "p1", SegmentID: "s1"}
	pipelineErr := ir.UpstreamUnmet("pains", "jobs", scope)
	err := formatter.Fail("generate", pipelineErr)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, errors.Is(err, pipelineErr))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(ir.CodeUpstreamUnmet), resp.Error.Code)
	assert.Equal(t, "pains", resp.Error.Stage)
	assert.Equal(t, scope.Key(), resp.Error.Scope)
	assert.False(t, resp.Error.Retryable)
}

func TestOutputFormatter_FailRetryable(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Fail("approve", ir.Transient("write approved set", errors.New("database is locked")))
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(ir.CodeTransientStore), resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
	assert.Contains(t, resp.Error.Message, "database is locked")
}

func TestOutputFormatter_FailPlainError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Fail("render", errors.New("boom"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E001]: boom")
}

func TestOutputFormatter_FailWith(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.FailWith(ExitCommandError, ErrCodeConfig, "load config", errors.New("bad yaml"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E002]: load config: bad yaml")
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", ir.Validation("no rows"), ExitFailure},
		{"upstream", ir.UpstreamUnmet("jobs", "segments", ir.Scope{ProjectID: "p"}), ExitFailure},
		{"conflict", ir.Conflict("r1", 1, 2), ExitFailure},
		{"not found", ir.NotFound("row %s", "r1"), ExitFailure},
		{"external", ir.External("generate", errors.New("503")), ExitCommandError},
		{"transient", ir.Transient("write", errors.New("locked")), ExitCommandError},
		{"plain", errors.New("x"), ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
}

func TestVerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	formatter.VerboseLog("compiling %s", "stages.cue")
	assert.Empty(t, out.String())
	assert.Equal(t, "compiling stages.cue\n", errOut.String())

	quiet := &OutputFormatter{Format: "text", Writer: out}
	quiet.VerboseLog("hidden")
	assert.Empty(t, out.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "inner", errors.New("x")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}
