package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schedstore/internal/config"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]int{"tasks": 3}, "ignored in json mode")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"tasks": 3.0}, resp.Data)
	assert.NotContains(t, buf.String(), "ignored")
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Success(map[string]int{"tasks": 3}, "tasks: 3\n"))
	assert.Equal(t, "tasks: 3\n", buf.String())
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	require.NoError(t, formatter.Error(ErrCodeUnavailable, "failed to start storage", "disk full"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeUnavailable, resp.Error.Code)
	assert.Equal(t, "failed to start storage", resp.Error.Message)
	assert.Equal(t, "disk full", resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Error(ErrCodeGeneric, "something broke", "hidden"))
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "something broke")
	assert.NotContains(t, buf.String(), "Details:")

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error(ErrCodeGeneric, "something broke", "shown"))
	assert.Contains(t, buf.String(), "Details: shown")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			diag := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: diag,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("matched %d tasks", 4)

			assert.Empty(t, out.String(), "diagnostics never corrupt stdout")
			if tt.wantLog {
				assert.Contains(t, diag.String(), "matched 4 tasks")
			} else {
				assert.Empty(t, diag.String())
			}
		})
	}
}

func TestWrapExitError_Classifies(t *testing.T) {
	cfgErr := errors.Mark(errors.New("bad yaml"), config.ErrInvalidConfig)
	exitErr := WrapExitError("failed to load config", cfgErr)
	assert.Equal(t, ExitCommandError, exitErr.Code)
	assert.Equal(t, ErrCodeConfig, exitErr.ErrCode)

	exitErr = WrapExitError("failed", errors.New("unknown"))
	assert.Equal(t, ExitFailure, exitErr.Code)
	assert.Equal(t, ErrCodeGeneric, exitErr.ErrCode)

	assert.Equal(t, ExitCommandError, GetExitCode(errors.Wrap(NewExitError(ExitCommandError, ErrCodeNotFound, "x"), "wrapped")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
