package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data, "ignored in json")
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.NotContains(t, buf.String(), "ignored in json")
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(CodeSortCyclic, "Cyclic interaction between A.esp and B.esp", map[string]string{"kind": "cyclic"})
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeSortCyclic, resp.Error.Code)
	assert.Equal(t, "Cyclic interaction between A.esp and B.esp", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_JSONDoesNotEscapeHTML(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success([]string{"A&B.esp"}, ""))
	assert.Contains(t, buf.String(), "A&B.esp")
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success([]string{"b.esp"}, "b.esp\na.esp")
	require.NoError(t, err)
	assert.Equal(t, "b.esp\na.esp\n", buf.String())
}

func TestOutputFormatter_TextSuccessEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(nil, ""))
	assert.Empty(t, buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error(CodeSortGeneric, "LOOT operation failed", map[string]string{"game": "skyrimse"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E_SORT]")
	assert.Contains(t, buf.String(), "LOOT operation failed")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"game": "skyrimse"}
	err := formatter.Error(CodeSession, "no LOOT session", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E_SESSION]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailure},
		{"exit error", NewExitError(ExitCommandError, "bad config"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", NewExitError(ExitCommandError, "bad")), ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to write plugins file", cause)

	assert.Equal(t, "failed to write plugins file: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "no cause", NewExitError(ExitFailure, "no cause").Error())
}
