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
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(map[string]int{"relayed": 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"relayed": float64(3)}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Error(CodeRules, "rules invalid", []string{"rules[0].id: duplicate"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeRules, resp.Error.Code)
	assert.Equal(t, "rules invalid", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

type summary struct{ n int }

func (s summary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d rules\n", s.n)
	return err
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Success("all rules valid"))
	require.NoError(t, f.Success(summary{n: 20}))
	assert.Equal(t, "all rules valid\n20 rules\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf, Verbose: verbose}

		require.NoError(t, f.Error(CodeConfig, "bad config", "HTTP_PORT"))
		assert.Contains(t, buf.String(), "Error [E_CONFIG]: bad config")
		if verbose {
			assert.Contains(t, buf.String(), "Details: HTTP_PORT")
		} else {
			assert.NotContains(t, buf.String(), "Details:")
		}
	}
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}
	cause := errors.New("connection refused")

	err := f.Fail(ExitFailure, CodeRelayFailed, "outbox not drained", cause)

	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, cause)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "connection refused", resp.Error.Details)
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}

	f.VerboseLog("opened %d tenants", 2)
	assert.Empty(t, out.String())
	assert.Equal(t, "opened 2 tenants\n", diag.String())

	f.Verbose = false
	f.VerboseLog("hidden")
	assert.Equal(t, "opened 2 tenants\n", diag.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "x"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, "x: y", WrapExitError(ExitFailure, "x", errors.New("y")).Error())
}
