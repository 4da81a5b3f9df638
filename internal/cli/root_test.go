package cli

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "authsync", cmd.Use)
	assert.Contains(t, cmd.Long, "authority")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"},
		{"rules", "validate"},
		{"rules", "list"},
		{"suggest"},
		{"outbox", "flush"},
		{"outbox", "pending"},
		{"test"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("env-file"))
}

func TestSuggestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	suggestCmd, _, err := cmd.Find([]string{"suggest"})
	require.NoError(t, err)

	searchBy := suggestCmd.Flags().Lookup("search-by")
	require.NotNil(t, searchBy)
	assert.Equal(t, "", searchBy.DefValue)

	ignore := suggestCmd.Flags().Lookup("ignore-auto-linking")
	require.NotNil(t, ignore)
	assert.Equal(t, "false", ignore.DefValue)
}

func TestOutboxCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	flushCmd, _, err := cmd.Find([]string{"outbox", "flush"})
	require.NoError(t, err)

	tenantFlag := flushCmd.InheritedFlags().Lookup("tenant")
	require.NotNil(t, tenantFlag)
	assert.Equal(t, "", tenantFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"rules", "list", "--format", "xml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// isolateEnv points the service configuration at a fresh data directory.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("DATA_DIR", dir)
	t.Setenv("RULES_DIR", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("CONSORTIUM_FILE", "")
	return dir
}
