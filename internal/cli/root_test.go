package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "schedstore", cmd.Use)
	assert.Contains(t, cmd.Long, "append-only log")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"recover"},
		{"snapshot"},
		{"log", "dump"},
		{"tasks"},
		{"locks", "list"},
		{"locks", "remove"},
		{"serve"},
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

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestTasksCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	tasksCmd, _, err := cmd.Find([]string{"tasks"})
	require.NoError(t, err)

	for _, name := range []string{"role", "env", "job", "owner", "id", "status", "instance", "host", "active", "filter"} {
		assert.NotNil(t, tasksCmd.Flags().Lookup(name), "flag --%s", name)
	}
}

func TestInvalidFormat(t *testing.T) {
	_, stderr, code := runCLI(t, "recover", "--format", "yaml")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "invalid format")
}

func TestInvalidConfig(t *testing.T) {
	_, stderr, code := runCLI(t, "recover", "--config", "testdata/missing.yaml")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "failed to load config")
}
