package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("metadata", func(t *testing.T) {
		cmd := GetRootCmd()
		assert.Equal(t, "taskpilot", cmd.Name())
		assert.Equal(t, version, cmd.Version)
	})

	t.Run("subcommands registered", func(t *testing.T) {
		cmd := GetRootCmd()

		names := map[string]bool{}
		for _, c := range cmd.Commands() {
			names[c.Name()] = true
		}
		assert.True(t, names["serve"], "serve command should exist")
		assert.True(t, names["sweep"], "sweep command should exist")
	})

	t.Run("persistent flags", func(t *testing.T) {
		cmd := GetRootCmd()
		assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
		assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
	})

	t.Run("serve help text", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"serve", "--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)
		assert.Contains(t, output.String(), "Run the taskpilot server")
	})
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, "0.1.0", GetVersion())
}
