package main

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsTableIsComplete(t *testing.T) {
	cmds := commands()

	for _, name := range []string{"migrate", "stats", "requeue-stuck"} {
		cmd, ok := cmds[name]
		require.True(t, ok, "command %q missing", name)
		assert.Equal(t, name, cmd.name)
		assert.NotEmpty(t, cmd.description)
		assert.NotNil(t, cmd.run)
	}
}

func TestPrintUsageListsEveryCommand(t *testing.T) {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)

	defer func() {
		os.Stdout = oldStdout
	}()

	os.Stdout = w
	err = printUsage()
	require.NoError(t, w.Close())
	os.Stdout = oldStdout
	require.NoError(t, err)

	output, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	outStr := string(output)
	require.Contains(t, outStr, "Usage: catchment-admin")
	for name := range commands() {
		require.Contains(t, outStr, name)
	}
}

func TestRunRequeueStuckRejectsNonPositiveThreshold(t *testing.T) {
	err := runRequeueStuck(&commandContext{}, []string{"-older-than", "0s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-older-than must be positive")
}
