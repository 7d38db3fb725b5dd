package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockflow/blockflow/internal/cli"
)

func TestRunWithNoArgsPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	err := run(&out, nil)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Usage:")
}

func TestRunWithBadFlagReturnsExitError(t *testing.T) {
	var out bytes.Buffer
	err := run(&out, []string{"--no-such-flag"})
	require.Error(t, err)

	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestRunWithMissingWorkflowFileFails(t *testing.T) {
	var out bytes.Buffer
	err := run(&out, []string{"--log-level", "error", "does-not-exist.json"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to load workflow"))
}
