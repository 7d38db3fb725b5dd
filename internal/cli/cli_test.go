package cli_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockflow/blockflow/internal/cli"
)

func TestParsePositionalPathAndDefaults(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	cfg, exit, err := cli.Parse([]string{"flow.yaml"}, &out)
	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, "flow.yaml", cfg.WorkflowPath)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
}

func TestParseVariables(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	cfg, exit, err := cli.Parse([]string{
		"--var", "region=eu",
		"--var", "limit=5",
		"--var", `tags=["a","b"]`,
		"--workflow", "flow.json",
	}, &out)
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, "eu", cfg.Variables["region"])
	assert.Equal(t, float64(5), cfg.Variables["limit"])
	assert.Equal(t, []any{"a", "b"}, cfg.Variables["tags"])
}

func TestParseNoPathPrintsUsage(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	cfg, exit, err := cli.Parse(nil, &out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "WORKFLOW_PATH")
}

func TestParseRejectsBadLogSettings(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	_, _, err := cli.Parse([]string{"--log-format", "xml", "flow.json"}, &out)
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)

	_, _, err = cli.Parse([]string{"--log-level", "loud", "flow.json"}, &out)
	require.ErrorAs(t, err, &exitErr)

	_, _, err = cli.Parse([]string{"--var", "novalue", "flow.json"}, &out)
	require.ErrorAs(t, err, &exitErr)
}
