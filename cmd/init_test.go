package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	m "rie.dev/pkg/rie/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()

	tempDir := t.TempDir()
	originalWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tempDir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(originalWD)) })

	return tempDir
}

func TestInitCmd_WritesCommentedTemplate(t *testing.T) {
	tempDir := chdirTemp(t)

	out := &bytes.Buffer{}
	cmd := newRootCmd()
	cmd.AddCommand(newInitCmd())
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"init"})

	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), configFileName)

	targetPath := filepath.Join(tempDir, configFileName)

	contents, err := os.ReadFile(targetPath)
	require.NoError(t, err)

	text := string(contents)
	assert.Contains(t, text, "# Limit for entrypoints that bring up servers")
	assert.Contains(t, text, "# the busiest top-level folder")
	assert.Contains(t, text, "ledger.jsonl")

	// The template reads back through viper with the documented defaults.
	v := viper.New()
	v.SetConfigFile(targetPath)
	require.NoError(t, v.ReadInConfig())

	assert.Equal(t, currentConfigVersion, v.GetInt(configVersionKey))
	assert.Equal(t, m.TargetAuto, v.GetString(targetConfigKey))
	assert.Equal(t, m.DefaultTraceTimeout, v.GetDuration(traceTimeoutKey))
	assert.Equal(t, 15*time.Second, v.GetDuration(traceBootTimeoutKey))
	assert.Equal(t, m.DefaultInterpreter, v.GetString(traceInterpreterKey))
	assert.Empty(t, v.GetStringSlice(traceWritableKey))
	assert.Empty(t, v.GetStringSlice(tracePermittedHostsKey))
	assert.Equal(t, []string{"T3"}, v.GetStringSlice(quarantineTiersKey))
	assert.Equal(t, defaultLogFilename, v.GetString(logFilenameKey))
}

func TestConfigTemplate_IsValidYAML(t *testing.T) {
	data, err := configTemplate()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))

	for _, key := range []string{"version", "scan", "trace", "engine", "surfaces", "cross_surface", "domains", "archive_paths", "quarantine", "log"} {
		assert.Contains(t, doc, key)
	}

	trace, ok := doc["trace"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{}, trace["writable_paths"])
	assert.Equal(t, []any{}, trace["permitted_hosts"])
}

func TestInitCmd_ErrorsWhenFileExists(t *testing.T) {
	tempDir := chdirTemp(t)

	targetPath := filepath.Join(tempDir, configFileName)
	require.NoError(t, os.WriteFile(targetPath, []byte("existing: true\n"), 0o644))

	cmd := newRootCmd()
	cmd.AddCommand(newInitCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"init"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	contents, err := os.ReadFile(targetPath)
	require.NoError(t, err)
	assert.Equal(t, "existing: true\n", string(contents))
}
