package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupWorkspace(t *testing.T) string {
	t.Helper()
	for _, k := range []string{
		"MNEMO_WORKSPACE", "MNEMO_TIMEZONE", "MNEMO_LLM_PROVIDER", "MNEMO_MODEL", "MNEMO_LOG_LEVEL",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "ANTHROPIC_API_KEY", "GEMINI_API_KEY",
	} {
		t.Setenv(k, "")
	}
	return t.TempDir()
}

// run executes the root command against ws and returns what it printed.
func run(t *testing.T, ws string, stdin string, args ...string) (string, error) {
	t.Helper()
	configPath, workspace, verbose = "", "", false
	memorySetFile, daysFrom, daysTo, recentDays, searchLimit = "", "", "", 7, 5

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--workspace", ws}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMemoryCommands(t *testing.T) {
	ws := setupWorkspace(t)

	out, err := run(t, ws, "", "memory", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "(empty)")

	out, err = run(t, ws, "", "memory", "today")
	require.NoError(t, err)
	assert.Contains(t, out, "No notes yet today")

	out, err = run(t, ws, "", "memory", "append", "bought", "oat", "milk")
	require.NoError(t, err)
	assert.Contains(t, out, "Noted in")

	out, err = run(t, ws, "", "memory", "today")
	require.NoError(t, err)
	assert.Contains(t, out, "bought oat milk")

	_, err = run(t, ws, "", "memory", "set", "Name: Ada\nLikes: tea")
	require.NoError(t, err)
	out, err = run(t, ws, "", "memory", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Likes: tea")
	assert.Contains(t, out, "updated ")

	_, err = run(t, ws, "Name: Ada\nLikes: coffee\n", "memory", "set", "-")
	require.NoError(t, err)
	out, err = run(t, ws, "", "memory", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Likes: coffee")
	assert.NotContains(t, out, "Likes: tea")

	_, err = run(t, ws, "", "memory", "set")
	assert.Error(t, err)
}

func TestMemoryDays(t *testing.T) {
	ws := setupWorkspace(t)
	dir := filepath.Join(ws, "memory")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, d := range []string{"2026-01-02", "2026-01-05", "2026-02-01"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, d+".md"), []byte("- note\n"), 0o644))
	}

	out, err := run(t, ws, "", "memory", "days", "--from", "2026-01-03", "--to", "2026-01-31")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-05\n", out)

	out, err = run(t, ws, "", "memory", "days")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02\n2026-01-05\n2026-02-01\n", out)
}

func TestReindexAndSearch(t *testing.T) {
	ws := setupWorkspace(t)
	dir := filepath.Join(ws, "memory")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2020-03-14.md"),
		[]byte("- 10:00 Planned the budget with Bob for the garden shed.\n"), 0o644))

	out, err := run(t, ws, "", "reindex")
	require.NoError(t, err)
	assert.Contains(t, out, "Reindexed 1 days.")

	out, err = run(t, ws, "", "search", "budget", "with", "Bob", "-k", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "2020-03-14")
	assert.Contains(t, out, "garden shed")
}

func TestSearchWithIndexDisabled(t *testing.T) {
	ws := setupWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "config.yaml"), []byte("index:\n  enabled: false\n"), 0o600))

	out, err := run(t, ws, "", "search", "anything")
	require.NoError(t, err)
	assert.Contains(t, out, "not available")

	_, err = run(t, ws, "", "reindex")
	assert.Error(t, err)
}

func TestInvalidConfigFails(t *testing.T) {
	ws := setupWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "config.yaml"), []byte("llm:\n  provider: nope\n"), 0o600))

	_, err := run(t, ws, "", "memory", "today")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid llm provider")
}
