package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tayfa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8766", cfg.Server.ListenAddr)
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.RetryDelay)
	assert.Equal(t, 1000, cfg.Agent.HistoryCap)
	assert.Equal(t, 5, cfg.Agent.MemoryEntries)
	assert.Equal(t, 60*time.Second, cfg.Store.LockStaleAfter)
}

func TestLoad_UserValuesOverrideDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: "0.0.0.0:9000"
scheduler:
  max_concurrent_tasks: 7
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.ListenAddr)
	assert.Equal(t, 7, cfg.Scheduler.MaxConcurrentTasks)
	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, "http://127.0.0.1:8765", cfg.Gateway.URL)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TAYFA_TEST_GATEWAY", "http://10.0.0.5:9999")
	path := writeConfig(t, `
gateway:
  url: "{{.TAYFA_TEST_GATEWAY}}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:9999", cfg.Gateway.URL)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not: a: mapping")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalidYAML)
}

func TestLoad_ValidationRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{
			name:  "negative attempts",
			yaml:  "scheduler:\n  max_attempts: -1\n",
			field: "scheduler.max_attempts",
		},
		{
			name:  "bad log level",
			yaml:  "logging:\n  level: loud\n",
			field: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := Load(path)
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, ErrValidationFailed)
		})
	}
}

func TestExpandEnv_LeavesPlainDollarAlone(t *testing.T) {
	in := []byte(`pattern: "^secret.*$"`)
	out := ExpandEnv(in)
	assert.Equal(t, string(in), string(out))
}

func TestProjectConfig_Paths(t *testing.T) {
	p := ProjectConfig{Root: "/work/proj"}

	assert.Equal(t, "/work/proj/.tayfa/common", p.CommonDir())
	assert.Equal(t, "/work/proj/.tayfa/common/tasks.json", p.TasksFile())
	assert.Equal(t, "/work/proj/.tayfa/common/chat_history/dev.json", p.ChatHistoryFile("dev"))
	assert.Equal(t, "/work/proj/.tayfa/common/discussions/T001.md", p.DiscussionFile("T001"))
}
