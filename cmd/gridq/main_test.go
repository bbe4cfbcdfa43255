package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig creates a config for the local backend under a temp dir.
func writeConfig(t *testing.T) (cfgPath, stateDir string) {
	t.Helper()
	dir := t.TempDir()
	stateDir = filepath.Join(dir, "state")
	cfgPath = filepath.Join(dir, "config.yaml")
	yml := "state_dir: " + stateDir + `
account:
  host: grid.example.org
  zone: tempZone
  user: alice
  default_resource: demoResc
logging:
  level: error
  format: json
  file: ` + filepath.Join(dir, "gridq.log") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yml), 0600))
	return cfgPath, stateDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	t.Setenv("GRIDQ_PASSWORD", "from-env")

	cfg, err := loadConfig(&globalOptions{configPath: cfgPath, user: "bob", port: 2000, backend: "s3", logLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Account.User)
	assert.Equal(t, 2000, cfg.Account.Port)
	assert.Equal(t, "s3", cfg.Backend.Type)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "from-env", cfg.Account.Password)

	_, err = loadConfig(&globalOptions{configPath: cfgPath, backend: "tape"})
	assert.Error(t, err)
}

func TestPutRunHistory(t *testing.T) {
	cfgPath, stateDir := writeConfig(t)

	src := filepath.Join(t.TempDir(), "photos")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "2024"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.jpg"), []byte("aaa"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "2024", "b.jpg"), []byte("bbb"), 0644))

	out, err := execute(t, "--config", cfgPath, "put", src, "/tempZone/home/alice")
	require.NoError(t, err)
	assert.Contains(t, out, "PUT")
	assert.Contains(t, out, "queued")

	out, err = execute(t, "--config", cfgPath, "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "ENQUEUED")

	_, err = execute(t, "--config", cfgPath, "run")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(stateDir, "grid", "demoResc", "tempZone", "home", "alice", "photos", "2024", "b.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "bbb", string(data))

	out, err = execute(t, "--config", cfgPath, "history", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "COMPLETE")

	out, err = execute(t, "--config", cfgPath, "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 1 transfers")
}

func TestRunReportsFailedTransfers(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	_, err := execute(t, "--config", cfgPath, "put", filepath.Join(t.TempDir(), "missing"), "/tempZone/home/alice")
	require.NoError(t, err)

	_, err = execute(t, "--config", cfgPath, "run")
	assert.Error(t, err)

	out, err := execute(t, "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "ERROR")

	id := strings.Fields(strings.Split(out, "\n")[1])[0]
	out, err = execute(t, "--config", cfgPath, "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "no such file or directory")

	out, err = execute(t, "--config", cfgPath, "requeue", id, "--from-start")
	require.NoError(t, err)
	assert.Contains(t, out, "queued")
}

func TestEnqueueValidation(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	_, err := execute(t, "--config", cfgPath, "replicate", "/tempZone/home/alice/x")
	assert.Error(t, err)

	_, err = execute(t, "--config", cfgPath, "copy", "/tempZone/home/alice/x", "  ")
	assert.ErrorContains(t, err, "invalid argument")
}
