package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/autosort/internal/config"
)

// cyclicMasterlist makes A.esp and B.esp load after each other.
const cyclicMasterlist = `plugins:
  - name: A.esp
    after: [B.esp]
  - name: B.esp
    after: [A.esp]
`

// orderedMasterlist makes A.esp load after B.esp and annotates A.esp.
const orderedMasterlist = `plugins:
  - name: A.esp
    after: [B.esp]
    msg:
      - type: say
        content: Clean with xEdit
    tag: [Delev, -Relev]
`

// testEnv is a config file with its directories under one temp dir. The
// masterlist for skyrimse is mirrored from remote/skyrimse.
type testEnv struct {
	dir     string
	config  string
	plugins string
}

func newTestEnv(t *testing.T, masterlist string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:     dir,
		config:  filepath.Join(dir, "autosort.yaml"),
		plugins: filepath.Join(dir, "plugins.txt"),
	}

	if masterlist != "" {
		remote := filepath.Join(dir, "remote", "skyrimse")
		require.NoError(t, os.MkdirAll(remote, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(remote, "masterlist.yaml"), []byte(masterlist), 0644))
	}

	env.writeConfig(t, "")
	return env
}

// writeConfig writes the config, appending extra top-level YAML.
func (e *testEnv) writeConfig(t *testing.T, extra string) {
	t.Helper()
	content := fmt.Sprintf(`data_dir: %q
user_data_dir: %q
database: %q
masterlist:
  repository: %q
  retries: 0
%s`, filepath.Join(e.dir, "data"), filepath.Join(e.dir, "userdata"), filepath.Join(e.dir, "autosort.db"),
		filepath.Join(e.dir, "remote", "%s"), extra)
	require.NoError(t, os.WriteFile(e.config, []byte(content), 0644))
}

func (e *testEnv) writePlugins(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(e.plugins, []byte(content), 0644))
}

func (e *testEnv) loadConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load(e.config)
	require.NoError(t, err)
	return cfg
}

// runCLI executes the root command and returns stdout, stderr and the error.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
