package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const cliDataset = `{
  "products": [
    {"id": 1, "name": "Zapatillas", "category": "calzado", "description": "Running",
     "details": ["a"], "features": ["Talle: 42"], "images": ["z_main.png"]},
    {"id": 2, "name": "Botas", "category": "calzado", "description": "Montaña",
     "details": ["x"], "features": ["Talle: 40"]},
    {"id": 3, "name": "Mesa", "category": "hogar", "description": "Roble",
     "details": ["x"], "features": ["Material: roble"]},
    {"id": 4, "name": "Borrador", "category": "hogar"}
  ],
  "categories": [
    {"id": "calzado", "name": "Calzado"},
    {"id": "hogar", "name": "Hogar"}
  ]
}`

// env is a temp directory holding a dataset and a config file pointing at it.
type env struct {
	dir     string
	dataset string
	config  string
}

func newEnv(t *testing.T, extra map[string]any) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		dir:     dir,
		dataset: filepath.Join(dir, "products.json"),
		config:  filepath.Join(dir, "storefront.yaml"),
	}
	require.NoError(t, os.WriteFile(e.dataset, []byte(cliDataset), 0o600))
	e.writeConfig(t, extra)
	return e
}

// writeConfig writes a config serving e.dataset. Top-level sections in extra
// replace the defaults written here.
func (e *env) writeConfig(t *testing.T, extra map[string]any) {
	t.Helper()
	doc := map[string]any{
		"logging":  map[string]any{"level": "error"},
		"database": map[string]any{"path": filepath.Join(e.dir, "storefront.db")},
		"plugins": map[string]any{
			"catalog": map[string]any{"source": e.dataset, "fallback": "none"},
		},
	}
	for k, v := range extra {
		doc[k] = v
	}
	data, err := yaml.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(e.config, data, 0o600))
}

// run executes the CLI with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "storefront", cmd.Use)
	assert.Contains(t, cmd.Long, "product catalog")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "convert", "watch", "query", "related", "backup", "restore", "version"}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			require.NotNil(t, sub)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	cfgFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfgFlag)
	assert.Equal(t, "c", cfgFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, "version", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Storefront "))

	out, err = run(t, "version", "--format", "json")
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "go_version")
}

func TestQueryCommand(t *testing.T) {
	e := newEnv(t, nil)

	out, err := run(t, "query", "--config", e.config, "--sort", "name", "--format", "json")
	require.NoError(t, err)

	var rows []productRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3, "incomplete product is hidden")
	assert.Equal(t, "Botas", rows[0].Name)
	assert.Equal(t, "Zapatillas", rows[2].Name)
	assert.Equal(t, "z_main.png", rows[2].Image)
	assert.Equal(t, "Calzado", rows[2].CategoryName)

	out, err = run(t, "query", "--config", e.config, "--category", "hogar")
	require.NoError(t, err)
	assert.Contains(t, out, "Mesa")
	assert.NotContains(t, out, "Botas")

	out, err = run(t, "query", "--config", e.config, "-q", "nada que ver")
	require.NoError(t, err)
	assert.Contains(t, out, "No products found.")
}

func TestQueryCommand_Errors(t *testing.T) {
	e := newEnv(t, nil)

	_, err := run(t, "query", "--config", e.config, "--sort", "price")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = run(t, "query", "--config", e.config, "--source", filepath.Join(e.dir, "missing.json"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRelatedCommand(t *testing.T) {
	e := newEnv(t, nil)

	out, err := run(t, "related", "1", "--config", e.config, "--format", "json")
	require.NoError(t, err)
	var rows []productRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.NotEmpty(t, rows)
	assert.Equal(t, "Botas", rows[0].Name, "same category ranks first")
	for _, r := range rows {
		assert.NotEqual(t, "1", r.ID.String())
	}

	_, err = run(t, "related", "99", "--config", e.config)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	for _, bad := range []string{"--limit=-1", "--limit=0"} {
		_, err = run(t, "related", "1", "--config", e.config, bad)
		assert.Equal(t, ExitCommandError, GetExitCode(err), bad)
	}
}

func TestBackupRestoreCommands(t *testing.T) {
	e := newEnv(t, nil)
	archive := filepath.Join(e.dir, "backup.tar.gz")

	out, err := run(t, "backup", "--config", e.config, "--output", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "Backup created")

	target := filepath.Join(t.TempDir(), "restored")
	out, err = run(t, "restore", "--input", archive, "--dir", target, "--format", "json")
	require.NoError(t, err)
	var res struct {
		Files []string `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Contains(t, res.Files, "products.json")
	assert.Contains(t, res.Files, "storefront.yaml")

	data, err := os.ReadFile(filepath.Join(target, "products.json"))
	require.NoError(t, err)
	assert.JSONEq(t, cliDataset, string(data))

	_, err = run(t, "restore", "--input", archive, "--dir", target)
	require.Error(t, err, "existing files need --force")

	_, err = run(t, "restore")
	assert.Error(t, err, "--input is required")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	wrapped := WrapExitError(ExitCommandError, "bad flag", errors.New("cause"))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "bad flag: cause", wrapped.Error())
}
