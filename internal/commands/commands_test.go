package commands_test

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remitlab/sheetrelay/internal/commands"
	"github.com/remitlab/sheetrelay/internal/config"
)

// run executes the CLI in-process and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := commands.NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		config.EnvAuthToken, config.EnvUpstreamURL, config.EnvListen, config.EnvProxyListen,
		config.EnvDataDir, config.EnvStoreDSN, config.EnvRateLimit,
	} {
		t.Setenv(k, "")
	}
}

func initDir(t *testing.T) string {
	t.Helper()
	clearEnv(t)
	dir := t.TempDir()
	_, err := run(t, "init", dir, "--no-git")
	require.NoError(t, err)
	return dir
}

func TestInit_Layout(t *testing.T) {
	dir := initDir(t)

	for _, d := range []string{"sheets", "logs", "import", "import/processed"} {
		assert.DirExists(t, filepath.Join(dir, d))
	}
	for _, f := range []string{"sheetrelay.yaml", ".gitignore", "sheets/.gitkeep"} {
		assert.FileExists(t, filepath.Join(dir, f))
	}

	cfg, err := config.Load(filepath.Join(dir, config.DefaultFile))
	require.NoError(t, err)
	assert.Equal(t, config.BackendCSV, cfg.Store.Backend)
	assert.Equal(t, filepath.Join(dir, "sheets"), cfg.Store.Dir)
	assert.Empty(t, cfg.Auth.Token, "init never writes the secret")

	gitignore, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(gitignore), "ratelimit.db*")
}

func TestInit_TOML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	_, err := run(t, "init", dir, "--no-git", "--format", "toml")
	require.NoError(t, err)

	cfg, err := config.Load(filepath.Join(dir, "sheetrelay.toml"))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.RateLimit.Limit)
}

func TestInit_UnknownFormat(t *testing.T) {
	clearEnv(t)
	_, err := run(t, "init", t.TempDir(), "--no-git", "--format", "ini")
	assert.ErrorContains(t, err, "unknown config format")
}

func TestExport_Empty(t *testing.T) {
	dir := initDir(t)
	out, err := run(t, "--config", filepath.Join(dir, config.DefaultFile), "export")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}

func TestImportThenExport(t *testing.T) {
	dir := initDir(t)
	cfgPath := filepath.Join(dir, config.DefaultFile)

	lines := strings.Join([]string{
		`{"id":"f1","type":"funnel","signups":100}`,
		`{"id":"c1","type":"currency","jpyRatio":0.4}`,
		`{"id":"f2","signups":7}`,
		`{"action":"delete","id":"f1","type":"funnel"}`,
		`{"action":"delete","id":"nope","type":"funnel"}`,
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "import", "batch.jsonl"), []byte(lines), 0o644))

	out, err := run(t, "--config", cfgPath, "import")
	require.NoError(t, err)
	assert.Equal(t, "batch.jsonl: 3 saved, 1 deleted, 1 missed\n", out)
	assert.NoFileExists(t, filepath.Join(dir, "import", "batch.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "import", "processed", "batch.jsonl"))

	out, err = run(t, "--config", cfgPath, "export", "--format", "jsonl")
	require.NoError(t, err)
	got := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, got, 2)
	assert.Contains(t, got[0], `"id":"f2"`)
	assert.Contains(t, got[0], `"type":"funnel"`)
	assert.Contains(t, got[1], `"id":"c1"`)

	out, err = run(t, "--config", cfgPath, "export")
	require.NoError(t, err)
	var recs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "f2", recs[0]["id"])
	assert.Equal(t, "c1", recs[1]["id"])
}

func TestImport_NothingPending(t *testing.T) {
	dir := initDir(t)
	out, err := run(t, "--config", filepath.Join(dir, config.DefaultFile), "import")
	require.NoError(t, err)
	assert.Equal(t, "No files to import\n", out)
}

func TestImport_ExplicitFileIsNotMoved(t *testing.T) {
	dir := initDir(t)
	src := filepath.Join(t.TempDir(), "rows.csv")
	require.NoError(t, os.WriteFile(src, []byte("id,type,signups\nf9,funnel,12\n"), 0o644))

	out, err := run(t, "--config", filepath.Join(dir, config.DefaultFile), "import", src)
	require.NoError(t, err)
	assert.Equal(t, "rows.csv: 1 saved, 0 deleted, 0 missed\n", out)
	assert.FileExists(t, src)
}

func TestExport_UnknownFormat(t *testing.T) {
	dir := initDir(t)
	_, err := run(t, "--config", filepath.Join(dir, config.DefaultFile), "export", "--format", "xml")
	assert.ErrorContains(t, err, "unknown export format")
}

func TestServe_RequiresToken(t *testing.T) {
	dir := initDir(t)
	_, err := run(t, "--config", filepath.Join(dir, config.DefaultFile), "serve")
	var missing *config.MissingError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Keys[0], config.EnvAuthToken)
}

func TestExplicitConfigMustExist(t *testing.T) {
	clearEnv(t)
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "export")
	assert.ErrorContains(t, err, "reading config")
}

func TestSnapshot(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	clearEnv(t)
	dir := t.TempDir()
	out, err := run(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized sheetrelay data directory")

	cfgPath := filepath.Join(dir, config.DefaultFile)
	out, err = run(t, "--config", cfgPath, "snapshot")
	require.NoError(t, err)
	assert.Equal(t, "Nothing to snapshot\n", out)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "import", "a.jsonl"), []byte(`{"id":"f1"}`+"\n"), 0o644))
	_, err = run(t, "--config", cfgPath, "import")
	require.NoError(t, err)

	out, err = run(t, "--config", cfgPath, "snapshot", "-m", "after import")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Snapshot "), out)

	msg, err := exec.Command("git", "-C", dir, "log", "-1", "--format=%s").Output()
	require.NoError(t, err)
	assert.Equal(t, "after import", strings.TrimSpace(string(msg)))
}

func TestSnapshot_NotARepo(t *testing.T) {
	dir := initDir(t)
	_, err := run(t, "--config", filepath.Join(dir, config.DefaultFile), "snapshot")
	assert.ErrorContains(t, err, "not a git repository")
}

func TestSnapshot_RefusesTokenInConfig(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	clearEnv(t)
	dir := t.TempDir()
	_, err := run(t, "init", dir)
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, config.DefaultFile)
	cfg := config.Default()
	cfg.Auth.Token = "s3cret"
	require.NoError(t, config.Save(cfgPath, cfg))

	_, err = run(t, "--config", cfgPath, "snapshot")
	require.ErrorContains(t, err, "refusing to snapshot")
	assert.NotContains(t, err.Error(), "s3cret")

	count, err := exec.Command("git", "-C", dir, "rev-list", "--count", "HEAD").Output()
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(string(count)), "nothing was committed")

	// The same secret from the environment is fine.
	require.NoError(t, config.Save(cfgPath, config.Default()))
	t.Setenv(config.EnvAuthToken, "s3cret")
	out, err := run(t, "--config", cfgPath, "snapshot")
	require.NoError(t, err)
	assert.Equal(t, "Nothing to snapshot\n", out)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "dev (commit: none, built: unknown)")
}
