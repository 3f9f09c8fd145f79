package gitops

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func TestInit(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	assert.False(t, IsRepo(dir), "empty dir should not be a repo")

	require.NoError(t, Init(dir))
	assert.True(t, IsRepo(dir), "initialized dir should be a repo")
}

func TestCommitAll(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	require.NoError(t, Init(dir))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sheets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sheets", "Funnel.csv"), []byte("id\n"), 0o644))

	changed, err := HasChanges(dir)
	require.NoError(t, err)
	assert.True(t, changed, "untracked files count as changes")

	hash, err := CommitAll(dir, "snapshot: test", "Relay Bot", "relay@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	log := exec.Command("git", "log", "--format=%s|%an <%ae>|%cn", "-1")
	log.Dir = dir
	out, err := log.Output()
	require.NoError(t, err)
	assert.Equal(t, "snapshot: test|Relay Bot <relay@example.com>|Relay Bot\n", string(out))

	changed, err = HasChanges(dir)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestHasChanges_NotARepo(t *testing.T) {
	requireGit(t)
	_, err := HasChanges(t.TempDir())
	assert.Error(t, err)
}

func TestIsIgnored(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	require.NoError(t, Init(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("secret.yaml\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.yaml"), []byte("auth: {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "public.yaml"), []byte("auth: {}\n"), 0o644))

	ignored, err := IsIgnored(dir, filepath.Join(dir, "secret.yaml"))
	require.NoError(t, err)
	assert.True(t, ignored)

	ignored, err = IsIgnored(dir, "public.yaml")
	require.NoError(t, err)
	assert.False(t, ignored)
}
