// Package gitops versions a CSV workbook directory with the git binary.
package gitops

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// git runs a subcommand in dir and returns its trimmed stdout. On failure the
// error carries git's stderr.
func git(dir string, env []string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	out, err := cmd.Output()
	if err != nil {
		var stderr string
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			stderr = strings.TrimSpace(string(ee.Stderr))
		}
		return "", fmt.Errorf("git %s: %s: %w", args[0], stderr, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Init creates a repository at dir.
func Init(dir string) error {
	_, err := git(dir, nil, "init", "--quiet")
	return err
}

// HasChanges reports whether the work tree at dir differs from HEAD,
// untracked files included.
func HasChanges(dir string) (bool, error) {
	out, err := git(dir, nil, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// CommitAll stages everything and commits as name <email>, which is used for
// both author and committer so no global git identity is needed. Returns the
// short hash.
func CommitAll(dir, message, name, email string) (string, error) {
	if _, err := git(dir, nil, "add", "-A"); err != nil {
		return "", err
	}
	identity := []string{
		"GIT_AUTHOR_NAME=" + name,
		"GIT_AUTHOR_EMAIL=" + email,
		"GIT_COMMITTER_NAME=" + name,
		"GIT_COMMITTER_EMAIL=" + email,
	}
	if _, err := git(dir, identity, "commit", "--quiet", "-m", message); err != nil {
		return "", err
	}
	return git(dir, nil, "rev-parse", "--short", "HEAD")
}

// IsIgnored reports whether git would leave path out of CommitAll. Tracked
// files are never ignored.
func IsIgnored(dir, path string) (bool, error) {
	_, err := git(dir, nil, "check-ignore", "--quiet", path)
	if err == nil {
		return true, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) && ee.ExitCode() == 1 {
		return false, nil
	}
	return false, err
}

// IsRepo reports whether dir is the root of a git repository.
func IsRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}
