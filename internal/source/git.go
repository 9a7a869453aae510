package source

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

type gitExecFunc func(ctx context.Context, dir string, args ...string) ([]byte, error)

func defaultGitExec(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	// the context kill only reaches git itself; helpers holding the pipes are cut off here
	cmd.WaitDelay = 5 * time.Second
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w\n%s", strings.Join(args, " "), err, string(out))
	}
	return out, nil
}

// GitCloner fetches remote repositories with a shallow single-branch clone.
type GitCloner struct {
	execGit gitExecFunc
}

func NewGitCloner() *GitCloner {
	return &GitCloner{execGit: defaultGitExec}
}

// Clone checks out location into dir. Cancelling ctx kills the git process.
func (c *GitCloner) Clone(ctx context.Context, location, dir string) error {
	location = strings.TrimSpace(location)
	if location == "" {
		return fmt.Errorf("SRC_GIT_CLONE: empty source location")
	}
	if strings.HasPrefix(location, "-") {
		return fmt.Errorf("SRC_GIT_CLONE: invalid source location %q", location)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("SRC_GIT_CLONE: %w", err)
	}
	if _, err := c.execGit(ctx, "", "clone", "--depth", "1", "--single-branch", "--", location, dir); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("SRC_GIT_CLONE: %w", ctxErr)
		}
		return fmt.Errorf("SRC_GIT_CLONE: clone failed: %w", err)
	}
	return nil
}

// Revision returns the short commit hash checked out in dir.
func (c *GitCloner) Revision(ctx context.Context, dir string) (string, error) {
	if !isGitRepo(dir) {
		return "", fmt.Errorf("SRC_GIT_REVISION: %s is not a git checkout", dir)
	}
	out, err := c.execGit(ctx, dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("SRC_GIT_REVISION: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// isGitRepo checks whether the directory contains a .git dir.
func isGitRepo(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && info.IsDir()
}
