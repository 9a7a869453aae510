package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockGitExec returns a gitExecFunc that records calls and returns canned responses.
func mockGitExec(calls *[]string, responses map[string]string, errs map[string]error) gitExecFunc {
	return func(ctx context.Context, dir string, args ...string) ([]byte, error) {
		key := strings.Join(args, " ")
		*calls = append(*calls, key)
		for pattern, err := range errs {
			if strings.HasPrefix(key, pattern) {
				return nil, err
			}
		}
		for pattern, resp := range responses {
			if strings.HasPrefix(key, pattern) {
				return []byte(resp), nil
			}
		}
		return []byte(""), nil
	}
}

func TestGitClonerUsesShallowSingleBranch(t *testing.T) {
	var calls []string
	c := &GitCloner{execGit: mockGitExec(&calls, nil, nil)}
	dir := filepath.Join(t.TempDir(), "ws", "repo")
	if err := c.Clone(context.Background(), "https://github.com/acme/tool", dir); err != nil {
		t.Fatalf("clone failed: %v", err)
	}
	want := "clone --depth 1 --single-branch -- https://github.com/acme/tool " + dir
	if len(calls) != 1 || calls[0] != want {
		t.Fatalf("expected %q, got %v", want, calls)
	}
	if _, err := os.Stat(filepath.Dir(dir)); err != nil {
		t.Fatalf("expected parent directory created: %v", err)
	}
}

func TestGitClonerRejectsBadLocations(t *testing.T) {
	var calls []string
	c := &GitCloner{execGit: mockGitExec(&calls, nil, nil)}
	for _, loc := range []string{"", "  ", "--upload-pack=touch /tmp/x"} {
		if err := c.Clone(context.Background(), loc, t.TempDir()); err == nil {
			t.Fatalf("expected error for %q", loc)
		}
	}
	if len(calls) != 0 {
		t.Fatalf("expected git never invoked, got %v", calls)
	}
}

func TestGitClonerWrapsFailure(t *testing.T) {
	var calls []string
	c := &GitCloner{execGit: mockGitExec(&calls, nil, map[string]error{"clone": errors.New("repository not found")})}
	err := c.Clone(context.Background(), "https://github.com/acme/missing", filepath.Join(t.TempDir(), "repo"))
	if err == nil || !strings.Contains(err.Error(), "SRC_GIT_CLONE") {
		t.Fatalf("expected coded clone error, got %v", err)
	}
}

func TestGitClonerReportsContextDeadline(t *testing.T) {
	c := &GitCloner{execGit: func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, errors.New("signal: killed")
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := c.Clone(ctx, "https://github.com/acme/slow", filepath.Join(t.TempDir(), "repo"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestGitClonerRevision(t *testing.T) {
	var calls []string
	c := &GitCloner{execGit: mockGitExec(&calls, map[string]string{"rev-parse": "abc1234\n"}, nil)}
	dir := t.TempDir()
	if _, err := c.Revision(context.Background(), dir); err == nil {
		t.Fatalf("expected error for non-git directory")
	}
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	rev, err := c.Revision(context.Background(), dir)
	if err != nil || rev != "abc1234" {
		t.Fatalf("expected abc1234, got %q err=%v", rev, err)
	}
}
