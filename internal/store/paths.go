package store

import (
	"os"
	"path/filepath"
)

func EnsureLayout(root string) error {
	for _, d := range []string{root, WorkspaceRoot(root), ManifestRoot(root)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func DatabasePath(root string) string {
	return filepath.Join(root, "mcpgate.db")
}

// WorkspaceRoot holds ephemeral scan workspaces.
func WorkspaceRoot(root string) string {
	return filepath.Join(root, "workspaces")
}

func ManifestRoot(root string) string {
	return filepath.Join(root, "manifests")
}

func AuditPath(root string) string {
	return filepath.Join(root, "audit.log")
}
