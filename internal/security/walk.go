package security

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	maxReadSize  = 1 << 20
	binarySniff  = 8000
	maxFileCount = 20000
)

var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

var sourceExts = map[string]bool{
	".py": true, ".js": true, ".mjs": true, ".cjs": true, ".ts": true, ".jsx": true, ".tsx": true,
	".go": true, ".rb": true, ".php": true, ".java": true, ".rs": true, ".sh": true, ".bash": true,
	".ps1": true, ".lua": true, ".pl": true,
}

type workspaceFile struct {
	Rel     string
	Path    string
	Size    int64
	Symlink bool
}

func (f workspaceFile) ext() string {
	return strings.ToLower(filepath.Ext(f.Rel))
}

func (f workspaceFile) isSource() bool {
	return sourceExts[f.ext()]
}

// walkWorkspace lists regular files and symlinks below root without following links.
func walkWorkspace(ctx context.Context, root string) ([]workspaceFile, error) {
	var files []workspaceFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		f := workspaceFile{Rel: filepath.ToSlash(rel), Path: path}
		if d.Type()&fs.ModeSymlink != 0 {
			f.Symlink = true
		} else if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			f.Size = info.Size()
		} else {
			return nil
		}
		files = append(files, f)
		if len(files) >= maxFileCount {
			return fs.SkipAll
		}
		return nil
	})
	return files, err
}

// readText returns file content, or ok=false for binaries and unreadable files.
func readText(path string) (string, bool) {
	fh, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer fh.Close()
	data, err := io.ReadAll(io.LimitReader(fh, maxReadSize))
	if err != nil {
		return "", false
	}
	sniff := data
	if len(sniff) > binarySniff {
		sniff = sniff[:binarySniff]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return "", false
	}
	return string(data), true
}

func readHead(path string, n int) []byte {
	fh, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer fh.Close()
	buf := make([]byte, n)
	read, _ := io.ReadFull(fh, buf)
	return buf[:read]
}
