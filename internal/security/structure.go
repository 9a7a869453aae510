package security

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"strings"
)

var (
	executableExts  = map[string]bool{".exe": true, ".dll": true, ".so": true, ".dylib": true}
	suspiciousWords = map[string]bool{"eval": true, "exec": true, "subprocess": true, "shell": true}
	magicNumbers    = []struct {
		prefix []byte
		kind   string
	}{
		{[]byte("\x7fELF"), "ELF"},
		{[]byte{0xcf, 0xfa, 0xed, 0xfe}, "Mach-O"},
		{[]byte{0xce, 0xfa, 0xed, 0xfe}, "Mach-O"},
		{[]byte{0xca, 0xfe, 0xba, 0xbe}, "Mach-O universal"},
		{[]byte("MZ"), "PE"},
	}
)

// FileStructureAnalyzer inspects repository layout for binaries, escaping links
// and suspicious names.
type FileStructureAnalyzer struct{}

func (a *FileStructureAnalyzer) Name() string { return string(CategoryFileStructure) }

func (a *FileStructureAnalyzer) Run(ctx context.Context, workspace string) ([]Vulnerability, string, error) {
	files, err := walkWorkspace(ctx, workspace)
	if err != nil {
		return nil, "", err
	}
	var vulns []Vulnerability
	extCounts := map[string]int{}
	add := func(sev Severity, msg, loc string) {
		vulns = append(vulns, Vulnerability{Category: CategoryFileStructure, Severity: sev, Message: msg, Location: loc})
	}
	for _, f := range files {
		if f.Symlink {
			if symlinkEscapes(workspace, f.Path) {
				add(SeverityHigh, "symlink resolves outside the repository", f.Rel)
			}
			continue
		}
		ext := f.ext()
		extCounts[ext]++
		if kind := binaryKind(readHead(f.Path, 4)); kind != "" {
			add(SeverityHigh, kind+" executable binary", f.Rel)
		} else if executableExts[ext] {
			add(SeverityHigh, "compiled library or executable extension", f.Rel)
		}
		if suspiciousName(path.Base(f.Rel)) {
			add(SeverityMedium, "suspicious file name", f.Rel)
		}
		if ext == ".sh" || ext == ".bash" {
			if content, ok := readText(f.Path); ok && downloadsOrExecs(content) {
				add(SeverityMedium, "shell script downloads or executes code", f.Rel)
			}
		}
	}
	blob, _ := json.Marshal(map[string]any{"files": len(files), "file_types": extCounts})
	return vulns, string(blob), nil
}

func binaryKind(head []byte) string {
	for _, m := range magicNumbers {
		if bytes.HasPrefix(head, m.prefix) {
			if m.kind == "PE" && len(head) < 4 {
				return ""
			}
			return m.kind
		}
	}
	return ""
}

// suspiciousName matches whole name tokens, so "exec_hook.py" is flagged and "executor.go" is not.
func suspiciousName(name string) bool {
	stem := strings.ToLower(strings.TrimSuffix(name, path.Ext(name)))
	for _, tok := range strings.FieldsFunc(stem, func(r rune) bool { return r == '_' || r == '-' || r == '.' }) {
		if suspiciousWords[tok] {
			return true
		}
	}
	return false
}

func downloadsOrExecs(content string) bool {
	for _, needle := range []string{"curl ", "wget ", "nc ", "exec "} {
		if strings.Contains(content, needle) {
			return true
		}
	}
	return false
}
