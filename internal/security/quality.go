package security

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	maxTotalLines    = 10000
	maxFileLines     = 5000
	maxAvgFileLines  = 1000
	minifiedLineSize = 1000
)

// CodeQualityAnalyzer flags oversized or minified code. It never reports high severity.
type CodeQualityAnalyzer struct{}

func (a *CodeQualityAnalyzer) Name() string { return string(CategoryCodeQuality) }

func (a *CodeQualityAnalyzer) Run(ctx context.Context, workspace string) ([]Vulnerability, string, error) {
	files, err := walkWorkspace(ctx, workspace)
	if err != nil {
		return nil, "", err
	}
	var (
		vulns      []Vulnerability
		totalLines int
		count      int
	)
	for _, f := range files {
		if f.Symlink || !f.isSource() {
			continue
		}
		content, ok := readText(f.Path)
		if !ok {
			continue
		}
		count++
		lines := strings.Split(content, "\n")
		totalLines += len(lines)
		if len(lines) > maxFileLines {
			vulns = append(vulns, Vulnerability{
				Category: CategoryCodeQuality,
				Severity: SeverityLow,
				Message:  fmt.Sprintf("very large file (%d lines)", len(lines)),
				Location: f.Rel,
			})
		}
		for i, line := range lines {
			if len(line) > minifiedLineSize {
				vulns = append(vulns, Vulnerability{
					Category: CategoryCodeQuality,
					Severity: SeverityLow,
					Message:  "minified or generated code (line longer than 1000 characters)",
					Location: fmt.Sprintf("%s:%d", f.Rel, i+1),
				})
				break
			}
		}
	}
	avg := 0
	if count > 0 {
		avg = totalLines / count
	}
	if totalLines > maxTotalLines {
		vulns = append(vulns, Vulnerability{
			Category: CategoryCodeQuality,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("large codebase (%d lines) increases attack surface", totalLines),
		})
	}
	if avg > maxAvgFileLines {
		vulns = append(vulns, Vulnerability{
			Category: CategoryCodeQuality,
			Severity: SeverityLow,
			Message:  fmt.Sprintf("average file length %d lines", avg),
		})
	}
	blob, _ := json.Marshal(map[string]int{"source_files": count, "total_lines": totalLines, "avg_lines_per_file": avg})
	return vulns, string(blob), nil
}
