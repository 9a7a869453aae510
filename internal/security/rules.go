package security

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

type PatternDef struct {
	Pattern     *regexp.Regexp
	Severity    Severity
	Description string
}

var staticPatterns = []PatternDef{
	// destructive operations
	{regexp.MustCompile(`rm\s+-rf\s+/(?:\s|$)`), SeverityHigh, "Destructive file deletion (rm -rf /)"},
	{regexp.MustCompile(`rm\s+-rf\s+(?:~/|\$HOME)`), SeverityHigh, "Destructive home directory deletion"},
	// remote code execution pipes
	{regexp.MustCompile(`(?:curl|wget)\s+[^|]*\|\s*(?:ba|z)?sh\b`), SeverityHigh, "Remote code execution pipe"},
	{regexp.MustCompile(`base64\s+(?:-d|--decode)[^|]*\|\s*(?:ba)?sh`), SeverityHigh, "Obfuscated code execution"},
	// reverse shells
	{regexp.MustCompile(`mkfifo\b.*\bnc\b`), SeverityHigh, "Reverse shell pattern"},
	{regexp.MustCompile(`\bnc\b.*-e\s+/bin/`), SeverityHigh, "Reverse shell pattern"},
	{regexp.MustCompile(`/dev/tcp/[0-9a-zA-Z.]+/[0-9]+`), SeverityHigh, "Reverse shell via /dev/tcp"},
	// credential leakage
	{regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`), SeverityHigh, "Embedded private key"},
	{regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), SeverityHigh, "Hard-coded AWS access key"},
	{regexp.MustCompile(`(?:~|\$HOME)/\.ssh/id_(?:rsa|ed25519|ecdsa)`), SeverityHigh, "SSH key access"},
	{regexp.MustCompile(`/etc/(?:shadow|passwd)`), SeverityHigh, "Access to system credential files"},
	{regexp.MustCompile(`(?:~|\$HOME)/\.aws/credentials`), SeverityHigh, "Access to AWS credentials file"},
	// crypto mining
	{regexp.MustCompile(`stratum\+tcp://`), SeverityHigh, "Crypto mining indicator"},
	{regexp.MustCompile(`\b(?:xmrig|minerd)\b`), SeverityHigh, "Crypto mining indicator"},
	// code execution
	{regexp.MustCompile(`\beval\s*\(`), SeverityMedium, "Dynamic code evaluation via eval"},
	{regexp.MustCompile(`\bexec\s*\(`), SeverityMedium, "Dynamic code execution via exec"},
	{regexp.MustCompile(`\bos\.system\s*\(`), SeverityHigh, "Shell command execution via os.system"},
	{regexp.MustCompile(`\bsubprocess\.[A-Za-z_]+\([^)]*shell\s*=\s*True`), SeverityHigh, "subprocess call with shell=True"},
	{regexp.MustCompile(`\bsubprocess\.(?:run|Popen|call|check_output)\b`), SeverityMedium, "Process execution via subprocess"},
	{regexp.MustCompile(`\bchild_process\b`), SeverityMedium, "Process execution via child_process"},
	{regexp.MustCompile(`\bpickle\.loads?\s*\(`), SeverityMedium, "Unsafe deserialization via pickle"},
	{regexp.MustCompile(`\byaml\.load\s*\([^)]*\)`), SeverityLow, "yaml.load without explicit safe loader"},
	{regexp.MustCompile(`chmod\s+777\b`), SeverityMedium, "World-writable permission change"},
	// environment harvesting and exfiltration
	{regexp.MustCompile(`\bos\.environ\b`), SeverityLow, "Environment variable access"},
	{regexp.MustCompile(`curl\s+.*(?:-d|--data)\s`), SeverityMedium, "Data upload via curl"},
	{regexp.MustCompile(`\bsudo\b`), SeverityLow, "Sudo usage"},
}

var (
	base64BlockPattern = regexp.MustCompile(`[A-Za-z0-9+/=]{200,}`)
	hexBlockPattern    = regexp.MustCompile(`(?:0x)?[0-9a-fA-F]{200,}`)
	ipLiteralPattern   = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`)
	urlShortenerRegexp = regexp.MustCompile(`(?i)\b(?:bit\.ly|tinyurl\.com|goo\.gl|is\.gd|ow\.ly|t\.co|cutt\.ly|rb\.gy)/`)
	benignIPs          = map[string]bool{"127.0.0.1": true, "0.0.0.0": true, "255.255.255.255": true}
)

type commandFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func defaultCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.Output()
}

// StaticAnalyzer scans source lines for dangerous patterns and optionally
// merges the JSON report of an external tool such as bandit.
type StaticAnalyzer struct {
	Command []string
	run     commandFunc
}

func (a *StaticAnalyzer) Name() string { return string(CategoryStatic) }

func (a *StaticAnalyzer) Run(ctx context.Context, workspace string) ([]Vulnerability, string, error) {
	files, err := walkWorkspace(ctx, workspace)
	if err != nil {
		return nil, "", err
	}
	var vulns []Vulnerability
	scanned := 0
	for _, f := range files {
		if f.Symlink || !f.isSource() {
			continue
		}
		content, ok := readText(f.Path)
		if !ok {
			continue
		}
		scanned++
		vulns = append(vulns, scanLines(f.Rel, content)...)
	}
	summary := map[string]any{"files_scanned": scanned, "pattern_findings": len(vulns)}
	if len(a.Command) > 0 {
		external, raw, err := a.runExternal(ctx, workspace)
		if err != nil {
			return nil, "", err
		}
		vulns = append(vulns, external...)
		summary["external_findings"] = len(external)
		summary["external_bytes"] = len(raw)
	}
	blob, _ := json.Marshal(summary)
	return vulns, string(blob), nil
}

func scanLines(file, content string) []Vulnerability {
	var vulns []Vulnerability
	lines := strings.Split(content, "\n")
	for _, p := range staticPatterns {
		for i, line := range lines {
			if p.Pattern.MatchString(line) {
				vulns = append(vulns, Vulnerability{
					Category: CategoryStatic,
					Severity: p.Severity,
					Message:  p.Description,
					Location: fmt.Sprintf("%s:%d", file, i+1),
				})
				break // one match per pattern per file
			}
		}
	}

	highEntropy := 0
	var blobLine, ipLine, shortLine int
	for i, line := range lines {
		if blobLine == 0 && (base64BlockPattern.MatchString(line) || hexBlockPattern.MatchString(line)) {
			blobLine = i + 1
		}
		if ipLine == 0 {
			for _, ip := range ipLiteralPattern.FindAllString(line, -1) {
				if !benignIPs[ip] && !strings.HasPrefix(ip, "192.168.") && !strings.HasPrefix(ip, "10.") {
					ipLine = i + 1
					break
				}
			}
		}
		if shortLine == 0 && urlShortenerRegexp.MatchString(line) {
			shortLine = i + 1
		}
		if len(line) > 100 && shannonEntropy(line) > 5.5 {
			highEntropy++
		}
	}
	if blobLine > 0 {
		vulns = append(vulns, Vulnerability{Category: CategoryStatic, Severity: SeverityMedium,
			Message: "Large encoded block (possible obfuscated payload)", Location: fmt.Sprintf("%s:%d", file, blobLine)})
	}
	if highEntropy > 3 {
		vulns = append(vulns, Vulnerability{Category: CategoryStatic, Severity: SeverityMedium,
			Message: fmt.Sprintf("Multiple high-entropy strings (%d occurrences)", highEntropy), Location: file})
	}
	if ipLine > 0 {
		vulns = append(vulns, Vulnerability{Category: CategoryStatic, Severity: SeverityLow,
			Message: "Hard-coded IP address literal", Location: fmt.Sprintf("%s:%d", file, ipLine)})
	}
	if shortLine > 0 {
		vulns = append(vulns, Vulnerability{Category: CategoryStatic, Severity: SeverityLow,
			Message: "URL shortener obscures destination", Location: fmt.Sprintf("%s:%d", file, shortLine)})
	}
	return vulns
}

func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[rune]float64)
	for _, c := range s {
		freq[c]++
	}
	length := float64(len([]rune(s)))
	entropy := 0.0
	for _, count := range freq {
		p := count / length
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

type banditReport struct {
	Results []struct {
		Severity   string `json:"issue_severity"`
		Text       string `json:"issue_text"`
		Filename   string `json:"filename"`
		LineNumber int    `json:"line_number"`
		TestID     string `json:"test_id"`
	} `json:"results"`
}

// runExternal runs the configured command. "{workspace}" in an argument is
// replaced by the workspace path; without a placeholder the path is appended.
func (a *StaticAnalyzer) runExternal(ctx context.Context, workspace string) ([]Vulnerability, string, error) {
	args := make([]string, 0, len(a.Command))
	placed := false
	for _, arg := range a.Command[1:] {
		if strings.Contains(arg, "{workspace}") {
			arg = strings.ReplaceAll(arg, "{workspace}", workspace)
			placed = true
		}
		args = append(args, arg)
	}
	if !placed {
		args = append(args, workspace)
	}
	run := a.run
	if run == nil {
		run = defaultCommand
	}
	out, runErr := run(ctx, workspace, a.Command[0], args...)
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}
	// bandit exits non-zero when it reports issues, so output wins over exit status.
	var report banditReport
	if len(out) == 0 || json.Unmarshal(out, &report) != nil {
		if runErr != nil {
			return nil, "", fmt.Errorf("%w: %s: %v", ErrScanError, a.Command[0], runErr)
		}
		return nil, "", fmt.Errorf("%w: %s produced unparseable output", ErrScanError, a.Command[0])
	}
	vulns := make([]Vulnerability, 0, len(report.Results))
	for _, r := range report.Results {
		loc := r.Filename
		if filepath.IsAbs(loc) {
			if rel, err := filepath.Rel(workspace, loc); err == nil {
				loc = rel
			}
		}
		if _, err := SafeJoin(workspace, loc); err == nil {
			loc = filepath.ToSlash(filepath.Clean(loc))
		} else {
			loc = r.Filename
		}
		if r.LineNumber > 0 {
			loc = fmt.Sprintf("%s:%d", loc, r.LineNumber)
		}
		msg := r.Text
		if r.TestID != "" {
			msg = r.TestID + ": " + msg
		}
		vulns = append(vulns, Vulnerability{Category: CategoryStatic, Severity: ParseSeverity(r.Severity), Message: msg, Location: loc})
	}
	return vulns, string(out), nil
}
