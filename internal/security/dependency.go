package security

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/semver"
)

const (
	EcosystemGo   = "go"
	EcosystemPyPI = "pypi"
	EcosystemNPM  = "npm"
)

// Advisory marks versions of a package below Fixed as vulnerable.
type Advisory struct {
	Ecosystem string
	Package   string
	Fixed     string
	ID        string
	Severity  Severity
}

var builtinAdvisories = []Advisory{
	{EcosystemGo, "golang.org/x/crypto", "v0.31.0", "GO-2024-3321", SeverityHigh},
	{EcosystemGo, "golang.org/x/net", "v0.33.0", "GO-2024-3333", SeverityMedium},
	{EcosystemGo, "google.golang.org/grpc", "v1.58.3", "GHSA-m425-mq94-257g", SeverityHigh},
	{EcosystemGo, "github.com/gin-gonic/gin", "v1.9.1", "GHSA-2c4m-59x9-fr2g", SeverityMedium},
	{EcosystemGo, "gopkg.in/yaml.v3", "v3.0.0", "GO-2022-0603", SeverityMedium},
	{EcosystemPyPI, "requests", "2.32.0", "CVE-2024-35195", SeverityMedium},
	{EcosystemPyPI, "urllib3", "1.26.18", "CVE-2023-45803", SeverityMedium},
	{EcosystemPyPI, "jinja2", "3.1.4", "CVE-2024-34064", SeverityMedium},
	{EcosystemPyPI, "pyyaml", "5.4", "CVE-2020-14343", SeverityHigh},
	{EcosystemPyPI, "aiohttp", "3.9.4", "CVE-2024-30251", SeverityHigh},
	{EcosystemPyPI, "cryptography", "42.0.4", "CVE-2024-26130", SeverityHigh},
	{EcosystemNPM, "lodash", "4.17.21", "CVE-2021-23337", SeverityHigh},
	{EcosystemNPM, "axios", "1.6.0", "CVE-2023-45857", SeverityMedium},
	{EcosystemNPM, "minimist", "1.2.6", "CVE-2021-44906", SeverityHigh},
	{EcosystemNPM, "node-fetch", "2.6.7", "CVE-2022-0235", SeverityHigh},
}

// DependencyAnalyzer checks declared dependency versions against an advisory table.
type DependencyAnalyzer struct {
	Advisories []Advisory
}

type dependency struct {
	ecosystem string
	name      string
	version   string
	file      string
}

var requirementLine = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)(?:\[[^\]]*\])?\s*(==|~=|>=|===)\s*([0-9][0-9A-Za-z.+-]*)`)

func (a *DependencyAnalyzer) Name() string { return string(CategoryDependency) }

func (a *DependencyAnalyzer) Run(ctx context.Context, workspace string) ([]Vulnerability, string, error) {
	files, err := walkWorkspace(ctx, workspace)
	if err != nil {
		return nil, "", err
	}
	advisories := a.Advisories
	if advisories == nil {
		advisories = builtinAdvisories
	}
	var (
		vulns   []Vulnerability
		deps    []dependency
		scanned []string
	)
	for _, f := range files {
		if f.Symlink {
			continue
		}
		base := path.Base(f.Rel)
		var parse func(string, string) ([]dependency, error)
		switch {
		case base == "go.mod":
			parse = parseGoMod
		case base == "package.json":
			parse = parsePackageJSON
		case base == "pyproject.toml":
			parse = parsePyProject
		case strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt"):
			parse = parseRequirements
		default:
			continue
		}
		content, ok := readText(f.Path)
		if !ok {
			continue
		}
		scanned = append(scanned, f.Rel)
		found, err := parse(f.Rel, content)
		if err != nil {
			vulns = append(vulns, Vulnerability{
				Category: CategoryDependency,
				Severity: SeverityLow,
				Message:  fmt.Sprintf("unparseable dependency manifest: %v", err),
				Location: f.Rel,
			})
			continue
		}
		deps = append(deps, found...)
	}
	for _, d := range deps {
		for _, adv := range advisories {
			if adv.Ecosystem != d.ecosystem || normalizePackage(adv.Ecosystem, adv.Package) != d.name {
				continue
			}
			if versionBelow(d.version, adv.Fixed) {
				vulns = append(vulns, Vulnerability{
					Category: CategoryDependency,
					Severity: adv.Severity,
					Message:  fmt.Sprintf("%s %s is affected by %s (fixed in %s)", d.name, d.version, adv.ID, adv.Fixed),
					Location: d.file,
				})
			}
		}
	}
	blob, _ := json.Marshal(map[string]any{"files_scanned": scanned, "dependencies": len(deps), "findings": len(vulns)})
	return vulns, string(blob), nil
}

func parseGoMod(file, content string) ([]dependency, error) {
	mf, err := modfile.Parse(file, []byte(content), nil)
	if err != nil {
		return nil, err
	}
	deps := make([]dependency, 0, len(mf.Require))
	for _, r := range mf.Require {
		deps = append(deps, dependency{ecosystem: EcosystemGo, name: r.Mod.Path, version: r.Mod.Version, file: file})
	}
	return deps, nil
}

func parseRequirements(file, content string) ([]dependency, error) {
	var deps []dependency
	for _, line := range strings.Split(content, "\n") {
		if d, ok := parseRequirement(file, line); ok {
			deps = append(deps, d)
		}
	}
	return deps, nil
}

func parseRequirement(file, line string) (dependency, bool) {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "-") {
		return dependency{}, false
	}
	m := requirementLine.FindStringSubmatch(line)
	if m == nil {
		return dependency{}, false
	}
	return dependency{ecosystem: EcosystemPyPI, name: normalizePackage(EcosystemPyPI, m[1]), version: m[3], file: file}, true
}

type pyProject struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func parsePyProject(file, content string) ([]dependency, error) {
	var doc pyProject
	if err := toml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, err
	}
	var deps []dependency
	lines := append([]string{}, doc.Project.Dependencies...)
	for _, group := range doc.Project.OptionalDependencies {
		lines = append(lines, group...)
	}
	for _, line := range lines {
		if d, ok := parseRequirement(file, line); ok {
			deps = append(deps, d)
		}
	}
	for name, spec := range doc.Tool.Poetry.Dependencies {
		v, ok := spec.(string)
		if !ok || strings.EqualFold(name, "python") {
			continue
		}
		deps = append(deps, dependency{ecosystem: EcosystemPyPI, name: normalizePackage(EcosystemPyPI, name), version: strings.TrimLeft(v, "^~=>< "), file: file})
	}
	return deps, nil
}

func parsePackageJSON(file, content string) ([]dependency, error) {
	var doc struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, err
	}
	var deps []dependency
	for _, set := range []map[string]string{doc.Dependencies, doc.DevDependencies} {
		for name, v := range set {
			deps = append(deps, dependency{ecosystem: EcosystemNPM, name: name, version: strings.TrimLeft(v, "^~=>< v"), file: file})
		}
	}
	return deps, nil
}

func normalizePackage(ecosystem, name string) string {
	if ecosystem == EcosystemPyPI {
		return strings.ReplaceAll(strings.ToLower(name), "_", "-")
	}
	return name
}

// versionBelow compares with semver. Versions that are not semver-like never match.
func versionBelow(version, fixed string) bool {
	v, f := canonical(version), canonical(fixed)
	if v == "" || f == "" {
		return false
	}
	return semver.Compare(v, f) < 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}
