package security

const (
	DefaultRiskThreshold = 50
	maxRisk              = 100
)

var staticWeights = map[Severity]int{
	SeverityHigh:   25,
	SeverityMedium: 10,
	SeverityLow:    2,
}

var categoryWeights = map[Category]int{
	CategoryDependency:    15,
	CategoryCodeQuality:   5,
	CategoryFileStructure: 10,
	CategoryScanError:     25,
}

// RiskScore sums per-finding weights and caps the total at 100.
func RiskScore(vulns []Vulnerability) int {
	score := 0
	for _, v := range vulns {
		if v.Category == CategoryStatic {
			score += staticWeights[v.Severity]
		} else {
			score += categoryWeights[v.Category]
		}
		if score >= maxRisk {
			return maxRisk
		}
	}
	return score
}

// Passed requires a score strictly below threshold and no high findings.
func Passed(score, threshold int, vulns []Vulnerability) bool {
	if score >= threshold {
		return false
	}
	for _, v := range vulns {
		if v.Severity == SeverityHigh {
			return false
		}
	}
	return true
}
