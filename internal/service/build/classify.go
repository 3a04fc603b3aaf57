package build

import (
	"strings"

	"github.com/hangarhq/hangar/internal/domain"
)

// classificationRule maps a stderr substring to a log level. Rules are
// checked in order; the first match wins.
type classificationRule struct {
	marker string
	level  string
}

// stderrRules downgrades well-known package-manager noise to WARN. Anything
// unmatched on stderr is treated as a real error.
var stderrRules = []classificationRule{
	{marker: "warn", level: domain.LogLevelWarn},
	{marker: "deprecated", level: domain.LogLevelWarn},
	{marker: "deprecation", level: domain.LogLevelWarn},
	{marker: "outdated", level: domain.LogLevelWarn},
	{marker: "notice", level: domain.LogLevelWarn},
}

// ClassifyStderr assigns a log level to one stderr line.
func ClassifyStderr(line string) string {
	lowered := strings.ToLower(line)
	for _, rule := range stderrRules {
		if strings.Contains(lowered, rule.marker) {
			return rule.level
		}
	}
	return domain.LogLevelError
}
