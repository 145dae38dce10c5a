package parsers

import (
	"regexp"
	"strings"

	"golang-compliance-analytics/internal/models"
)

const (
	quotedOrBare = `('[^']*'|\S+)`
	sep          = `(?:\s+|$)`
)

// Layouts of the legacy extract. Multi-word labels such as "SIN INFO" and
// "MEDIO BAJO" are why CLIENTES cannot be split on whitespace alone.
var fixedPatterns = map[string]*regexp.Regexp{
	models.DatasetCustomers: regexp.MustCompile(`^` +
		`(\S+)\s+(\S+)` + sep +
		`(?:(\d{8}\.000|\d{8}|0\.000|0)` + sep + `)?` +
		`(?:(NO|SIN INFO|SI)` + sep + `)?` +
		`(?:(MEDIO BAJO|MEDIO ALTO|ALTO|MEDIO|BAJO|SIN INFO)` + sep + `)?` +
		`(?:(SIN INFO|'[^']*'|[A-Za-z]{2,3}|\d{1,3})` + sep + `)?` +
		`(?:(\S+)` + sep + `)?(?:(\S+)` + sep + `)?(?:(\S+)` + sep + `)?(?:(\S+)` + sep + `)?$`),
	models.DatasetTransactions: regexp.MustCompile(`^` +
		quotedOrBare + `\s+` +
		`(\d{4}-\d{2}-\d{2}(?:[ T]\d{2}:\d{2}:\d{2})?)\s+` +
		quotedOrBare + `\s+` +
		`(-?[\d.,]+)\s*` +
		quotedOrBare + `?\s*` +
		quotedOrBare + `?\s*$`),
	models.DatasetProducts: regexp.MustCompile(`^` +
		quotedOrBare + `\s+` +
		quotedOrBare + `\s+` +
		`('[^']*'|.+?)\s*$`),
}

// splitFixed extracts the values of one fixed-layout line, aligned to header.
// Lines the layout pattern rejects fall back to quote-aware whitespace
// splitting. Missing trailing values take the dataset default.
func splitFixed(line string, spec *TableSpec, header []string) []string {
	var fields []string
	if pattern, ok := fixedPatterns[spec.Dataset]; ok {
		if m := pattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			fields = m[1:]
		}
	}
	if fields == nil {
		fields = tokenize(line)
	}

	values := make([]string, len(header))
	for i, h := range header {
		if i < len(fields) && fields[i] != "" {
			values[i] = fields[i]
			continue
		}
		values[i] = spec.Defaults[spec.Canonical(h)]
	}
	return values
}

// tokenize splits on whitespace, keeping single-quoted tokens intact
func tokenize(line string) []string {
	var (
		tokens  []string
		current strings.Builder
		quoted  bool
	)
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range line {
		switch {
		case r == '\'':
			quoted = !quoted
			current.WriteRune(r)
			if !quoted {
				flush()
			}
		case !quoted && (r == ' ' || r == '\t'):
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return tokens
}
