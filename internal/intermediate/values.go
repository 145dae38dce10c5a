package intermediate

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"20060102",
	"02/01/2006",
}

// Clean strips surrounding whitespace and quotes from an extract value
func Clean(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 && (s[0] == '\'' && s[len(s)-1] == '\'' || s[0] == '"' && s[len(s)-1] == '"') {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// ParseDate parses the date forms found in the extracts. A nil result with a
// nil error means the value is absent ("", "0", "0.000").
func ParseDate(s string) (*time.Time, error) {
	s = Clean(s)
	if s == "" || s == "0" || s == "0.000" || strings.EqualFold(s, "NaT") {
		return nil, nil
	}
	s = strings.TrimSuffix(s, ".000")

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q", s)
}

// ParseAmount parses a decimal amount, dropping thousands separators
func ParseAmount(s string) (decimal.Decimal, error) {
	s = Clean(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount cannot be empty")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")

	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	return d, nil
}

// columns maps canonical column names to positions in a raw row
type columns map[string]int

func (c columns) get(values []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(values) {
		return ""
	}
	return values[i]
}
