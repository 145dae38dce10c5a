// Package country normalizes ISO 3166-1 country codes.
//
// Bank extracts mix numeric ("840"), alpha-2 ("US") and alpha-3 ("USA")
// codes, sometimes within the same column. A Normalizer maps every
// recognized form to one canonical representation chosen for the whole run.
// Unrecognized codes either fail with an UNKNOWN_COUNTRY_CODE error
// (Normalize) or resolve to the Unknown sentinel (Resolve).
package country

import (
	"fmt"
	"strconv"
	"strings"

	"golang-compliance-analytics/pkg/errors"
)

// Unknown is the canonical value for codes that cannot be recognized.
const Unknown = "UNKNOWN"

// Missing is the placeholder the source extracts use for absent values.
const Missing = "SIN INFO"

// Representation selects the canonical output form.
type Representation string

const (
	Alpha2  Representation = "alpha2"
	Alpha3  Representation = "alpha3"
	Numeric Representation = "numeric"
)

// IsValid checks if the representation is supported
func (r Representation) IsValid() bool {
	switch r {
	case Alpha2, Alpha3, Numeric:
		return true
	default:
		return false
	}
}

// Form is the detected shape of an input code.
type Form int

const (
	FormUnknown Form = iota
	FormAlpha2
	FormAlpha3
	FormNumeric
)

var (
	byAlpha2  = make(map[string]*entry, len(isoTable))
	byAlpha3  = make(map[string]*entry, len(isoTable))
	byNumeric = make(map[string]*entry, len(isoTable))
)

func init() {
	for i := range isoTable {
		e := &isoTable[i]
		byAlpha2[e.alpha2] = e
		byAlpha3[e.alpha3] = e
		byNumeric[e.numeric] = e
	}
}

// Normalizer converts codes to a fixed canonical representation. It holds no
// mutable state and is safe to share between goroutines.
type Normalizer struct {
	target Representation
}

// NewNormalizer creates a normalizer targeting the given representation
func NewNormalizer(target Representation) (*Normalizer, error) {
	if target == "" {
		target = Alpha3
	}
	if !target.IsValid() {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "country_representation", target, nil).
			WithSuggestion("use one of alpha2, alpha3, numeric")
	}
	return &Normalizer{target: target}, nil
}

// Target returns the canonical representation
func (n *Normalizer) Target() Representation {
	return n.target
}

// Detect reports which ISO form code has, without checking that it is assigned.
func Detect(code string) Form {
	code = clean(code)
	switch {
	case code == "":
		return FormUnknown
	case isDigits(code) && len(code) <= 3:
		return FormNumeric
	case isLetters(code) && len(code) == 2:
		return FormAlpha2
	case isLetters(code) && len(code) == 3:
		return FormAlpha3
	default:
		return FormUnknown
	}
}

// IsMissing reports whether code is empty or the extract's missing placeholder.
func IsMissing(code string) bool {
	c := clean(code)
	return c == "" || c == Missing || c == "NAN" || c == "NONE"
}

// Normalize returns the canonical form of code or an UNKNOWN_COUNTRY_CODE error.
func (n *Normalizer) Normalize(code string) (string, error) {
	e := lookup(code)
	if e == nil {
		return "", errors.DataQualityError(errors.CodeUnknownCountryCode, "country", code)
	}
	switch n.target {
	case Alpha2:
		return e.alpha2, nil
	case Numeric:
		return e.numeric, nil
	default:
		return e.alpha3, nil
	}
}

// Resolve is Normalize with the Unknown sentinel in place of the error.
// The boolean reports whether code was recognized.
func (n *Normalizer) Resolve(code string) (string, bool) {
	canonical, err := n.Normalize(code)
	if err != nil {
		return Unknown, false
	}
	return canonical, true
}

func lookup(code string) *entry {
	c := clean(code)
	if alias, ok := legacyAliases[c]; ok {
		c = alias
	}
	switch Detect(c) {
	case FormNumeric:
		n, err := strconv.Atoi(c)
		if err != nil {
			return nil
		}
		if alias, ok := legacyAliases[fmt.Sprintf("%03d", n)]; ok {
			return byAlpha2[alias]
		}
		return byNumeric[fmt.Sprintf("%03d", n)]
	case FormAlpha2:
		return byAlpha2[c]
	case FormAlpha3:
		return byAlpha3[c]
	default:
		return nil
	}
}

func clean(code string) string {
	return strings.ToUpper(strings.Trim(strings.TrimSpace(code), `'"`))
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return s != ""
}
