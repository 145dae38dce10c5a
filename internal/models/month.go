package models

import (
	"fmt"
	"time"
)

// YearMonth is a calendar month bucket.
type YearMonth struct {
	Year  int
	Month time.Month
}

// MonthOf returns the bucket t falls into
func MonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// ParseYearMonth parses the "2006-01" form
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid year-month %q: %w", s, err)
	}
	return MonthOf(t), nil
}

// String renders the bucket as 2006-01
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Ordinal is a month count usable for arithmetic between buckets.
func (ym YearMonth) Ordinal() int {
	return ym.Year*12 + int(ym.Month) - 1
}

// FromOrdinal inverts Ordinal
func FromOrdinal(n int) YearMonth {
	return YearMonth{Year: n / 12, Month: time.Month(n%12 + 1)}
}

// Add moves the bucket by n months
func (ym YearMonth) Add(n int) YearMonth {
	return FromOrdinal(ym.Ordinal() + n)
}

// Prev returns the preceding calendar month
func (ym YearMonth) Prev() YearMonth {
	return ym.Add(-1)
}

// Before reports whether ym is earlier than other
func (ym YearMonth) Before(other YearMonth) bool {
	return ym.Ordinal() < other.Ordinal()
}

// IsZero reports whether the bucket is unset
func (ym YearMonth) IsZero() bool {
	return ym.Year == 0 && ym.Month == 0
}

// MarshalText lets YearMonth act as a JSON string and map key
func (ym YearMonth) MarshalText() ([]byte, error) {
	return []byte(ym.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (ym *YearMonth) UnmarshalText(b []byte) error {
	parsed, err := ParseYearMonth(string(b))
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}
