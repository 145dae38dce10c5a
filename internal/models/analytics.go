package models

import (
	"database/sql"
)

// AnomalyStatus tells whether a row received a numeric score.
type AnomalyStatus string

const (
	AnomalyScored              AnomalyStatus = "SCORED"
	AnomalyInsufficientHistory AnomalyStatus = "INSUFFICIENT_HISTORY"
)

// Labels used in the anomaly and series flag columns.
const (
	LabelAnomalous = "ANOMALO"
	LabelNormal    = "NO ANOMALO"
)

// AnomalyResult is the anomaly score attached to a transaction feature row.
// Score is null when Status is AnomalyInsufficientHistory.
type AnomalyResult struct {
	Status      AnomalyStatus   `json:"status"`
	Score       sql.NullFloat64 `json:"score"`
	Flagged     bool            `json:"flagged"`
	AmountZ     sql.NullFloat64 `json:"amount_z"`
	GapZ        sql.NullFloat64 `json:"gap_z"`
	PopulationZ sql.NullFloat64 `json:"population_z"`
}

// Label renders the ANOMALO column
func (r *AnomalyResult) Label() string {
	if r != nil && r.Flagged {
		return LabelAnomalous
	}
	return LabelNormal
}

// AnomalySummary aggregates anomaly results per account and month.
type AnomalySummary struct {
	Account   string          `json:"cuenta"`
	Month     YearMonth       `json:"mes_anio"`
	Total     int             `json:"total_trx"`
	Anomalous int             `json:"trx_anomalas"`
	MaxScore  sql.NullFloat64 `json:"max_puntaje"`
	Flagged   bool            `json:"estado"`
}

// SeriesStatus tells whether a series was long enough to fit.
type SeriesStatus string

const (
	SeriesFitted                   SeriesStatus = "FITTED"
	SeriesInsufficientSeriesLength SeriesStatus = "INSUFFICIENT_SERIES_LENGTH"
)

// SeriesKeyKind selects how transactions are grouped into series.
type SeriesKeyKind string

const (
	SeriesByAccount     SeriesKeyKind = "account"
	SeriesByCorridor    SeriesKeyKind = "corridor"
	SeriesByAccountType SeriesKeyKind = "account_type"
)

// IsValid checks if the key kind is supported
func (k SeriesKeyKind) IsValid() bool {
	switch k {
	case SeriesByAccount, SeriesByCorridor, SeriesByAccountType:
		return true
	}
	return false
}

// SeriesPoint is one month of a series. Months without transactions are
// present with Observed=false and a zero value.
type SeriesPoint struct {
	Month    YearMonth `json:"mes_anio"`
	Value    float64   `json:"value"`
	Observed bool      `json:"observed"`
	Capped   bool      `json:"capped,omitempty"`
}

// ForecastPoint is a forecast month with its confidence band.
type ForecastPoint struct {
	Month YearMonth `json:"mes_anio"`
	Value float64   `json:"value"`
	Lower float64   `json:"lower"`
	Upper float64   `json:"upper"`
}

// Decomposition holds classical additive components. Entries are null where
// the centered trend window is incomplete.
type Decomposition struct {
	Trend    []sql.NullFloat64 `json:"trend"`
	Seasonal []float64         `json:"seasonal"`
	Residual []sql.NullFloat64 `json:"residual"`
}

// SeriesResult is the analysis of one account or corridor series.
type SeriesResult struct {
	Key           string          `json:"key"`
	KeyKind       SeriesKeyKind   `json:"key_kind"`
	Status        SeriesStatus    `json:"status"`
	Points        []SeriesPoint   `json:"points"`
	Decomposition *Decomposition  `json:"decomposition,omitempty"`
	Fitted        []float64       `json:"fitted,omitempty"`
	Residuals     []float64       `json:"residuals,omitempty"`
	ResidualStd   float64         `json:"residual_std,omitempty"`
	Deviations    []bool          `json:"deviations,omitempty"`
	Forecast      []ForecastPoint `json:"forecast,omitempty"`
}

// DeviationAt reports the deviation flag for month. ok is false when the
// series was not fitted or month is outside it.
func (s *SeriesResult) DeviationAt(month YearMonth) (flagged bool, ok bool) {
	if s.Status != SeriesFitted || len(s.Points) == 0 || len(s.Deviations) != len(s.Points) {
		return false, false
	}
	i := month.Ordinal() - s.Points[0].Month.Ordinal()
	if i < 0 || i >= len(s.Points) {
		return false, false
	}
	return s.Deviations[i], true
}

// SeriesFlag is the series information attached to a transaction row.
type SeriesFlag struct {
	Status    SeriesStatus `json:"status"`
	Deviation sql.NullBool `json:"deviation"`
}
