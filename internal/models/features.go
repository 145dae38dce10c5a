package models

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

// TransactionFeature is one data_trx_feature row. Null fields carry the
// "not computable" sentinel: DaysSincePrevious is null only for the first
// transaction of an account, MonthlyVariation when there is no usable prior
// month.
type TransactionFeature struct {
	Transaction

	DaysSincePrevious sql.NullInt64       `json:"dias_entre_trx"`
	MonthlyVariation  decimal.NullDecimal `json:"variacion_monto_mes_anio"`
	Corridor          string              `json:"pais_origen_destino_trx"`
	Month             YearMonth           `json:"mes_anio"`
	MonthlyCumulative decimal.Decimal     `json:"acum_monto_mes_anio"`

	// Direction and AccountType describe the row relative to its account
	// holder. They feed the analytics stages and are not output columns.
	Direction   Direction `json:"direction"`
	AccountType string    `json:"tipo_cuenta,omitempty"`

	Anomaly *AnomalyResult `json:"anomaly,omitempty"`
	Series  *SeriesFlag    `json:"series,omitempty"`
}

// Direction of a transaction relative to the account that booked it.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionSent
	DirectionReceived
)

// String returns the direction label
func (d Direction) String() string {
	switch d {
	case DirectionSent:
		return "sent"
	case DirectionReceived:
		return "received"
	default:
		return "unclassified"
	}
}

// CustomerFeature is one data_customers_feature row. All transaction-derived
// fields are null when the account has no transactions.
type CustomerFeature struct {
	Customer Customer `json:"customer"`
	Account  Account  `json:"account"`

	ReceivedAmount    decimal.NullDecimal `json:"monto_trx_recibida"`
	ReceivedCount     sql.NullInt64       `json:"frecuencia_trx_recibida"`
	SentAmount        decimal.NullDecimal `json:"monto_trx_enviada"`
	SentCount         sql.NullInt64       `json:"frecuencia_trx_enviada"`
	StatusDays        sql.NullInt64       `json:"tiempo_estado_cuenta"`
	SentReceivedRatio decimal.NullDecimal `json:"ratio_trx_enviadas_recibidas"`
	AvgReceived       decimal.NullDecimal `json:"monto_prom_trx_recibida"`
	AvgSent           decimal.NullDecimal `json:"monto_prom_trx_enviada"`
	ProductCount      int                 `json:"cant_prod"`
}

// FeatureDataset is the artifact written by the feature engineering stage and
// enriched by the analytics stages.
type FeatureDataset struct {
	Transactions   []TransactionFeature `json:"data_trx_feature"`
	Customers      []CustomerFeature    `json:"data_customers_feature"`
	AnomalyScored  bool                 `json:"anomaly_scored"`
	SeriesAnalyzed bool                 `json:"series_analyzed"`
	AnomalySummary []AnomalySummary     `json:"anomaly_summary,omitempty"`
	Series         []SeriesResult       `json:"series,omitempty"`
}
