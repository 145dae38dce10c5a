package features

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"golang-compliance-analytics/internal/country"
	"golang-compliance-analytics/internal/models"
)

// Classifier decides whether a transaction was sent or received by the
// account that booked it.
type Classifier struct {
	byType map[string]models.Direction
}

// NewClassifier builds a classifier from a validated direction map
func NewClassifier(directionMap map[string]string) *Classifier {
	c := &Classifier{byType: make(map[string]models.Direction, len(directionMap))}
	for k, v := range directionMap {
		if d, err := parseDirection(v); err == nil {
			c.byType[normalizeType(k)] = d
		}
	}
	return c
}

// Classify checks the transaction type first, then whether the holder's
// country is the origin or the destination.
func (c *Classifier) Classify(tx models.Transaction, holderCountry string) models.Direction {
	if d, ok := c.byType[normalizeType(tx.Type)]; ok {
		return d
	}
	if holderCountry == "" || holderCountry == country.Unknown {
		return models.DirectionUnknown
	}
	switch holderCountry {
	case tx.Origin:
		return models.DirectionSent
	case tx.Destination:
		return models.DirectionReceived
	}
	return models.DirectionUnknown
}

// Totals is the per-direction accumulation over one account's transactions.
type Totals struct {
	Transactions  int
	Received      decimal.Decimal
	ReceivedCount int64
	Sent          decimal.Decimal
	SentCount     int64
	Unclassified  []models.Transaction
}

// Accumulate folds an account's transactions into direction totals
func (c *Classifier) Accumulate(txs []models.Transaction, holderCountry string) Totals {
	t := Totals{Transactions: len(txs)}
	for _, tx := range txs {
		switch c.Classify(tx, holderCountry) {
		case models.DirectionSent:
			t.Sent = t.Sent.Add(tx.Amount)
			t.SentCount++
		case models.DirectionReceived:
			t.Received = t.Received.Add(tx.Amount)
			t.ReceivedCount++
		default:
			t.Unclassified = append(t.Unclassified, tx)
		}
	}
	return t
}

// CustomerFeature builds the data_customers_feature row for one
// customer-account. A nil totals means the account has no transactions and
// every transaction-derived field is null.
func CustomerFeature(ca models.CustomerAccount, totals *Totals, reference *time.Time) models.CustomerFeature {
	f := models.CustomerFeature{
		Customer:     ca.Customer,
		Account:      ca.Account,
		StatusDays:   StatusDays(ca.Account.StatusSince, reference),
		ProductCount: ca.DistinctProducts(),
	}
	if totals == nil || totals.Transactions == 0 {
		return f
	}

	f.ReceivedAmount = valid(totals.Received)
	f.ReceivedCount = sql.NullInt64{Int64: totals.ReceivedCount, Valid: true}
	f.SentAmount = valid(totals.Sent)
	f.SentCount = sql.NullInt64{Int64: totals.SentCount, Valid: true}

	if totals.ReceivedCount > 0 {
		f.SentReceivedRatio = valid(
			decimal.NewFromInt(totals.SentCount).Div(decimal.NewFromInt(totals.ReceivedCount)))
		f.AvgReceived = valid(totals.Received.Div(decimal.NewFromInt(totals.ReceivedCount)))
	}
	if totals.SentCount > 0 {
		f.AvgSent = valid(totals.Sent.Div(decimal.NewFromInt(totals.SentCount)))
	}
	return f
}

// StatusDays is the number of calendar days from since to reference
func StatusDays(since, reference *time.Time) sql.NullInt64 {
	if since == nil || reference == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: DaysBetween(*since, *reference), Valid: true}
}

func valid(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
