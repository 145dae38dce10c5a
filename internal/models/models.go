// Package models defines the records that flow between pipeline stages.
//
// Records are plain values. Every stage receives its input as an immutable
// snapshot and returns new slices; nothing in this package is mutated after a
// stage hands it on.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Dataset names used for input tables and issue reporting.
const (
	DatasetCustomers    = "CLIENTES"
	DatasetProducts     = "PRODUCTOS"
	DatasetTransactions = "TRANSACCIONES"
)

// RawRow is one input line with its string fields, in header order.
type RawRow struct {
	Line   int      `json:"line"`
	Values []string `json:"values"`
}

// RawTable holds a string-typed input table as extracted.
type RawTable struct {
	Dataset string   `json:"dataset"`
	Header  []string `json:"header"`
	Rows    []RawRow `json:"rows"`
}

// Customer is a bank customer as loaded from CLIENTES.
type Customer struct {
	Code       string     `json:"codigo"`
	Type       string     `json:"tipo_cliente"`
	UpdatedAt  *time.Time `json:"fecha_actualizacion,omitempty"`
	PEPLabel   string     `json:"pep_label"`
	PEP        int        `json:"pep"`
	RiskLabel  string     `json:"riesgo_label"`
	Risk       int        `json:"riesgo"`
	CountryRaw string     `json:"pais_raw"`
	Country    string     `json:"pais"`
}

// Account belongs to exactly one customer. An empty Number means the
// customer row carried no account.
type Account struct {
	Number      string     `json:"cuenta"`
	Type        string     `json:"tipo_cuenta"`
	Status      string     `json:"estado_cuenta"`
	StatusSince *time.Time `json:"fecha_estado_cuenta,omitempty"`
}

// Product is linked to one account.
type Product struct {
	Line    int    `json:"line"`
	Account string `json:"cuenta"`
	ID      string `json:"producto"`
	Type    string `json:"tipo_producto"`
}

// CustomerAccount is one row of the customer-account view: a customer, one of
// its accounts and the products linked to that account.
type CustomerAccount struct {
	Line     int       `json:"line"`
	Customer Customer  `json:"customer"`
	Account  Account   `json:"account"`
	Products []Product `json:"products"`
}

// HasAccount reports whether the row carries an account number
func (ca *CustomerAccount) HasAccount() bool {
	return ca.Account.Number != ""
}

// DistinctProducts counts the distinct product identifiers linked to the account
func (ca *CustomerAccount) DistinctProducts() int {
	seen := make(map[string]struct{}, len(ca.Products))
	for _, p := range ca.Products {
		seen[p.ID] = struct{}{}
	}
	return len(seen)
}

// CustomerAccountView is the left join of customers with their products.
type CustomerAccountView struct {
	Rows []CustomerAccount `json:"rows"`
}

// Accounts returns the set of known account numbers
func (v *CustomerAccountView) Accounts() map[string]*CustomerAccount {
	out := make(map[string]*CustomerAccount, len(v.Rows))
	for i := range v.Rows {
		if v.Rows[i].HasAccount() {
			out[v.Rows[i].Account.Number] = &v.Rows[i]
		}
	}
	return out
}

// Transaction is a cleaned TRANSACCIONES row. Account is a weak reference
// resolved against the customer-account view. Index is the position in the
// input and breaks ties between transactions with equal dates.
type Transaction struct {
	Index       int             `json:"index"`
	Line        int             `json:"line"`
	Account     string          `json:"cuenta"`
	Date        time.Time       `json:"fecha_transaccion"`
	Type        string          `json:"tipo_transaccion"`
	Amount      decimal.Decimal `json:"monto"`
	Origin      string          `json:"pais_origen_transaccion"`
	Destination string          `json:"pais_destino_transaccion"`
}

// DedupKey identifies exact duplicates: same account, date, type, amount and
// both countries.
func (t *Transaction) DedupKey() string {
	return strings.Join([]string{
		t.Account,
		t.Date.UTC().Format(time.RFC3339Nano),
		t.Type,
		t.Amount.String(),
		t.Origin,
		t.Destination,
	}, "\x1f")
}

// Validate checks the transaction invariants
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.Account) == "" {
		return fmt.Errorf("transaction account cannot be empty")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("transaction amount cannot be negative: %s", t.Amount)
	}
	if t.Origin == "" && t.Destination == "" {
		return fmt.Errorf("transaction needs an origin or a destination country")
	}
	return nil
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{Account: %s, Date: %s, Type: %s, Amount: %s, %s->%s}",
		t.Account, t.Date.Format(time.RFC3339), t.Type, t.Amount.String(), t.Origin, t.Destination)
}

// PrimaryDataset is the canonical input to feature engineering.
type PrimaryDataset struct {
	Customers    CustomerAccountView `json:"customers"`
	Transactions []Transaction       `json:"transactions"`
}

// IntermediateDataset is the typed, joined and cleaned output of the
// intermediate stage.
type IntermediateDataset struct {
	Customers    CustomerAccountView `json:"customers"`
	Transactions []Transaction       `json:"transactions"`
}

// RawDataset groups the three input tables.
type RawDataset struct {
	Customers    *RawTable `json:"clientes"`
	Products     *RawTable `json:"productos"`
	Transactions *RawTable `json:"transacciones"`
}
