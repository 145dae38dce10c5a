package parsers

import (
	"fmt"
	"strings"

	"golang-compliance-analytics/internal/models"
)

// Format is the layout of an input file.
type Format string

const (
	// FormatCSV is delimited text with a header row.
	FormatCSV Format = "csv"
	// FormatFixed is the whitespace-separated extract layout with quoted tokens.
	FormatFixed Format = "fixed"
)

// Encoding is the character set of an input file.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf-8"
	EncodingLatin1 Encoding = "latin1"
)

// ParseConfig holds configuration for reading input tables
type ParseConfig struct {
	Format           Format   `json:"format"`
	Encoding         Encoding `json:"encoding"`
	Delimiter        rune     `json:"delimiter"`
	Comment          rune     `json:"comment"`
	TrimLeadingSpace bool     `json:"trim_leading_space"`
	SkipEmptyRows    bool     `json:"skip_empty_rows"`
	MaxFieldSize     int      `json:"max_field_size"`
	ValidateEncoding bool     `json:"validate_encoding"`
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Format:           FormatCSV,
		Encoding:         EncodingUTF8,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     1 << 20,
		ValidateEncoding: true,
	}
}

// Validate checks if the parse configuration is valid
func (c *ParseConfig) Validate() error {
	switch c.Format {
	case FormatCSV, FormatFixed:
	default:
		return fmt.Errorf("invalid input format: %s", c.Format)
	}

	switch c.Encoding {
	case EncodingUTF8, EncodingLatin1:
	default:
		return fmt.Errorf("invalid encoding: %s", c.Encoding)
	}

	if c.Format == FormatCSV && (c.Delimiter == 0 || c.Delimiter == '\n' || c.Delimiter == '"') {
		return fmt.Errorf("invalid delimiter: %q", c.Delimiter)
	}

	if c.MaxFieldSize < 0 {
		return fmt.Errorf("max field size cannot be negative")
	}

	return nil
}

// TableSpec describes the column contract of one input dataset.
type TableSpec struct {
	Dataset  string            `json:"dataset"`
	Columns  []string          `json:"columns"`
	Required []string          `json:"required"`
	Aliases  map[string]string `json:"aliases,omitempty"`
	Defaults map[string]string `json:"defaults,omitempty"`
}

// Canonical maps a header as found in a file to the documented column name.
// Quotes and surrounding space are dropped, the name is upper-cased, inner
// spaces become underscores and aliases are applied.
func (s *TableSpec) Canonical(header string) string {
	name := strings.ToUpper(strings.Trim(strings.TrimSpace(header), `'"`))
	name = strings.Join(strings.Fields(name), "_")
	if alias, ok := s.Aliases[name]; ok {
		return alias
	}
	return name
}

// StandardizeHeader returns the canonical form of every header
func (s *TableSpec) StandardizeHeader(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = s.Canonical(h)
	}
	return out
}

// MissingRequired lists required columns absent from a canonical header
func (s *TableSpec) MissingRequired(headers []string) []string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	var missing []string
	for _, r := range s.Required {
		if !present[r] {
			missing = append(missing, r)
		}
	}
	return missing
}

// CustomersSpec is the CLIENTES contract
func CustomersSpec() *TableSpec {
	return &TableSpec{
		Dataset: models.DatasetCustomers,
		Columns: []string{
			"CODIGO", "TIPO_CLIENTE", "FECHA_ACTUALIZACION", "PEP", "RIESGO", "PAIS",
			"CUENTA", "TIPO_CUENTA", "ESTADO_CUENTA", "FECHA_ESTADO_CUENTA",
		},
		Required: []string{"CODIGO", "TIPO_CLIENTE"},
		Aliases: map[string]string{
			"CODE":           "CODIGO",
			"CUSTOMER_ID":    "CODIGO",
			"TIPO":           "TIPO_CLIENTE",
			"COUNTRY":        "PAIS",
			"ACCOUNT":        "CUENTA",
			"NUMERO_CUENTA":  "CUENTA",
			"FECHA_ESTADO":   "FECHA_ESTADO_CUENTA",
			"ESTADO":         "ESTADO_CUENTA",
			"NIVEL_RIESGO":   "RIESGO",
			"FECHA_ACTUALIZ": "FECHA_ACTUALIZACION",
		},
		Defaults: map[string]string{
			"PEP":                 "SIN INFO",
			"RIESGO":              "SIN INFO",
			"PAIS":                "SIN INFO",
			"FECHA_ACTUALIZACION": "0.000",
		},
	}
}

// ProductsSpec is the PRODUCTOS contract
func ProductsSpec() *TableSpec {
	return &TableSpec{
		Dataset:  models.DatasetProducts,
		Columns:  []string{"CUENTA", "PRODUCTO", "TIPO_PRODUCTO"},
		Required: []string{"CUENTA", "PRODUCTO", "TIPO_PRODUCTO"},
		Aliases: map[string]string{
			"ACCOUNT":      "CUENTA",
			"PRODUCT":      "PRODUCTO",
			"ID_PRODUCTO":  "PRODUCTO",
			"PRODUCT_TYPE": "TIPO_PRODUCTO",
		},
	}
}

// TransactionsSpec is the TRANSACCIONES contract
func TransactionsSpec() *TableSpec {
	return &TableSpec{
		Dataset: models.DatasetTransactions,
		Columns: []string{
			"CUENTA", "FECHA_TRANSACCION", "TIPO_TRANSACCION", "MONTO",
			"PAIS_ORIGEN_TRANSACCION", "PAIS_DESTINO_TRANSACCION",
		},
		Required: []string{
			"CUENTA", "FECHA_TRANSACCION", "TIPO_TRANSACCION", "MONTO",
			"PAIS_ORIGEN_TRANSACCION", "PAIS_DESTINO_TRANSACCION",
		},
		Aliases: map[string]string{
			"ACCOUNT":      "CUENTA",
			"FECHA":        "FECHA_TRANSACCION",
			"DATE":         "FECHA_TRANSACCION",
			"TIPO":         "TIPO_TRANSACCION",
			"AMOUNT":       "MONTO",
			"PAIS_ORIGEN":  "PAIS_ORIGEN_TRANSACCION",
			"PAIS_DESTINO": "PAIS_DESTINO_TRANSACCION",
			"ORIGIN":       "PAIS_ORIGEN_TRANSACCION",
			"DESTINATION":  "PAIS_DESTINO_TRANSACCION",
		},
		Defaults: map[string]string{
			"PAIS_ORIGEN_TRANSACCION":  "SIN INFO",
			"PAIS_DESTINO_TRANSACCION": "SIN INFO",
		},
	}
}
