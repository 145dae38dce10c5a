package parsers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"golang-compliance-analytics/internal/models"
	"golang-compliance-analytics/pkg/errors"
)

// cell returns the named field of row, or "" when the row is short
func cell(table *models.RawTable, row models.RawRow, column string) string {
	for i, h := range table.Header {
		if h == column && i < len(row.Values) {
			return row.Values[i]
		}
	}
	return ""
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func newParser(t *testing.T, mutate func(*ParseConfig)) *TableParser {
	t.Helper()
	config := DefaultParseConfig()
	if mutate != nil {
		mutate(config)
	}
	parser, err := NewTableParser(config)
	if err != nil {
		t.Fatalf("NewTableParser() error = %v", err)
	}
	return parser
}

func TestParseConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ParseConfig)
		wantErr bool
	}{
		{"default", func(*ParseConfig) {}, false},
		{"fixed latin1", func(c *ParseConfig) { c.Format = FormatFixed; c.Encoding = EncodingLatin1 }, false},
		{"bad format", func(c *ParseConfig) { c.Format = "parquet" }, true},
		{"bad encoding", func(c *ParseConfig) { c.Encoding = "utf-16" }, true},
		{"quote delimiter", func(c *ParseConfig) { c.Delimiter = '"' }, true},
		{"negative field size", func(c *ParseConfig) { c.MaxFieldSize = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultParseConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestReadTableCSV(t *testing.T) {
	path := writeFile(t, "trx.csv", []byte(
		"CUENTA,FECHA_TRANSACCION,TIPO_TRANSACCION,MONTO,PAIS_ORIGEN_TRANSACCION,PAIS_DESTINO_TRANSACCION\n"+
			"'S1',2024-01-10 10:00:00,'Wires Out',100.000,'US','CA'\n"+
			"\n"+
			"'S1',2024-01-20 10:00:00,'Wires In',50.000,840,'CA'\n"))

	table, stats, err := newParser(t, nil).ReadTable(context.Background(), path, TransactionsSpec())
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}

	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	if got := cell(table, table.Rows[0], "CUENTA"); got != "'S1'" {
		t.Errorf("expected quotes to be preserved in raw values, got %q", got)
	}
	if table.Rows[1].Line != 4 {
		t.Errorf("expected second row on line 4, got %d", table.Rows[1].Line)
	}
	if stats.RecordsParsed != 2 {
		t.Errorf("expected 2 parsed records, got %d", stats.RecordsParsed)
	}
}

func TestReadTableSemicolon(t *testing.T) {
	path := writeFile(t, "productos.csv", []byte("CUENTA;PRODUCTO;TIPO_PRODUCTO\nA1;P1;CREDITO\n"))

	table, _, err := newParser(t, func(c *ParseConfig) { c.Delimiter = ';' }).
		ReadTable(context.Background(), path, ProductsSpec())
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	if got := cell(table, table.Rows[0], "TIPO_PRODUCTO"); got != "CREDITO" {
		t.Errorf("unexpected value %q", got)
	}
}

func TestReadTableErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, _, err := newParser(t, nil).ReadTable(context.Background(), "/does/not/exist.csv", CustomersSpec())
		if !errors.HasCode(err, errors.CodeFileNotFound) {
			t.Errorf("expected file not found, got %v", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeFile(t, "empty.csv", nil)
		_, _, err := newParser(t, nil).ReadTable(context.Background(), path, CustomersSpec())
		pe, ok := errors.AsPipelineError(err)
		if !ok || pe.Category != errors.CategorySchema {
			t.Errorf("expected schema error, got %v", err)
		}
	})

	t.Run("invalid utf-8", func(t *testing.T) {
		path := writeFile(t, "latin.csv", []byte("CODIGO,TIPO_CLIENTE\nC1,JUR\xcdDICO\n"))
		_, _, err := newParser(t, nil).ReadTable(context.Background(), path, CustomersSpec())
		if !errors.HasCode(err, errors.CodeEncodingError) {
			t.Errorf("expected encoding error, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		path := writeFile(t, "c.csv", []byte("CODIGO,TIPO_CLIENTE\nC1,NATURAL\n"))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := newParser(t, nil).ReadTable(ctx, path, CustomersSpec())
		if err == nil {
			t.Errorf("expected cancellation error")
		}
	})
}

func TestReadTableLatin1(t *testing.T) {
	path := writeFile(t, "latin.csv", []byte("CODIGO,TIPO_CLIENTE\nC1,JUR\xcdDICO\n"))

	table, _, err := newParser(t, func(c *ParseConfig) { c.Encoding = EncodingLatin1 }).
		ReadTable(context.Background(), path, CustomersSpec())
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	if got := cell(table, table.Rows[0], "TIPO_CLIENTE"); got != "JURÍDICO" {
		t.Errorf("expected decoded latin1 value, got %q", got)
	}
}

func TestReadTableFixedCustomers(t *testing.T) {
	path := writeFile(t, "clientes.txt", []byte(
		"CODIGO TIPO_CLIENTE FECHA_ACTUALIZACION PEP RIESGO PAIS CUENTA TIPO_CUENTA ESTADO_CUENTA FECHA_ESTADO_CUENTA\n"+
			"C001 NATURAL 20230115.000 NO MEDIO BAJO US A1 AHORRO ACTIVA 20200101\n"+
			"C002 JURIDICO 0.000 SIN INFO SIN INFO\n"))

	table, _, err := newParser(t, func(c *ParseConfig) { c.Format = FormatFixed }).
		ReadTable(context.Background(), path, CustomersSpec())
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}

	first := table.Rows[0]
	expect := map[string]string{
		"CODIGO":              "C001",
		"FECHA_ACTUALIZACION": "20230115.000",
		"PEP":                 "NO",
		"RIESGO":              "MEDIO BAJO",
		"PAIS":                "US",
		"CUENTA":              "A1",
		"FECHA_ESTADO_CUENTA": "20200101",
	}
	for column, want := range expect {
		if got := cell(table, first, column); got != want {
			t.Errorf("%s = %q, want %q", column, got, want)
		}
	}

	second := table.Rows[1]
	if got := cell(table, second, "PEP"); got != "SIN INFO" {
		t.Errorf("PEP = %q, want SIN INFO", got)
	}
	if got := cell(table, second, "PAIS"); got != "SIN INFO" {
		t.Errorf("expected default for missing PAIS, got %q", got)
	}
	if got := cell(table, second, "CUENTA"); got != "" {
		t.Errorf("expected empty CUENTA, got %q", got)
	}
}

func TestReadTableFixedTransactions(t *testing.T) {
	path := writeFile(t, "trx.txt", []byte(
		"CUENTA FECHA_TRANSACCION TIPO_TRANSACCION MONTO PAIS_ORIGEN_TRANSACCION PAIS_DESTINO_TRANSACCION\n"+
			"'S1' 2024-01-10 10:00:00 'Wires Out' 100.000 'US' 840\n"+
			"'S2' 2024-02-01 09:30:00 'Wires Out' 7.500\n"))

	table, _, err := newParser(t, func(c *ParseConfig) { c.Format = FormatFixed }).
		ReadTable(context.Background(), path, TransactionsSpec())
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}

	first := table.Rows[0]
	if got := cell(table, first, "FECHA_TRANSACCION"); got != "2024-01-10 10:00:00" {
		t.Errorf("unexpected date %q", got)
	}
	if got := cell(table, first, "TIPO_TRANSACCION"); got != "'Wires Out'" {
		t.Errorf("unexpected type %q", got)
	}
	if got := cell(table, first, "PAIS_DESTINO_TRANSACCION"); got != "840" {
		t.Errorf("unexpected destination %q", got)
	}

	second := table.Rows[1]
	if got := cell(table, second, "PAIS_ORIGEN_TRANSACCION"); got != "SIN INFO" {
		t.Errorf("expected default origin, got %q", got)
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("'S1'  2024-01-10 'Wires Out' 100.000 '' 840")
	want := []string{"'S1'", "2024-01-10", "'Wires Out'", "100.000", "''", "840"}
	if len(got) != len(want) {
		t.Fatalf("tokenize() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTableSpecCanonical(t *testing.T) {
	spec := TransactionsSpec()
	tests := map[string]string{
		" cuenta ":          "CUENTA",
		"'MONTO'":           "MONTO",
		"Pais Origen":       "PAIS_ORIGEN_TRANSACCION",
		"fecha transaccion": "FECHA_TRANSACCION",
		"amount":            "MONTO",
	}
	for in, want := range tests {
		if got := spec.Canonical(in); got != want {
			t.Errorf("Canonical(%q) = %q, want %q", in, got, want)
		}
	}

	missing := spec.MissingRequired(spec.StandardizeHeader([]string{"cuenta", "fecha", "monto"}))
	if len(missing) != 3 {
		t.Errorf("expected 3 missing columns, got %v", missing)
	}
}
