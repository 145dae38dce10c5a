package synth

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"golang-compliance-analytics/internal/parsers"
	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

// File names written by WriteFiles
const (
	CustomersFile    = "clientes.csv"
	ProductsFile     = "productos.csv"
	TransactionsFile = "transacciones.csv"
)

// Files holds the paths of a written extract
type Files struct {
	Customers    string
	Products     string
	Transactions string
}

// WriteFiles generates an extract and writes its three tables into dir
func (g *Generator) WriteFiles(dir string) (*Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, dir, err)
	}

	ext := g.Generate()
	files := &Files{
		Customers:    filepath.Join(dir, CustomersFile),
		Products:     filepath.Join(dir, ProductsFile),
		Transactions: filepath.Join(dir, TransactionsFile),
	}

	tables := []struct {
		path string
		rows [][]string
	}{
		{files.Customers, ext.Customers},
		{files.Products, ext.Products},
		{files.Transactions, ext.Transactions},
	}
	for _, t := range tables {
		if err := g.writeTable(t.path, t.rows); err != nil {
			return nil, err
		}
		g.logger.WithFields(logger.Fields{
			"file_path": t.path,
			"rows":      len(t.rows) - 1,
		}).Debug("Extract table written")
	}
	return files, nil
}

func (g *Generator) writeTable(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFileWrite, path, err)
	}

	var out io.Writer = f
	var encoder *transform.Writer
	if g.config.Encoding == parsers.EncodingLatin1 {
		encoder = transform.NewWriter(f, charmap.ISO8859_1.NewEncoder())
		out = encoder
	}

	w := csv.NewWriter(out)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return errors.FileError(errors.CodeFileWrite, path, err)
	}
	if encoder != nil {
		if err := encoder.Close(); err != nil {
			f.Close()
			return errors.FileError(errors.CodeEncodingError, path, err)
		}
	}
	if err := f.Close(); err != nil {
		return errors.FileError(errors.CodeFileWrite, path, err)
	}
	return nil
}
