package reporter

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"golang-compliance-analytics/internal/models"
)

const (
	dateLayout = "2006-01-02 15:04:05"
	dayLayout  = "2006-01-02"
)

// Column headers of data_trx_feature, in output order
var transactionColumns = []string{
	"CUENTA",
	"FECHA_TRANSACCION",
	"TIPO_TRANSACCION",
	"MONTO",
	"PAIS_ORIGEN_TRANSACCION",
	"PAIS_DESTINO_TRANSACCION",
	"DIAS_ENTRE_TRX",
	"VARIACION_MONTO_MES_ANIO",
	"PAIS_ORIGEN_DESTINO_TRX",
	"MES_ANIO",
	"ACUM_MONTO_MES_ANIO",
}

var anomalyColumns = []string{"PUNTAJE_ANOMALIA", "ESTADO_ANOMALIA", "ANOMALO"}

var seriesColumns = []string{"ESTADO_SERIE", "DESVIACION_SERIE"}

// Column headers of data_customers_feature, in output order
var customerColumns = []string{
	"CODIGO",
	"TIPO_CLIENTE",
	"FECHA_ACTUALIZACION",
	"PEP",
	"RIESGO",
	"PAIS",
	"CUENTA",
	"TIPO_CUENTA",
	"ESTADO_CUENTA",
	"MONTO_TRX_RECIBIDA",
	"FRECUENCIA_TRX_RECIBIDA",
	"MONTO_TRX_ENVIADA",
	"FRECUENCIA_TRX_ENVIADA",
	"TIEMPO_ESTADO_CUENTA",
	"RATIO_TRX_ENVIADAS_RECIBIDAS",
	"MONTO_PROM_TRX_RECIBIDA",
	"MONTO_PROM_TRX_ENVIADA",
	"CANT_PROD",
}

// cell is one rendered field. A null cell is written as the sentinel token
// in CSV and as null in JSON; a numeric cell is written unquoted in JSON.
type cell struct {
	text    string
	null    bool
	numeric bool
}

func text(s string) cell { return cell{text: s} }

func number(s string) cell { return cell{text: s, numeric: true} }

func null() cell { return cell{null: true} }

func (c cell) csv(sentinel string) string {
	if c.null {
		return sentinel
	}
	return c.text
}

func (c cell) appendJSON(buf []byte) ([]byte, error) {
	switch {
	case c.null:
		return append(buf, "null"...), nil
	case c.numeric:
		return append(buf, c.text...), nil
	default:
		quoted, err := json.Marshal(c.text)
		if err != nil {
			return buf, fmt.Errorf("failed to encode %q: %w", c.text, err)
		}
		return append(buf, quoted...), nil
	}
}

func dateCell(t *time.Time, layout string) cell {
	if t == nil {
		return null()
	}
	return text(t.Format(layout))
}

func decimalCell(d decimal.Decimal) cell {
	return number(d.String())
}

func nullDecimalCell(d decimal.NullDecimal, places int32) cell {
	if !d.Valid {
		return null()
	}
	if places >= 0 {
		return number(d.Decimal.Round(places).String())
	}
	return number(d.Decimal.String())
}

func nullIntCell(n sql.NullInt64) cell {
	if !n.Valid {
		return null()
	}
	return number(strconv.FormatInt(n.Int64, 10))
}

func nullFloatCell(f sql.NullFloat64, places int32) cell {
	if !f.Valid {
		return null()
	}
	return number(decimal.NewFromFloat(f.Float64).Round(places).String())
}

func labelCell(b sql.NullBool) cell {
	if !b.Valid {
		return null()
	}
	if b.Bool {
		return text(models.LabelAnomalous)
	}
	return text(models.LabelNormal)
}

// TransactionColumns returns the data_trx_feature header for ds. Anomaly and
// series columns are present only after those stages have run.
func TransactionColumns(ds *models.FeatureDataset) []string {
	columns := append([]string{}, transactionColumns...)
	if ds.AnomalyScored {
		columns = append(columns, anomalyColumns...)
	}
	if ds.SeriesAnalyzed {
		columns = append(columns, seriesColumns...)
	}
	return columns
}

// CustomerColumns returns the data_customers_feature header
func CustomerColumns() []string {
	return append([]string{}, customerColumns...)
}

func (rg *ReportGenerator) transactionRow(ds *models.FeatureDataset, f *models.TransactionFeature) []cell {
	date := f.Date
	row := []cell{
		text(f.Account),
		dateCell(&date, dateLayout),
		text(f.Type),
		decimalCell(f.Amount),
		text(f.Origin),
		text(f.Destination),
		nullIntCell(f.DaysSincePrevious),
		nullDecimalCell(f.MonthlyVariation, rg.config.RatioPlaces),
		text(f.Corridor),
		text(f.Month.String()),
		decimalCell(f.MonthlyCumulative),
	}

	if ds.AnomalyScored {
		if a := f.Anomaly; a != nil {
			row = append(row,
				nullFloatCell(a.Score, rg.config.RatioPlaces),
				text(string(a.Status)),
				text(a.Label()))
		} else {
			row = append(row, null(), null(), null())
		}
	}

	if ds.SeriesAnalyzed {
		if s := f.Series; s != nil {
			row = append(row, text(string(s.Status)), labelCell(s.Deviation))
		} else {
			row = append(row, null(), null())
		}
	}
	return row
}

func (rg *ReportGenerator) customerRow(c *models.CustomerFeature) []cell {
	return []cell{
		text(c.Customer.Code),
		text(c.Customer.Type),
		dateCell(c.Customer.UpdatedAt, dayLayout),
		number(strconv.Itoa(c.Customer.PEP)),
		number(strconv.Itoa(c.Customer.Risk)),
		text(c.Customer.Country),
		text(c.Account.Number),
		text(c.Account.Type),
		text(c.Account.Status),
		nullDecimalCell(c.ReceivedAmount, -1),
		nullIntCell(c.ReceivedCount),
		nullDecimalCell(c.SentAmount, -1),
		nullIntCell(c.SentCount),
		nullIntCell(c.StatusDays),
		nullDecimalCell(c.SentReceivedRatio, rg.config.RatioPlaces),
		nullDecimalCell(c.AvgReceived, -1),
		nullDecimalCell(c.AvgSent, -1),
		number(strconv.Itoa(c.ProductCount)),
	}
}
