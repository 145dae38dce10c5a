package features

import (
	"fmt"
	"strings"
	"time"

	"golang-compliance-analytics/internal/models"
)

// Sentinel field names reported in the run summary
const (
	FieldDaysBetween       = "dias_entre_trx"
	FieldMonthlyVariation  = "variacion_monto_mes_anio"
	FieldRatio             = "ratio_trx"
	FieldAvgReceived       = "monto_prom_recibida"
	FieldAvgSent           = "monto_prom_enviada"
	FieldStatusDays        = "tiempo_estado_cuenta"
	DefaultCorridorSep     = "_"
	directionSentLabel     = "sent"
	directionReceivedLabel = "received"
)

// Config holds feature engineering settings
type Config struct {
	// DirectionMap maps TIPO_TRANSACCION (case-insensitive) to "sent" or
	// "received". Types not listed fall back to the holder's country.
	DirectionMap map[string]string `json:"direction_map" mapstructure:"direction_map"`

	// ReferenceDate anchors TIEMPO_ESTADO_CUENTA. When nil the latest
	// transaction date of the run is used.
	ReferenceDate *time.Time `json:"reference_date,omitempty" mapstructure:"reference_date"`

	CorridorSeparator string `json:"corridor_separator" mapstructure:"corridor_separator"`
}

// DefaultConfig returns the default feature configuration
func DefaultConfig() *Config {
	return &Config{
		DirectionMap: map[string]string{
			"WIRES OUT": directionSentLabel,
			"WIRES IN":  directionReceivedLabel,
		},
		CorridorSeparator: DefaultCorridorSep,
	}
}

// Validate checks the direction map labels
func (c *Config) Validate() error {
	for k, v := range c.DirectionMap {
		if _, err := parseDirection(v); err != nil {
			return fmt.Errorf("direction_map[%q]: %w", k, err)
		}
	}
	if c.CorridorSeparator == "" {
		return fmt.Errorf("corridor_separator cannot be empty")
	}
	return nil
}

func parseDirection(label string) (models.Direction, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case directionSentLabel:
		return models.DirectionSent, nil
	case directionReceivedLabel:
		return models.DirectionReceived, nil
	default:
		return models.DirectionUnknown, fmt.Errorf("unknown direction %q (want %s or %s)", label, directionSentLabel, directionReceivedLabel)
	}
}

func normalizeType(t string) string {
	return strings.ToUpper(strings.Join(strings.Fields(t), " "))
}
