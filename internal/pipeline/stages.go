package pipeline

import (
	"fmt"
	"strings"

	"golang-compliance-analytics/internal/anomaly"
	"golang-compliance-analytics/internal/features"
	"golang-compliance-analytics/internal/timeseries"
	"golang-compliance-analytics/pkg/errors"
)

// Stage is a pipeline stage name as used by the scheduler
type Stage string

const (
	StageRaw                Stage = "raw"
	StageIntermediate       Stage = "intermediate"
	StagePrimary            Stage = "primary"
	StageFeatureEngineering Stage = features.StageName
	StageAnomalyDetection   Stage = anomaly.StageName
	StageTimeSeries         Stage = timeseries.StageName
	StageAll                Stage = "all"
)

// Stages lists the stages in execution order
func Stages() []Stage {
	return []Stage{
		StageRaw,
		StageIntermediate,
		StagePrimary,
		StageFeatureEngineering,
		StageAnomalyDetection,
		StageTimeSeries,
	}
}

// ParseStage resolves a stage name
func ParseStage(name string) (Stage, error) {
	s := Stage(strings.ToLower(strings.TrimSpace(name)))
	if s == StageAll {
		return s, nil
	}
	for _, known := range Stages() {
		if s == known {
			return s, nil
		}
	}
	return "", errors.ConfigurationError(errors.CodeInvalidStage, "stage", name,
		fmt.Errorf("unknown stage %q", name))
}

// Expand returns the stages to execute for s
func (s Stage) Expand() []Stage {
	if s == StageAll {
		return Stages()
	}
	return []Stage{s}
}
