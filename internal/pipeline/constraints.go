package pipeline

import (
	"errors"
	"fmt"
)

// ErrHardConstraints aborts a run in fail mode.
var ErrHardConstraints = errors.New("hard constraints violated")

// ConstraintMode decides what a violation does.
type ConstraintMode string

const (
	ConstraintWarn ConstraintMode = "warn"
	ConstraintFail ConstraintMode = "fail"
)

// ConstraintThresholds hold the post-hoc business minimums.
type ConstraintThresholds struct {
	MinValidationScore float64
	MinQualityScore    float64
	MinCoverage        float64
}

// ConstraintInput is the run outcome offered to the evaluator.
type ConstraintInput struct {
	StoryCount      int
	Target          int
	ValidationScore float64
	QualityScore    float64
	QualityKnown    bool
	Coverage        float64
}

// CheckConstraints returns every violated threshold as a human-readable
// message. Empty slice means the run is clean.
func CheckConstraints(in ConstraintInput, th ConstraintThresholds) []string {
	var violations []string

	if in.Target > 0 && in.StoryCount < in.Target {
		violations = append(violations,
			fmt.Sprintf("historias generadas (%d) por debajo del objetivo (%d)", in.StoryCount, in.Target))
	}
	if in.ValidationScore < th.MinValidationScore {
		violations = append(violations,
			fmt.Sprintf("puntuación de validación %.1f por debajo del mínimo %.1f", in.ValidationScore, th.MinValidationScore))
	}
	if in.QualityKnown && in.QualityScore < th.MinQualityScore {
		violations = append(violations,
			fmt.Sprintf("puntuación de calidad %.3f por debajo del mínimo %.2f", in.QualityScore, th.MinQualityScore))
	}
	if in.Coverage < th.MinCoverage {
		violations = append(violations,
			fmt.Sprintf("cobertura de funcionalidades %.2f por debajo del mínimo %.2f", in.Coverage, th.MinCoverage))
	}
	return violations
}
