package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultThresholds() ConstraintThresholds {
	return ConstraintThresholds{MinValidationScore: 75, MinQualityScore: 0.55, MinCoverage: 0.70}
}

func TestConstraintsClean(t *testing.T) {
	violations := CheckConstraints(ConstraintInput{
		StoryCount: 12, Target: 12, ValidationScore: 80, QualityScore: 0.7, QualityKnown: true, Coverage: 0.9,
	}, defaultThresholds())
	assert.Empty(t, violations)
}

func TestConstraintsAllViolated(t *testing.T) {
	violations := CheckConstraints(ConstraintInput{
		StoryCount: 4, Target: 12, ValidationScore: 60, QualityScore: 0.3, QualityKnown: true, Coverage: 0.5,
	}, defaultThresholds())
	assert.Len(t, violations, 4)
}

func TestConstraintsQualityIgnoredWhenSkipped(t *testing.T) {
	violations := CheckConstraints(ConstraintInput{
		StoryCount: 12, Target: 12, ValidationScore: 80, QualityScore: 0, QualityKnown: false, Coverage: 0.9,
	}, defaultThresholds())
	assert.Empty(t, violations)
}
