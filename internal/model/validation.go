package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// FindingType is the closed enum of quality issues a validator may report.
type FindingType string

const (
	FindingDuplicate     FindingType = "duplicate"
	FindingAmbiguity     FindingType = "ambiguity"
	FindingUnsupported   FindingType = "unsupported"
	FindingContradiction FindingType = "contradiction"
	FindingNonTestable   FindingType = "non_testable"
	FindingMissingFlow   FindingType = "missing_flow"
	FindingTooLarge      FindingType = "too_large"
	FindingBadFormat     FindingType = "bad_format"
	FindingBadActor      FindingType = "bad_actor"
	FindingMissingNotes  FindingType = "missing_notes"
	FindingWeakAC        FindingType = "weak_ac"
)

// Severity of a validation finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ValidationFinding is one detected quality issue. Findings are appended by
// the generative validator and the deterministic gate, never removed.
type ValidationFinding struct {
	Type             FindingType `json:"type" validate:"oneof=duplicate ambiguity unsupported contradiction non_testable missing_flow too_large bad_format bad_actor missing_notes weak_ac"`
	Severity         Severity    `json:"severity" validate:"oneof=low medium high"`
	TargetID         string      `json:"targetId,omitempty"`
	Message          string      `json:"message" validate:"required"`
	SuggestedFix     string      `json:"suggestedFix,omitempty"`
	EvidenceChunkIDs []string    `json:"evidenceChunkIds"`
}

// ValidationReport is the aggregate verdict over a backlog. The score is
// produced by the generative validator and only ever lowered afterwards.
type ValidationReport struct {
	Score    float64             `json:"score" validate:"min=0,max=100"`
	Findings []ValidationFinding `json:"findings" validate:"dive"`
	Summary  string              `json:"summary"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateBacklog checks the structural schema of a parsed backlog.
func ValidateBacklog(b *Backlog) error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("backlog schema: %w", err)
	}
	return nil
}

// ValidateReport checks the structural schema of a parsed validation report.
func ValidateReport(r *ValidationReport) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("validation report schema: %w", err)
	}
	return nil
}
