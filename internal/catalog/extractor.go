// Package catalog runs the functionality-extraction call: one completion over
// the retrieved evidence producing the actor/functionality catalog every
// later stage keys on.
package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"storyforge/internal/llm"
	"storyforge/internal/model"
	"storyforge/internal/prompt"
)

// Extractor turns evidence context into a model.Requirements catalog.
type Extractor struct {
	client llm.Client
	log    *zap.Logger
}

// NewExtractor wires an extractor.
func NewExtractor(client llm.Client, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{client: client, log: log.Named("catalog")}
}

// Extract issues the analysis completion and parses the catalog out of the
// raw response text. An empty functionality list is returned as-is; callers
// fall back to baseline target sizing.
func (e *Extractor) Extract(ctx context.Context, evidence, rawText string) (*model.Requirements, error) {
	text, err := e.client.CompleteWithSystem(ctx, prompt.SystemPolicy, prompt.Analysis(evidence, rawText))
	if err != nil {
		return nil, fmt.Errorf("analysis completion: %w", err)
	}

	var reqs model.Requirements
	if err := llm.Decode(text, &reqs); err != nil {
		return nil, fmt.Errorf("parsing functionality catalog: %w", err)
	}

	e.log.Info("functionality catalog extracted",
		zap.Int("actors", len(reqs.Actors)),
		zap.Int("functionalities", len(reqs.Functionalities)),
		zap.Int("glossary", len(reqs.Glossary)))

	return &reqs, nil
}
