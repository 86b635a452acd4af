// Package llm isolates the text-generation service behind a narrow interface
// so the deterministic parts of the pipeline (JSON recovery, scoring, gating)
// stay unit-testable without a live model.
package llm

import "context"

// Client is the minimal completion interface the pipeline depends on.
// Prompt text in, raw text out; callers own retries.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
