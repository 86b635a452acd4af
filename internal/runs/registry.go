// Package runs keeps the durable execution lifecycle records: one entry per
// pipeline run, moved from running to a terminal state exactly once, with
// feedback summaries attached post-completion.
package runs

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"storyforge/internal/store"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNotFound marks an unknown run id.
var ErrNotFound = errors.New("run not found")

// FeedbackSummary is attached to a run after human feedback lands.
type FeedbackSummary struct {
	FeedbackID     string `json:"feedbackId"`
	CreatedAt      string `json:"createdAt"`
	Accepted       bool   `json:"accepted"`
	CorrectedCount int    `json:"correctedStoriesCount"`
}

// Run is one pipeline execution record.
type Run struct {
	RunID      string            `json:"runId"`
	Status     string            `json:"status"`
	StartedAt  string            `json:"startedAt"`
	FinishedAt string            `json:"finishedAt,omitempty"`
	Filename   string            `json:"filename,omitempty"`
	StoryCount int               `json:"storyCount,omitempty"`
	Outputs    map[string]string `json:"outputs,omitempty"`
	Error      string            `json:"error,omitempty"`
	Feedback   *FeedbackSummary  `json:"feedback,omitempty"`
}

// Registry is the file-backed run index.
type Registry struct {
	file *store.JSONFile[map[string]Run]
}

// NewRegistry opens (lazily creating) the registry at path.
func NewRegistry(path string) *Registry {
	return &Registry{file: store.NewJSONFile(path, func() map[string]Run {
		return map[string]Run{}
	})}
}

// Create records a new running run and returns its id.
func (r *Registry) Create(filename string) (Run, error) {
	run := Run{
		RunID:     "run_" + uuid.NewString(),
		Status:    StatusRunning,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Filename:  filename,
	}
	_, err := r.file.Update(func(all map[string]Run) (map[string]Run, error) {
		all[run.RunID] = run
		return all, nil
	})
	if err != nil {
		return Run{}, fmt.Errorf("recording run: %w", err)
	}
	return run, nil
}

// Complete moves a run to its terminal completed state.
func (r *Registry) Complete(runID string, storyCount int, outputs map[string]string) error {
	return r.finish(runID, func(run *Run) {
		run.Status = StatusCompleted
		run.StoryCount = storyCount
		run.Outputs = outputs
	})
}

// Fail moves a run to its terminal failed state, capturing the error.
func (r *Registry) Fail(runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.finish(runID, func(run *Run) {
		run.Status = StatusFailed
		run.Error = msg
	})
}

func (r *Registry) finish(runID string, apply func(*Run)) error {
	_, err := r.file.Update(func(all map[string]Run) (map[string]Run, error) {
		run, ok := all[runID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		apply(&run)
		run.FinishedAt = time.Now().UTC().Format(time.RFC3339)
		all[runID] = run
		return all, nil
	})
	return err
}

// Get returns one run.
func (r *Registry) Get(runID string) (Run, error) {
	all, err := r.file.Read()
	if err != nil {
		return Run{}, err
	}
	run, ok := all[runID]
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return run, nil
}

// List returns every run, newest first.
func (r *Registry) List() ([]Run, error) {
	all, err := r.file.Read()
	if err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(all))
	for _, run := range all {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	return out, nil
}

// AttachFeedback stores the feedback summary on a run.
func (r *Registry) AttachFeedback(runID string, summary FeedbackSummary) error {
	_, err := r.file.Update(func(all map[string]Run) (map[string]Run, error) {
		run, ok := all[runID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		run.Feedback = &summary
		all[runID] = run
		return all, nil
	})
	return err
}
