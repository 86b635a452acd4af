// Package feedback ingests human corrections for a completed run and feeds
// them back into the learning profile, with an append-only history of every
// submission.
package feedback

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyforge/internal/eval"
	"storyforge/internal/learning"
	"storyforge/internal/model"
	"storyforge/internal/runs"
	"storyforge/internal/store"
)

// Sentinel rejections; no state is mutated when these are returned.
var (
	ErrRunNotFound        = errors.New("run not found")
	ErrRunNotCompleted    = errors.New("run is not completed")
	ErrNoCorrectedStories = errors.New("no corrected stories supplied")
)

// CorrectedStory is the wire shape of one human-corrected story. Notes may
// arrive structured or already flattened.
type CorrectedStory struct {
	Epic               string               `json:"epic"`
	StoryID            string               `json:"storyId"`
	Title              string               `json:"title"`
	Role               string               `json:"role"`
	Want               string               `json:"want"`
	SoThat             string               `json:"soThat"`
	NotesHu            string               `json:"notesHu"`
	NotesSections      []model.NotesSection `json:"notesSections"`
	AcceptanceCriteria []string             `json:"acceptanceCriteria"`
}

// Submission is one feedback request.
type Submission struct {
	RunID    string           `json:"runId"`
	Stories  []CorrectedStory `json:"stories"`
	Author   string           `json:"author"`
	Notes    string           `json:"notes"`
	Accepted bool             `json:"accepted"`
}

// Record is the immutable history entry written per submission.
type Record struct {
	FeedbackID     string                `json:"feedbackId"`
	RunID          string                `json:"runId"`
	CreatedAt      string                `json:"createdAt"`
	Author         string                `json:"author,omitempty"`
	Notes          string                `json:"notes,omitempty"`
	Accepted       bool                  `json:"accepted"`
	CorrectedCount int                   `json:"correctedStoriesCount"`
	LearningUpdate learning.UpdateResult `json:"learningUpdate"`
}

// Applier validates and applies feedback submissions.
type Applier struct {
	registry *runs.Registry
	learning *learning.Store
	history  *store.JSONFile[[]Record]
	log      *zap.Logger
}

// NewApplier wires an applier; historyPath holds the append-only record file.
func NewApplier(registry *runs.Registry, learningStore *learning.Store, historyPath string, log *zap.Logger) *Applier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Applier{
		registry: registry,
		learning: learningStore,
		history:  store.NewJSONFile(historyPath, func() []Record { return nil }),
		log:      log.Named("feedback"),
	}
}

// Apply processes one submission: the run must exist, be completed and carry
// a generated backlog; the corrected set must be non-empty after
// normalization. The learning update treats the corrected stories as the
// expected set, with the human's accept flag bypassing the quality gates.
func (a *Applier) Apply(sub Submission) (*Record, error) {
	run, err := a.registry.Get(sub.RunID)
	if err != nil {
		if errors.Is(err, runs.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, sub.RunID)
		}
		return nil, err
	}
	if run.Status != runs.StatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrRunNotCompleted, sub.RunID, run.Status)
	}

	generated, err := loadBacklogStories(run)
	if err != nil {
		return nil, err
	}
	if len(generated) == 0 {
		return nil, fmt.Errorf("%w: %s has no generated stories", ErrRunNotCompleted, sub.RunID)
	}

	corrected := NormalizeCorrected(sub.Stories)
	if len(corrected) == 0 {
		return nil, ErrNoCorrectedStories
	}

	evaluation := eval.EvaluateAgainstExpected(generated, corrected)
	update, err := a.learning.Update(learning.UpdateInput{
		StoryCount:      len(generated),
		AvgCriteria:     avgCriteria(generated),
		ValidationScore: loadValidationScore(run),
		QualityScore:    evaluation.QualityScore,
		Generated:       generated,
		Expected:        corrected,
		ForceAccept:     sub.Accepted,
	})
	if err != nil {
		return nil, err
	}

	record := Record{
		FeedbackID:     "fb_" + uuid.NewString(),
		RunID:          sub.RunID,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		Author:         strings.TrimSpace(sub.Author),
		Notes:          strings.TrimSpace(sub.Notes),
		Accepted:       sub.Accepted,
		CorrectedCount: len(corrected),
		LearningUpdate: update,
	}
	if _, err := a.history.Update(func(all []Record) ([]Record, error) {
		return append(all, record), nil
	}); err != nil {
		return nil, fmt.Errorf("appending feedback history: %w", err)
	}

	if err := a.registry.AttachFeedback(sub.RunID, runs.FeedbackSummary{
		FeedbackID:     record.FeedbackID,
		CreatedAt:      record.CreatedAt,
		Accepted:       record.Accepted,
		CorrectedCount: record.CorrectedCount,
	}); err != nil {
		return nil, err
	}

	a.log.Info("feedback applied",
		zap.String("run_id", sub.RunID),
		zap.String("feedback_id", record.FeedbackID),
		zap.Bool("accepted", sub.Accepted),
		zap.Int("corrected", record.CorrectedCount),
		zap.Bool("learning_updated", update.Updated))

	return &record, nil
}

// History returns every recorded submission, oldest first.
func (a *Applier) History() ([]Record, error) {
	return a.history.Read()
}

// NormalizeCorrected trims fields, flattens structured notes into the
// canonical multi-line form and filters empty acceptance criteria. Stories
// left without title and want are dropped.
func NormalizeCorrected(stories []CorrectedStory) []model.ExpectedStory {
	out := make([]model.ExpectedStory, 0, len(stories))
	for _, s := range stories {
		exp := model.ExpectedStory{
			Epic:    strings.TrimSpace(s.Epic),
			StoryID: strings.TrimSpace(s.StoryID),
			Title:   strings.TrimSpace(s.Title),
			Role:    strings.TrimSpace(s.Role),
			Want:    strings.TrimSpace(s.Want),
			SoThat:  strings.TrimSpace(s.SoThat),
			NotesHu: strings.TrimSpace(s.NotesHu),
		}
		if exp.Title == "" && exp.Want == "" {
			continue
		}

		if exp.NotesHu == "" && len(s.NotesSections) > 0 {
			var lines []string
			for _, sec := range s.NotesSections {
				title := strings.TrimSpace(sec.Section)
				if title == "" {
					continue
				}
				lines = append(lines, title+": "+strings.Join(sec.Bullets, "; "))
			}
			exp.NotesHu = strings.Join(lines, "\n")
		}

		for _, c := range s.AcceptanceCriteria {
			if c = strings.TrimSpace(c); c != "" {
				exp.AcceptanceCriteria = append(exp.AcceptanceCriteria, c)
			}
		}
		out = append(out, exp)
	}
	return out
}

// loadBacklogStories reads the backlog artifact recorded in the run outputs.
func loadBacklogStories(run runs.Run) ([]model.UserStory, error) {
	path, ok := run.Outputs["backlog.json"]
	if !ok {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading backlog artifact: %w", err)
	}
	var backlog model.Backlog
	if err := json.Unmarshal(raw, &backlog); err != nil {
		return nil, fmt.Errorf("parsing backlog artifact: %w", err)
	}
	return backlog.UserStories, nil
}

// loadValidationScore reads the run's validation artifact; 0 when absent so
// non-accepted feedback keeps the learning gates closed.
func loadValidationScore(run runs.Run) float64 {
	path, ok := run.Outputs["validation.json"]
	if !ok {
		return 0
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var report model.ValidationReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return 0
	}
	return report.Score
}

func avgCriteria(stories []model.UserStory) float64 {
	if len(stories) == 0 {
		return 0
	}
	total := 0
	for _, s := range stories {
		total += len(s.AcceptanceCriteria)
	}
	return float64(total) / float64(len(stories))
}
