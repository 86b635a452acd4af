package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storyforge/internal/llm"
	"storyforge/internal/model"
	"storyforge/internal/prompt"
)

// maxRefinementPasses bounds the grow loop.
const maxRefinementPasses = 3

// gapCoverageThreshold triggers the single gap-filling pass.
const gapCoverageThreshold = 0.70

// ErrNoStories marks an initial extraction that produced nothing parseable.
// A run cannot continue from an empty story set.
var ErrNoStories = errors.New("initial extraction produced no parseable stories")

// ControllerParams carry everything the extraction loop needs for one run.
type ControllerParams struct {
	Evidence     string
	RawText      string
	Catalog      *model.Requirements
	Target       int
	ActorGuide   string
	LearnedHints string
	StyleGuide   string
	Constraints  string
}

// Controller drives the extraction / refinement / gap-coverage loop. All
// generative calls go through the injected client; everything else is
// deterministic and unit-testable with a scripted fake.
type Controller struct {
	client llm.Client
	log    *zap.Logger
}

// NewController wires a controller.
func NewController(client llm.Client, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{client: client, log: log.Named("controller")}
}

// GenerateStories runs the full loop: initial extraction, up to 3 refinement
// passes while undersized (with a stagnation guard), one gap-coverage pass
// when functionality coverage is low, and a final intent dedupe.
func (c *Controller) GenerateStories(ctx context.Context, p ControllerParams) ([]model.UserStory, CoverageResult, error) {
	stories, err := c.initialExtraction(ctx, p)
	if err != nil {
		return nil, CoverageResult{}, err
	}

	stories, err = c.refine(ctx, p, stories)
	if err != nil {
		return nil, CoverageResult{}, err
	}

	var functionalities []model.Functionality
	if p.Catalog != nil {
		functionalities = p.Catalog.Functionalities
	}
	cov := ComputeCoverage(functionalities, stories)
	if cov.Coverage < gapCoverageThreshold && len(cov.Uncovered) > 0 {
		stories = c.gapCoverage(ctx, p, stories, cov)
		cov = ComputeCoverage(functionalities, stories)
	}

	before := len(stories)
	stories = DedupeByIntent(stories)
	if dropped := before - len(stories); dropped > 0 {
		c.log.Info("duplicate stories dropped", zap.Int("dropped", dropped))
	}

	return stories, cov, nil
}

func (c *Controller) initialExtraction(ctx context.Context, p ControllerParams) ([]model.UserStory, error) {
	text, err := c.client.CompleteWithSystem(ctx, prompt.SystemPolicy, prompt.Extraction(prompt.ExtractionParams{
		Evidence:     p.Evidence,
		RawText:      p.RawText,
		Catalog:      p.Catalog,
		TargetCount:  p.Target,
		ActorGuide:   p.ActorGuide,
		LearnedHints: p.LearnedHints,
		StyleGuide:   p.StyleGuide,
		Constraints:  p.Constraints,
	}))
	if err != nil {
		return nil, fmt.Errorf("extraction completion: %w", err)
	}

	stories, err := decodeStories(text)
	if err != nil {
		return nil, fmt.Errorf("parsing extracted stories: %w", err)
	}
	if len(stories) == 0 {
		return nil, ErrNoStories
	}

	c.log.Info("initial extraction", zap.Int("stories", len(stories)), zap.Int("target", p.Target))
	return stories, nil
}

// refine grows the story set toward the target. A pass that fails to
// increase the count ends the loop early.
func (c *Controller) refine(ctx context.Context, p ControllerParams, stories []model.UserStory) ([]model.UserStory, error) {
	for pass := 1; pass <= maxRefinementPasses && len(stories) < p.Target; pass++ {
		text, err := c.client.CompleteWithSystem(ctx, prompt.SystemPolicy, prompt.Refinement(prompt.RefinementParams{
			Stories:      stories,
			Target:       p.Target,
			Pass:         pass,
			MaxPasses:    maxRefinementPasses,
			Evidence:     p.Evidence,
			ActorGuide:   p.ActorGuide,
			LearnedHints: p.LearnedHints,
			StyleGuide:   p.StyleGuide,
			Constraints:  p.Constraints,
		}))
		if err != nil {
			return nil, fmt.Errorf("refinement pass %d: %w", pass, err)
		}

		refined, err := decodeStories(text)
		if err != nil || len(refined) <= len(stories) {
			if err != nil {
				c.log.Warn("refinement pass produced no parseable stories", zap.Int("pass", pass), zap.Error(err))
			} else {
				c.log.Info("refinement stagnated", zap.Int("pass", pass), zap.Int("stories", len(stories)))
			}
			return stories, nil
		}

		c.log.Info("refinement pass grew backlog",
			zap.Int("pass", pass), zap.Int("from", len(stories)), zap.Int("to", len(refined)))
		stories = refined
	}
	return stories, nil
}

// gapCoverage asks once for stories covering the worst uncovered
// functionalities; a failed pass leaves the set untouched.
func (c *Controller) gapCoverage(ctx context.Context, p ControllerParams, stories []model.UserStory, cov CoverageResult) []model.UserStory {
	uncovered := make([]model.Functionality, len(cov.Uncovered))
	for i, u := range cov.Uncovered {
		uncovered[i] = u.Functionality
	}

	text, err := c.client.CompleteWithSystem(ctx, prompt.SystemPolicy, prompt.GapCoverage(prompt.GapCoverageParams{
		Backlog:     &model.Backlog{UserStories: stories},
		Uncovered:   uncovered,
		Evidence:    p.Evidence,
		ActorGuide:  p.ActorGuide,
		Constraints: p.Constraints,
	}))
	if err != nil {
		c.log.Warn("gap-coverage completion failed", zap.Error(err))
		return stories
	}

	extra, err := decodeStories(text)
	if err != nil {
		c.log.Warn("gap-coverage response unparseable", zap.Error(err))
		return stories
	}
	if len(extra) == 0 {
		return stories
	}

	c.log.Info("gap-coverage pass added stories",
		zap.Float64("coverage", cov.Coverage), zap.Int("added", len(extra)))
	return DedupeByIntent(append(stories, extra...))
}
