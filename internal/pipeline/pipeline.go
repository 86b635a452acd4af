// Package pipeline drives one backlog-generation run end to end: ingest and
// index the document, retrieve evidence, extract the functionality catalog,
// generate and refine stories, enforce consistency, validate, gate, evaluate
// against references and feed the learning profile.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"storyforge/internal/catalog"
	"storyforge/internal/chunker"
	"storyforge/internal/docparse"
	"storyforge/internal/embedding"
	"storyforge/internal/eval"
	"storyforge/internal/learning"
	"storyforge/internal/llm"
	"storyforge/internal/model"
	"storyforge/internal/prompt"
	"storyforge/internal/quality"
	"storyforge/internal/retrieval"
	"storyforge/internal/runs"
	"storyforge/internal/store"
)

// ChunkIndex is the slice of the chunk store the pipeline needs.
type ChunkIndex interface {
	Upsert(ctx context.Context, rows []store.ChunkRow) (int, int, error)
	Search(ctx context.Context, query []float32, topK int, scope store.Scope) ([]store.Hit, error)
}

// RunRecorder is the slice of the run registry the pipeline drives.
type RunRecorder interface {
	Create(filename string) (runs.Run, error)
	Complete(runID string, storyCount int, outputs map[string]string) error
	Fail(runID string, cause error) error
}

// Config tunes one pipeline instance.
type Config struct {
	TopK               int
	ChunkSize          int
	ChunkOverlap       int
	OutputDir          string
	ConstraintMode     ConstraintMode
	Constraints        ConstraintThresholds
	PerCategoryContext int
}

// DefaultConfig mirrors the shipped settings.
func DefaultConfig() Config {
	return Config{
		TopK:               12,
		ChunkSize:          600,
		ChunkOverlap:       120,
		OutputDir:          "outputs",
		ConstraintMode:     ConstraintWarn,
		Constraints:        ConstraintThresholds{MinValidationScore: 75, MinQualityScore: 0.55, MinCoverage: 0.70},
		PerCategoryContext: 8,
	}
}

// Options scope one run.
type Options struct {
	// Expected stories drive target sizing and evaluation. Empty means the
	// evaluation is skipped and the learned/baseline target applies.
	Expected []model.ExpectedStory
	// StyleGuide derived from the golden backlog; empty disables it.
	StyleGuide string
	// TargetOverride, when positive, wins over every sizing rule.
	TargetOverride int
	// HardConstraintsText injected into prompts.
	HardConstraintsText string
}

// Result is everything one run produced.
type Result struct {
	RunID        string                  `json:"runId"`
	Backlog      *model.Backlog          `json:"backlog"`
	Requirements *model.Requirements     `json:"requirements"`
	Report       *model.ValidationReport `json:"validationReport"`
	Coverage     CoverageResult          `json:"coverage"`
	Evaluation   eval.Result             `json:"evaluation"`
	Learning     learning.UpdateResult   `json:"learningUpdate"`
	Violations   []string                `json:"hardConstraintViolations,omitempty"`
	Outputs      map[string]string       `json:"outputs"`
}

// Pipeline wires the run stages together. Every collaborator is injected;
// tests run it against fakes without touching a model or the filesystem
// beyond a temp dir.
type Pipeline struct {
	client     llm.Client
	embedder   embedding.Engine
	index      ChunkIndex
	extractor  *catalog.Extractor
	controller *Controller
	learning   *learning.Store
	registry   RunRecorder
	cfg        Config
	log        *zap.Logger
}

// New wires a pipeline.
func New(client llm.Client, embedder embedding.Engine, index ChunkIndex,
	learningStore *learning.Store, registry RunRecorder, cfg Config, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		client:     client,
		embedder:   embedder,
		index:      index,
		extractor:  catalog.NewExtractor(client, log),
		controller: NewController(client, log),
		learning:   learningStore,
		registry:   registry,
		cfg:        cfg,
		log:        log.Named("pipeline"),
	}
}

// Run executes the whole pipeline for one parsed document. The run record
// always ends terminal: completed on success, failed with the captured error
// otherwise.
func (p *Pipeline) Run(ctx context.Context, doc *docparse.Document, opts Options) (*Result, error) {
	run, err := p.registry.Create(doc.Filename)
	if err != nil {
		return nil, err
	}

	res, err := p.run(ctx, run.RunID, doc, opts)
	if err != nil {
		if failErr := p.registry.Fail(run.RunID, err); failErr != nil {
			p.log.Error("failed to mark run failed", zap.String("run_id", run.RunID), zap.Error(failErr))
		}
		return nil, err
	}

	if err := p.registry.Complete(run.RunID, len(res.Backlog.UserStories), res.Outputs); err != nil {
		// The run record must not stay running.
		if failErr := p.registry.Fail(run.RunID, err); failErr != nil {
			p.log.Error("failed to mark run failed", zap.String("run_id", run.RunID), zap.Error(failErr))
		}
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, runID string, doc *docparse.Document, opts Options) (*Result, error) {
	log := p.log.With(zap.String("run_id", runID))

	// Ingest: chunk, embed, index.
	chunks, err := chunker.ChunkAdaptive(doc.RawText, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("chunking document: %w", err)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}
	rows := make([]store.ChunkRow, len(chunks))
	for i, c := range chunks {
		rows[i] = store.ChunkRow{
			ChunkID:    c.ChunkID,
			Content:    c.Content,
			Embedding:  vectors[i],
			DocumentID: doc.DocumentID,
			VersionID:  doc.VersionID,
			ChunkHash:  c.Hash,
			ChunkIndex: c.Index,
		}
	}
	added, skipped, err := p.index.Upsert(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("indexing chunks: %w", err)
	}
	log.Info("document indexed", zap.Int("chunks", len(chunks)), zap.Int("added", added), zap.Int("skipped", skipped))

	// Retrieve evidence.
	aggregator := retrieval.NewAggregator(p.embedder, p.index, p.log)
	pack, err := aggregator.Retrieve(ctx, retrieval.Params{
		TopK:       p.cfg.TopK,
		DocumentID: doc.DocumentID,
		VersionID:  doc.VersionID,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieving evidence: %w", err)
	}
	evidence := retrieval.BuildContext(pack, p.cfg.PerCategoryContext)

	// Functionality catalog.
	reqs, err := p.extractor.Extract(ctx, evidence, doc.RawText)
	if err != nil {
		return nil, err
	}

	// Learned calibration.
	profile, err := p.learning.Profile()
	if err != nil {
		return nil, fmt.Errorf("loading learning profile: %w", err)
	}

	expectedCount := len(opts.Expected)
	if opts.TargetOverride > 0 {
		expectedCount = opts.TargetOverride
	}
	target := TargetSize(expectedCount, len(reqs.Functionalities), profile.SuggestTarget())
	log.Info("target sized", zap.Int("target", target),
		zap.Int("functionalities", len(reqs.Functionalities)), zap.Int("learned", profile.SuggestTarget()))

	// Generate stories.
	stories, cov, err := p.controller.GenerateStories(ctx, ControllerParams{
		Evidence:     evidence,
		RawText:      doc.RawText,
		Catalog:      reqs,
		Target:       target,
		ActorGuide:   ActorGuide(reqs),
		LearnedHints: profile.GuidanceText(),
		StyleGuide:   opts.StyleGuide,
		Constraints:  opts.HardConstraintsText,
	})
	if err != nil {
		return nil, err
	}

	// Consistency, then freeze via schema validation.
	EnforceConsistency(stories, reqs, pack.Merged)

	backlog := &model.Backlog{
		DocumentID:  doc.DocumentID,
		VersionID:   doc.VersionID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		UserStories: stories,
	}
	if err := model.ValidateBacklog(backlog); err != nil {
		return nil, err
	}

	// Generative validation, then the deterministic gate lowers it.
	report, err := p.validate(ctx, backlog, reqs, evidence, len(doc.RawText))
	if err != nil {
		return nil, err
	}

	// Evaluation and learning.
	evaluation := eval.EvaluateAgainstExpected(stories, opts.Expected)
	learnIn := learning.UpdateInput{
		StoryCount:      len(stories),
		AvgCriteria:     AvgCriteria(stories),
		ValidationScore: report.Score,
		QualityScore:    evaluation.QualityScore,
		Generated:       stories,
		Expected:        opts.Expected,
	}
	learnRes, err := p.learning.Update(learnIn)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:        runID,
		Backlog:      backlog,
		Requirements: reqs,
		Report:       report,
		Coverage:     cov,
		Evaluation:   evaluation,
		Learning:     learnRes,
		Outputs:      map[string]string{},
	}

	// Hard constraints.
	violations := CheckConstraints(ConstraintInput{
		StoryCount:      len(stories),
		Target:          target,
		ValidationScore: report.Score,
		QualityScore:    evaluation.QualityScore,
		QualityKnown:    evaluation.Status == "evaluated",
		Coverage:        cov.Coverage,
	}, p.cfg.Constraints)
	res.Violations = violations
	if len(violations) > 0 {
		for _, v := range violations {
			log.Warn("hard constraint violated", zap.String("violation", v))
		}
		if p.cfg.ConstraintMode == ConstraintFail {
			return nil, fmt.Errorf("%w: %d violations", ErrHardConstraints, len(violations))
		}
	}

	if err := p.writeArtifacts(runID, res, pack); err != nil {
		return nil, err
	}
	return res, nil
}

// validate runs the generative judge and applies the deterministic gate. A
// verdict that cannot be decoded into a schema-valid report fails the run.
func (p *Pipeline) validate(ctx context.Context, backlog *model.Backlog, reqs *model.Requirements, evidence string, rawLen int) (*model.ValidationReport, error) {
	text, err := p.client.CompleteWithSystem(ctx, prompt.SystemPolicy, prompt.Validation(backlog, reqs, evidence))
	if err != nil {
		return nil, fmt.Errorf("validation completion: %w", err)
	}

	report := &model.ValidationReport{}
	if err := llm.Decode(text, report); err != nil {
		return nil, fmt.Errorf("parsing validation report: %w", err)
	}
	if err := model.ValidateReport(report); err != nil {
		return nil, err
	}

	quality.Apply(report, backlog, rawLen)
	return report, nil
}

func (p *Pipeline) writeArtifacts(runID string, res *Result, pack *retrieval.Pack) error {
	dir := filepath.Join(p.cfg.OutputDir, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	artifacts := map[string]any{
		"requirements.json": res.Requirements,
		"retrieval.json":    pack,
		"backlog.json":      res.Backlog,
		"validation.json":   res.Report,
		"coverage.json":     res.Coverage,
		"evaluation.json":   res.Evaluation,
	}
	for name, payload := range artifacts {
		path := filepath.Join(dir, name)
		raw, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", name, err)
		}
		if err := os.WriteFile(path, raw, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		res.Outputs[name] = path
	}
	return nil
}
