// Package app assembles the configured components into the two operations
// the front ends expose: analyze a document and apply feedback to a run.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"storyforge/internal/config"
	"storyforge/internal/docparse"
	"storyforge/internal/embedding"
	"storyforge/internal/export"
	"storyforge/internal/feedback"
	"storyforge/internal/golden"
	"storyforge/internal/learning"
	"storyforge/internal/llm"
	"storyforge/internal/pipeline"
	"storyforge/internal/runs"
	"storyforge/internal/store"
)

// AnalyzeOptions tune one analysis request.
type AnalyzeOptions struct {
	UseGolden      bool
	TargetOverride int
}

// Service owns the long-lived components and exposes the user-facing
// operations.
type Service struct {
	cfg      config.Config
	pipeline *pipeline.Pipeline
	chunks   *store.ChunkStore
	Registry *runs.Registry
	Feedback *feedback.Applier
	log      *zap.Logger
}

// New builds a service from configuration. The caller owns Close.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}

	client, err := llm.NewGenAIClient(ctx, llm.GenAIConfig{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: float32(cfg.LLM.Temperature),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("building completion client: %w", err)
	}

	embedder, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		GenAIAPIKey:    cfg.LLM.APIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
	})
	if err != nil {
		return nil, fmt.Errorf("building embedding engine: %w", err)
	}

	chunks, err := store.NewChunkStore(cfg.ChunkDBPath())
	if err != nil {
		return nil, err
	}

	registry := runs.NewRegistry(cfg.RunsPath())
	learningStore := learning.NewStore(cfg.LearningPath(), learning.Thresholds{
		MinQualityScore:    cfg.Pipeline.MinQualityScore,
		MinValidationScore: cfg.Pipeline.MinValidationScore,
	}, log)

	pipeCfg := pipeline.DefaultConfig()
	pipeCfg.TopK = cfg.Pipeline.TopK
	pipeCfg.ChunkSize = cfg.Pipeline.ChunkSize
	pipeCfg.ChunkOverlap = cfg.Pipeline.ChunkOverlap
	pipeCfg.OutputDir = cfg.Storage.OutputsDir
	pipeCfg.ConstraintMode = pipeline.ConstraintMode(cfg.Pipeline.HardConstraintsMode)
	pipeCfg.Constraints = pipeline.ConstraintThresholds{
		MinValidationScore: cfg.Pipeline.MinValidationScore,
		MinQualityScore:    cfg.Pipeline.MinQualityScore,
		MinCoverage:        cfg.Pipeline.MinFunctionalityCoverage,
	}

	return &Service{
		cfg:      cfg,
		pipeline: pipeline.New(client, embedder, chunks, learningStore, registry, pipeCfg, log),
		chunks:   chunks,
		Registry: registry,
		Feedback: feedback.NewApplier(registry, learningStore, cfg.FeedbackPath(), log),
		log:      log.Named("app"),
	}, nil
}

// Close releases the chunk store.
func (s *Service) Close() error {
	return s.chunks.Close()
}

// Analyze parses the document at path, optionally loads golden stories for
// calibration, runs the pipeline and exports the backlog workbook.
func (s *Service) Analyze(ctx context.Context, path string, opts AnalyzeOptions) (*pipeline.Result, error) {
	doc, err := docparse.NewFileParser().Parse(path)
	if err != nil {
		return nil, err
	}

	pipeOpts := pipeline.Options{TargetOverride: opts.TargetOverride}
	if opts.UseGolden {
		expected, err := golden.LoadDir(s.cfg.Storage.GoldenDir)
		if err != nil {
			return nil, err
		}
		pipeOpts.Expected = expected
		pipeOpts.StyleGuide = golden.StyleGuide(expected)
		s.log.Info("golden stories loaded", zap.Int("count", len(expected)))
	}

	res, err := s.pipeline.Run(ctx, doc, pipeOpts)
	if err != nil {
		return nil, err
	}

	xlsxPath := filepath.Join(s.cfg.Storage.OutputsDir, res.RunID, "backlog.xlsx")
	if err := export.WriteBacklog(xlsxPath, res.Backlog, res.Requirements); err != nil {
		s.log.Warn("backlog export failed", zap.Error(err))
	} else {
		res.Outputs["backlog.xlsx"] = xlsxPath
	}
	return res, nil
}
