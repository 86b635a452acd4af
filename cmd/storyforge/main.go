// Command storyforge turns requirements documents into validated user-story
// backlogs, with cross-run learning and human feedback calibration.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storyforge/internal/app"
	"storyforge/internal/config"
	"storyforge/internal/feedback"
	"storyforge/internal/httpapi"
	"storyforge/internal/pipeline"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var verbose bool

	root := &cobra.Command{
		Use:           "storyforge",
		Short:         "Generate calibrated user-story backlogs from requirements documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "configuration file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newAnalyzeCmd(&configPath, &verbose))
	root.AddCommand(newFeedbackCmd(&configPath, &verbose))
	root.AddCommand(newServeCmd(&configPath, &verbose))
	return root
}

func buildService(cmd *cobra.Command, configPath string, verbose bool) (*app.Service, *zap.Logger, error) {
	log, err := newLogger(verbose)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	svc, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return svc, log, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	return cfg.Build()
}

func newAnalyzeCmd(configPath *string, verbose *bool) *cobra.Command {
	var noGolden bool
	var target int

	cmd := &cobra.Command{
		Use:   "analyze <document>",
		Short: "Run the backlog pipeline over a requirements document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, log, err := buildService(cmd, *configPath, *verbose)
			if err != nil {
				return err
			}
			defer svc.Close()
			defer log.Sync()

			start := time.Now()
			res, err := svc.Analyze(cmd.Context(), args[0], app.AnalyzeOptions{
				UseGolden:      !noGolden,
				TargetOverride: target,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run %s completed in %s\n", res.RunID, time.Since(start).Round(time.Millisecond))
			fmt.Fprintf(cmd.OutOrStdout(), "  stories:    %d\n", len(res.Backlog.UserStories))
			fmt.Fprintf(cmd.OutOrStdout(), "  validation: %.1f\n", res.Report.Score)
			fmt.Fprintf(cmd.OutOrStdout(), "  coverage:   %.2f\n", res.Coverage.Coverage)
			if res.Evaluation.Status == "evaluated" {
				fmt.Fprintf(cmd.OutOrStdout(), "  quality:    %.3f\n", res.Evaluation.QualityScore)
			}
			for _, v := range res.Violations {
				fmt.Fprintf(cmd.OutOrStdout(), "  warning: %s\n", v)
			}
			for name, path := range res.Outputs {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", name, path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noGolden, "no-golden", false, "skip golden-story calibration")
	cmd.Flags().IntVar(&target, "target", 0, "override the story target")
	return cmd
}

func newFeedbackCmd(configPath *string, verbose *bool) *cobra.Command {
	var file, author, notes string
	var accepted, rejected bool

	cmd := &cobra.Command{
		Use:   "feedback <runId>",
		Short: "Apply human-corrected stories to a completed run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if accepted && rejected {
				return fmt.Errorf("--accepted and --rejected are mutually exclusive")
			}

			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading corrections: %w", err)
			}
			var stories []feedback.CorrectedStory
			if err := json.Unmarshal(raw, &stories); err != nil {
				return fmt.Errorf("parsing corrections: %w", err)
			}

			svc, log, err := buildService(cmd, *configPath, *verbose)
			if err != nil {
				return err
			}
			defer svc.Close()
			defer log.Sync()

			record, err := svc.Feedback.Apply(feedback.Submission{
				RunID:    args[0],
				Stories:  stories,
				Author:   author,
				Notes:    notes,
				Accepted: !rejected,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "feedback %s recorded (%d stories)\n", record.FeedbackID, record.CorrectedCount)
			if record.LearningUpdate.Updated {
				fmt.Fprintf(cmd.OutOrStdout(), "  learning profile updated (run %d)\n", record.LearningUpdate.Runs)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "  learning unchanged: %s\n", record.LearningUpdate.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with the corrected stories (required)")
	cmd.Flags().StringVar(&author, "author", "", "feedback author")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().BoolVar(&accepted, "accepted", true, "human approved the corrections")
	cmd.Flags().BoolVar(&rejected, "rejected", false, "human rejected the generated backlog")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newServeCmd(configPath *string, verbose *bool) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}

			log, err := newLogger(*verbose)
			if err != nil {
				return err
			}
			defer log.Sync()

			svc, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer svc.Close()

			server := httpapi.NewServer(httpapi.Deps{
				Analyze: func(ctx context.Context, path string, useGolden bool, targetOverride int) (*pipeline.Result, error) {
					return svc.Analyze(ctx, path, app.AnalyzeOptions{UseGolden: useGolden, TargetOverride: targetOverride})
				},
				Registry:   svc.Registry,
				Feedback:   svc.Feedback,
				OutputsDir: cfg.Storage.OutputsDir,
				APIKey:     cfg.Server.APIKey,
			}, log)

			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			log.Info("listening", zap.String("addr", addr))
			return http.ListenAndServe(addr, server.Router())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}
