package cmd

import (
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/adapters/llm"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/adapters/pdfx"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/agents"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/config"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/framework"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/knowledge"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/orchestrator"
)

const defaultExamplesPath = "claimpilot_examples.db"

// pipeline bundles the built orchestrator with the resources it owns.
type pipeline struct {
	orch     *orchestrator.Orchestrator
	examples *knowledge.ExampleStore
}

func (p *pipeline) Close() {
	if p.examples != nil {
		p.examples.Close()
	}
}

func buildLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File: logging.FileConfig{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		},
	})
}

// buildPipeline assembles transports, frameworks, knowledge stores, and the
// orchestrator from configuration. Every misconfiguration surfaces here,
// before any job is accepted.
func buildPipeline(cfg *config.Config, log *logging.Logger) (*pipeline, error) {
	if !cfg.Providers.Vision.Enabled() {
		return nil, fmt.Errorf("providers.vision.api_key is required")
	}
	if !cfg.Providers.Text.Enabled() {
		return nil, fmt.Errorf("providers.text.api_key is required")
	}

	visionT, err := llm.NewTransport(cfg.Providers.Vision)
	if err != nil {
		return nil, fmt.Errorf("vision provider: %w", err)
	}
	textT, err := llm.NewTransport(cfg.Providers.Text)
	if err != nil {
		return nil, fmt.Errorf("text provider: %w", err)
	}

	var visionSecT, textSecT core.ModelTransport
	if cfg.Providers.VisionSecondary.Enabled() {
		if visionSecT, err = llm.NewTransport(cfg.Providers.VisionSecondary); err != nil {
			return nil, fmt.Errorf("vision secondary provider: %w", err)
		}
	}
	if cfg.Providers.TextSecondary.Enabled() {
		if textSecT, err = llm.NewTransport(cfg.Providers.TextSecondary); err != nil {
			return nil, fmt.Errorf("text secondary provider: %w", err)
		}
	}
	reviewT := textT
	if cfg.Providers.Review.Enabled() {
		if reviewT, err = llm.NewTransport(cfg.Providers.Review); err != nil {
			return nil, fmt.Errorf("review provider: %w", err)
		}
	}

	codes, err := knowledge.NewCodeBook()
	if err != nil {
		return nil, fmt.Errorf("loading building codes: %w", err)
	}
	examplesPath := cfg.Store.ExamplesPath
	if examplesPath == "" {
		examplesPath = defaultExamplesPath
	}
	examples, err := knowledge.OpenExampleStore(examplesPath)
	if err != nil {
		return nil, fmt.Errorf("opening example store: %w", err)
	}

	retry := agents.RetryPolicy{
		MaxAttempts: cfg.Pipeline.RetryAttempts,
		BaseDelay:   parseDelay(cfg.Pipeline.RetryBaseDelay),
	}
	rounds := cfg.Frameworks.DebateRounds

	vision, err := framework.NewVision(cfg.Frameworks.Vision, visionT, visionSecT, nil, rounds, log)
	if err != nil {
		examples.Close()
		return nil, err
	}
	estimate, err := framework.NewEstimate(cfg.Frameworks.Estimate, textT, textSecT, retry, log)
	if err != nil {
		examples.Close()
		return nil, err
	}
	gap, err := framework.NewGap(cfg.Frameworks.Gap, textT, textSecT, rounds, retry, log)
	if err != nil {
		examples.Close()
		return nil, err
	}
	strategist, err := framework.NewStrategist(cfg.Frameworks.Strategist, textT, textSecT, codes, examples, rounds, retry, log)
	if err != nil {
		examples.Close()
		return nil, err
	}

	visionModels := 1
	if visionSecT != nil {
		visionModels = 2
	}
	orch := orchestrator.New(orchestrator.Deps{
		Vision:     vision,
		Estimate:   estimate,
		Gap:        gap,
		Strategist: strategist,
		Reviewer:   agents.NewReviewAgent(reviewT, log),
		Reporter:   agents.NewReportAgent(textT, nil, log),
		Extractor:  pdfx.New(),
	}, orchestrator.Options{
		MaxReviewCycles:     cfg.Pipeline.MaxReviewCycles,
		MaxRerunsPerAgent:   cfg.Pipeline.MaxRerunsPerAgent,
		PhotoBatchSize:      cfg.Pipeline.PhotoBatchSize,
		Retry:               retry,
		VisionFramework:     cfg.Frameworks.Vision,
		EstimateFramework:   cfg.Frameworks.Estimate,
		GapFramework:        cfg.Frameworks.Gap,
		StrategistFramework: cfg.Frameworks.Strategist,
		VisionModels:        visionModels,
	}, log)

	return &pipeline{orch: orch, examples: examples}, nil
}

func parseDelay(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}
