package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-ring-crawler/models"
	"github.com/aluiziolira/go-ring-crawler/pipeline"
)

// CostPerThousandTokens is the rough blended USD rate used for estimates.
const CostPerThousandTokens = 0.006

// EstimateCostUSD converts a token count into an approximate spend.
func EstimateCostUSD(totalTokens int) float64 {
	return float64(totalTokens) * CostPerThousandTokens / 1000
}

// TierRun describes a sequential run over several targets.
type TierRun struct {
	Tier        models.Tier
	Targets     []models.TargetConfig
	TargetDelay time.Duration
	// MaxRecords overrides each target's record cap when positive.
	MaxRecords int
	// OutputDir receives <slug>.json per target and all_<tier>.json. Empty
	// disables saving.
	OutputDir string
}

// TierReport aggregates the results of a TierRun in target order.
type TierReport struct {
	Tier    models.Tier
	Results []*models.CrawlResult
	Records []models.CanonicalRecord
	Usage   models.UsageStats
}

// EstimatedCostUSD is the rough spend of the whole run.
func (r *TierReport) EstimatedCostUSD() float64 {
	return EstimateCostUSD(r.Usage.TotalTokens)
}

// RunTier crawls targets one after another with TargetDelay between them.
// A target that fails is logged and contributes an empty result.
func (c *Controller) RunTier(ctx context.Context, run TierRun) (*TierReport, error) {
	report := &TierReport{Tier: run.Tier, Records: []models.CanonicalRecord{}}

	for i, target := range run.Targets {
		if i > 0 {
			if err := c.sleep(ctx, run.TargetDelay); err != nil {
				return report, err
			}
		}

		result, err := c.Run(ctx, target.WithMaxRecords(run.MaxRecords))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}
			slog.Error("target failed", slog.String("target", target.Slug), slog.Any("error", err))
			now := time.Now()
			result = &models.CrawlResult{Target: target.Slug, StartTime: now, EndTime: now}
		}

		report.Results = append(report.Results, result)
		report.Records = append(report.Records, result.Records...)
		report.Usage.ExtractionCalls += result.Usage.ExtractionCalls
		report.Usage.PromptTokens += result.Usage.PromptTokens
		report.Usage.CompletionTokens += result.Usage.CompletionTokens
		report.Usage.TotalTokens += result.Usage.TotalTokens
		report.Usage.Records += len(result.Records)

		if run.OutputDir != "" {
			if err := pipeline.WriteRecords(pipeline.TargetFile(run.OutputDir, target.Slug), result.Records); err != nil {
				return report, fmt.Errorf("save %s: %w", target.Slug, err)
			}
		}
	}

	if run.OutputDir != "" && run.Tier != "" {
		if err := pipeline.WriteRecords(pipeline.TierFile(run.OutputDir, run.Tier), report.Records); err != nil {
			return report, fmt.Errorf("save tier %s: %w", run.Tier, err)
		}
	}

	slog.Info("tier finished",
		slog.String("tier", string(run.Tier)),
		slog.Int("targets", len(run.Targets)),
		slog.Int("records", len(report.Records)),
		slog.Int("total_tokens", report.Usage.TotalTokens),
		slog.Float64("estimated_cost_usd", report.EstimatedCostUSD()),
	)
	return report, nil
}
