package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aluiziolira/go-ring-crawler/config"
	"github.com/aluiziolira/go-ring-crawler/fetcher"
	"github.com/aluiziolira/go-ring-crawler/jewelers"
	"github.com/aluiziolira/go-ring-crawler/models"
	"github.com/aluiziolira/go-ring-crawler/pipeline"
	"github.com/aluiziolira/go-ring-crawler/scraper"
	"github.com/aluiziolira/go-ring-crawler/store"
)

const separator = "--------------------------------------------------"

// summaryRows caps the record table printed after a run.
const summaryRows = 20

func writeExport(format, base string, records []models.CanonicalRecord) ([]string, error) {
	writer, files, err := pipeline.OpenWriter(format, base)
	if err != nil {
		return nil, err
	}
	if err := writer.Write(records); err != nil {
		writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	if err := writer.Validate(); err != nil {
		return nil, fmt.Errorf("output validation failed: %w", err)
	}
	return files, nil
}

func runCrawl(ctx context.Context, c *scraper.Controller, cfg *config.Config, format string, target models.TargetConfig) error {
	startTime := time.Now()
	result, err := c.Run(ctx, target.WithMaxRecords(cfg.MaxRecords))
	if err != nil {
		return err
	}
	base := strings.TrimSuffix(pipeline.TargetFile(cfg.OutputDir, target.Slug), ".json")
	files, err := writeExport(format, base, result.Records)
	if err != nil {
		return err
	}
	printResult(result, time.Since(startTime), strings.Join(files, ", "))
	printUsage([]*models.CrawlResult{result})
	return nil
}

func runTiers(ctx context.Context, c *scraper.Controller, cfg *config.Config, format string, tiers []models.Tier) error {
	var results []*models.CrawlResult
	for i, tier := range tiers {
		if i > 0 {
			if err := fetcher.Sleep(ctx, cfg.TargetDelay); err != nil {
				return err
			}
		}
		targets := jewelers.ByTier(tier)
		fmt.Printf("\nCrawling %d jewelers (%s tier)\n", len(targets), tier)

		startTime := time.Now()
		report, err := c.RunTier(ctx, scraper.TierRun{
			Tier:        tier,
			Targets:     targets,
			TargetDelay: cfg.TargetDelay,
			MaxRecords:  cfg.MaxRecords,
			OutputDir:   cfg.OutputDir,
		})
		if report != nil {
			results = append(results, report.Results...)
		}
		if err != nil {
			printUsage(results)
			return err
		}

		output := pipeline.TierFile(cfg.OutputDir, tier)
		if format != pipeline.FormatJSON {
			base := strings.TrimSuffix(output, ".json")
			if _, err := writeExport(pipeline.FormatCSV, base, report.Records); err != nil {
				return err
			}
			output += ", " + base + ".csv"
		}
		printRecords(report.Records)
		fmt.Printf("  Tier %s: %d records in %v -> %s\n", tier, len(report.Records), time.Since(startTime).Round(time.Second), output)
	}
	printUsage(results)
	return nil
}

func runMerge(cfg *config.Config, format string) error {
	output := filepath.Join(cfg.OutputDir, pipeline.CombinedFile)
	n, err := pipeline.Merge(cfg.OutputDir, output)
	if err != nil {
		return err
	}
	if format != pipeline.FormatJSON {
		records, err := pipeline.ReadRecords(output)
		if err != nil {
			return err
		}
		if _, err := writeExport(pipeline.FormatCSV, strings.TrimSuffix(output, ".json"), records); err != nil {
			return err
		}
	}
	fmt.Printf("Merged %d rings into %s\n", n, output)
	return nil
}

func runStats(cfg *config.Config) error {
	stats, err := pipeline.Stats(cfg.OutputDir)
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		fmt.Println("No crawled data found. Run 'crawl' first.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Jeweler\tRings\tWith images\tWith price\tTier\t")
	total := 0
	for _, st := range stats {
		tier := string(st.Tier)
		if tier == "" {
			tier = "?"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t\n", strings.TrimSuffix(st.File, ".json"), st.Records, st.WithImages, st.WithPrice, tier)
		total += st.Records
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nTotal: %d rings\n", total)
	return nil
}

func runImport(ctx context.Context, cfg *config.Config, file string) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database url required (-database-url or RINGCRAWLER_DATABASE_URL)")
	}
	records, err := pipeline.ReadRecords(file)
	if err != nil {
		return err
	}

	s, err := store.New(ctx, store.Config{URL: cfg.DatabaseURL, MaxConns: 4})
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Migrate(ctx); err != nil {
		return err
	}

	report, err := s.Import(ctx, records)
	if err != nil {
		return err
	}
	fmt.Println(separator)
	fmt.Println("Import complete")
	fmt.Printf("  Records:   %d\n", report.Total())
	fmt.Printf("  Imported:  %d\n", report.Imported)
	fmt.Printf("  Skipped:   %d\n", report.Skipped)
	fmt.Printf("  Errors:    %d\n", report.Errors)
	fmt.Println(separator)
	return nil
}

func printTargets() {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tNAME\tTIER\tPAGINATION\tMAX RINGS\tURL")
	for _, tier := range []models.Tier{models.TierHigh, models.TierMid, models.TierLow} {
		for _, t := range jewelers.ByTier(tier) {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", t.Slug, t.Name, strings.ToUpper(string(t.Tier)), t.Pagination, t.MaxRecords, shorten(t.ListingURL, 60))
		}
	}
	tw.Flush()
	fmt.Printf("\n%d jewelers across 3 tiers\n", len(jewelers.All()))
}

func printResult(result *models.CrawlResult, duration time.Duration, output string) {
	printRecords(result.Records)

	fmt.Println("\n" + separator)
	fmt.Printf("Crawl complete: %s\n", result.Target)
	fmt.Printf("  Records:        %d\n", len(result.Records))
	fmt.Printf("  Pages:          %d\n", result.Pages)
	fmt.Printf("  Fetch failures: %d\n", result.FetchFailures)
	if d := result.Dropped; d.Total() > 0 {
		fmt.Printf("  Dropped:        %d (invalid %d, duplicate %d, over cap %d)\n", d.Total(), d.Invalid, d.Duplicate, d.OverCap)
	}
	if result.EnrichAttempted > 0 {
		fmt.Printf("  Detail pages:   %d (%d failed)\n", result.EnrichAttempted, result.EnrichFailures)
	}
	if result.ImagesDownloaded > 0 || result.DownloadFailures > 0 {
		fmt.Printf("  Images:         %d (%d failed)\n", result.ImagesDownloaded, result.DownloadFailures)
	}
	fmt.Printf("  Duration:       %v\n", duration.Round(time.Millisecond))
	if output != "" {
		fmt.Printf("  Output:         %s\n", output)
	}
	fmt.Println(separator)
}

func printRecords(records []models.CanonicalRecord) {
	if len(records) == 0 {
		fmt.Println("No rings found.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tMETAL\tSTONE\tCARAT\tPRICE\tIMAGES")
	for i, r := range records {
		if i == summaryRows {
			fmt.Fprintf(tw, "...\t+ %d more\t\t\t\t\t\n", len(records)-summaryRows)
			break
		}
		price := "-"
		if r.PriceEUR != nil {
			price = fmt.Sprintf("%.0f €", *r.PriceEUR)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.2f\t%s\t%d\n", i+1, shorten(r.Name, 40), r.MetalType, r.StoneType, r.CaratWeight, price, len(r.Images))
	}
	tw.Flush()
}

// printUsage prints per-target extraction usage and the cost estimate.
func printUsage(results []*models.CrawlResult) {
	if len(results) == 0 {
		return
	}
	var total models.UsageStats
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nTARGET\tRINGS\tCALLS\tPROMPT\tCOMPLETION\tTOTAL")
	for _, r := range results {
		u := r.Usage
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", r.Target, len(r.Records), u.ExtractionCalls, u.PromptTokens, u.CompletionTokens, u.TotalTokens)
		total.ExtractionCalls += u.ExtractionCalls
		total.PromptTokens += u.PromptTokens
		total.CompletionTokens += u.CompletionTokens
		total.TotalTokens += u.TotalTokens
		total.Records += len(r.Records)
	}
	fmt.Fprintf(tw, "TOTAL\t%d\t%d\t%d\t%d\t%d\n", total.Records, total.ExtractionCalls, total.PromptTokens, total.CompletionTokens, total.TotalTokens)
	tw.Flush()
	if total.TotalTokens > 0 {
		fmt.Printf("\nEstimated cost: ~$%.2f USD\n", scraper.EstimateCostUSD(total.TotalTokens))
	}
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
