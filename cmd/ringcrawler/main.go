package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-ring-crawler/config"
	"github.com/aluiziolira/go-ring-crawler/jewelers"
	"github.com/aluiziolira/go-ring-crawler/llm"
	"github.com/aluiziolira/go-ring-crawler/models"
	"github.com/aluiziolira/go-ring-crawler/pipeline"
	"github.com/aluiziolira/go-ring-crawler/scraper"
)

const askResultFile = "ask_result.json"

const usage = `Usage: ringcrawler [flags] <command> [args]

Commands:
  list                      list registered jewelers
  crawl <slug>              crawl one jeweler
  tier <low|mid|high|all>   crawl every jeweler of a tier
  ask "<prompt with urls>"  extract rings from the pages named in a prompt
  merge                     combine saved target files into all_combined.json
  stats                     summarise saved target files
  import <file>             load a saved file into PostgreSQL

Flags:
`

// options are the command-line overrides applied on top of the loaded config.
type options struct {
	configPath  string
	verbose     bool
	engine      string
	extraction  string
	outputDir   string
	imageDir    string
	format      string
	maxRecords  int
	noImages    bool
	headful     bool
	provider    string
	model       string
	apiKey      string
	metricsAddr string
	databaseURL string
	redisAddr   string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "YAML config file")
	flag.BoolVar(&opts.verbose, "v", false, "Enable verbose logging")
	flag.StringVar(&opts.engine, "engine", "", "Fetch engine: browser or http")
	flag.StringVar(&opts.extraction, "extraction", "", "Extraction mode: auto, structural or ai")
	flag.StringVar(&opts.outputDir, "output", "", "Directory for record files")
	flag.StringVar(&opts.imageDir, "images", "", "Directory for downloaded images")
	flag.StringVar(&opts.format, "format", "json", "Record file format for crawl: json, csv or dual; csv and dual also write CSV next to tier and merge files")
	flag.IntVar(&opts.maxRecords, "max-records", 0, "Override the per-target record cap")
	flag.BoolVar(&opts.noImages, "no-images", false, "Skip image downloads")
	flag.BoolVar(&opts.headful, "headful", false, "Show the browser window")
	flag.StringVar(&opts.provider, "provider", "", "LLM provider, optionally provider/model (anthropic, openai)")
	flag.StringVar(&opts.model, "model", "", "LLM model name")
	flag.StringVar(&opts.apiKey, "api-key", "", "LLM API key")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL URL for import")
	flag.StringVar(&opts.redisAddr, "redis-addr", "", "Redis address for the shared detail-page cache")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, opts)

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	if err := runCommand(ctx, cfg, opts, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("interrupted")
			os.Exit(130)
		}
		slog.Error("command failed", slog.String("command", flag.Arg(0)), slog.Any("error", err))
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config, opts options) {
	if opts.verbose {
		cfg.Verbose = true
	}
	if opts.engine != "" {
		cfg.Engine = strings.ToLower(opts.engine)
	}
	if opts.extraction != "" {
		cfg.Extraction = strings.ToLower(opts.extraction)
	}
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
	if opts.imageDir != "" {
		cfg.ImageDir = opts.imageDir
	}
	if opts.maxRecords > 0 {
		cfg.MaxRecords = opts.maxRecords
	}
	if opts.noImages {
		cfg.DownloadImages = false
	}
	if opts.headful {
		cfg.Headless = false
	}
	if opts.provider != "" {
		cfg.LLM.Provider = opts.provider
	}
	if opts.model != "" {
		cfg.LLM.Model = opts.model
	}
	if opts.apiKey != "" {
		cfg.LLM.APIKey = opts.apiKey
	}
	if opts.metricsAddr != "" {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if opts.databaseURL != "" {
		cfg.DatabaseURL = opts.databaseURL
	}
	if opts.redisAddr != "" {
		cfg.RedisAddr = opts.redisAddr
	}
}

func runCommand(ctx context.Context, cfg *config.Config, opts options, name string, args []string) error {
	opts.format = strings.ToLower(opts.format)
	switch opts.format {
	case pipeline.FormatJSON, pipeline.FormatCSV, pipeline.FormatDual:
	default:
		return fmt.Errorf("unsupported format: %s", opts.format)
	}

	switch name {
	case "list":
		printTargets()
		return nil
	case "merge":
		return runMerge(cfg, opts.format)
	case "stats":
		return runStats(cfg)
	case "import":
		if len(args) != 1 {
			return fmt.Errorf("import needs exactly one file")
		}
		return runImport(ctx, cfg, args[0])
	case "crawl":
		if len(args) != 1 {
			return fmt.Errorf("crawl needs a jeweler slug (see list)")
		}
		target, err := jewelers.BySlug(args[0])
		if err != nil {
			return err
		}
		return withCrawler(ctx, cfg, "", func(c *scraper.Controller) error {
			return runCrawl(ctx, c, cfg, opts.format, target)
		})
	case "tier":
		if len(args) != 1 {
			return fmt.Errorf("tier needs low, mid, high or all")
		}
		tiers, err := jewelers.ParseTier(args[0])
		if err != nil {
			return err
		}
		return withCrawler(ctx, cfg, "", func(c *scraper.Controller) error {
			return runTiers(ctx, c, cfg, opts.format, tiers)
		})
	case "ask":
		if len(args) == 0 {
			return fmt.Errorf("ask needs a prompt")
		}
		prompt := strings.Join(args, " ")
		if len(scraper.PromptURLs(prompt)) == 0 {
			return scraper.ErrNoURLs
		}
		return withCrawler(ctx, cfg, config.ExtractionAI, func(c *scraper.Controller) error {
			return runAsk(ctx, c, cfg, prompt)
		})
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

// withCrawler builds the fetch stack, serves metrics while fn runs and tears
// everything down afterwards. A non-empty mode overrides cfg.Extraction.
func withCrawler(ctx context.Context, cfg *config.Config, mode string, fn func(*scraper.Controller) error) error {
	if mode == "" {
		mode = cfg.Extraction
	}
	ex, err := newExtractor(cfg, mode)
	if err != nil {
		return err
	}

	f, closeFetcher, err := newFetcher(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFetcher(); err != nil {
			slog.Error("close fetcher", slog.Any("error", err))
		}
	}()

	enricher, closeCache, err := newEnricher(ctx, cfg, f)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeCache(); err != nil {
			slog.Error("close detail cache", slog.Any("error", err))
		}
	}()

	metrics := scraper.NewMetrics()
	opts := scraper.Options{
		PageWait:   cfg.PageWait,
		ActionWait: cfg.ActionWait,
		MaxImages:  cfg.MaxImages,
		Enricher:   enricher,
		Metrics:    metrics,
	}
	if cfg.DownloadImages {
		images, err := newDownloader(cfg)
		if err != nil {
			return err
		}
		opts.Images = images
	}

	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, metrics)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	return fn(scraper.NewController(f, ex, opts))
}

func runAsk(ctx context.Context, c *scraper.Controller, cfg *config.Config, prompt string) error {
	startTime := time.Now()
	result, err := c.Ask(ctx, prompt, llm.AskInstruction(prompt))
	if err != nil {
		return err
	}
	output := ""
	if len(result.Records) > 0 {
		output = filepath.Join(cfg.OutputDir, askResultFile)
		if err := pipeline.WriteRecords(output, result.Records); err != nil {
			return err
		}
	}
	printResult(result, time.Since(startTime), output)
	printUsage([]*models.CrawlResult{result})
	return nil
}
