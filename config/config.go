package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine names accepted by Config.Engine.
const (
	EngineBrowser = "browser"
	EngineHTTP    = "http"
)

// Extraction modes accepted by Config.Extraction.
const (
	ExtractionAuto       = "auto"
	ExtractionStructural = "structural"
	ExtractionAI         = "ai"
)

// Config holds crawler configuration.
type Config struct {
	OutputDir           string        `yaml:"output_dir"`
	ImageDir            string        `yaml:"image_dir"`
	Engine              string        `yaml:"engine"`
	Extraction          string        `yaml:"extraction"`
	Timeout             time.Duration `yaml:"timeout"`
	PageWait            time.Duration `yaml:"page_wait"`
	ActionWait          time.Duration `yaml:"action_wait"`
	DetailWait          time.Duration `yaml:"detail_wait"`
	TargetDelay         time.Duration `yaml:"target_delay"`
	EnrichParallelism   int           `yaml:"enrich_parallelism"`
	DownloadParallelism int           `yaml:"download_parallelism"`
	MaxImages           int           `yaml:"max_images"`
	MaxRecords          int           `yaml:"max_records"`
	DownloadImages      bool          `yaml:"download_images"`
	UserAgent           string        `yaml:"user_agent"`
	AcceptLanguage      string        `yaml:"accept_language"`
	Headless            bool          `yaml:"headless"`
	Verbose             bool          `yaml:"verbose"`
	MetricsAddr         string        `yaml:"metrics_addr"`
	DatabaseURL         string        `yaml:"database_url"`
	RedisAddr           string        `yaml:"redis_addr"`
	DetailCacheSize     int           `yaml:"detail_cache_size"`
	DetailCacheTTL      time.Duration `yaml:"detail_cache_ttl"`
	LLM                 LLMConfig     `yaml:"llm"`
}

// LLMConfig holds the extraction model settings. Empty credentials are
// resolved from the environment at run time.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	ChunkTokens int     `yaml:"chunk_tokens"`
}

// DefaultConfig returns the defaults used for the jeweler registry.
func DefaultConfig() *Config {
	return &Config{
		OutputDir:           "output/data",
		ImageDir:            "output/images",
		Engine:              EngineBrowser,
		Extraction:          ExtractionAuto,
		Timeout:             30 * time.Second,
		PageWait:            5 * time.Second,
		ActionWait:          3 * time.Second,
		DetailWait:          3 * time.Second,
		TargetDelay:         5 * time.Second,
		EnrichParallelism:   5,
		DownloadParallelism: 5,
		MaxImages:           3,
		MaxRecords:          0,
		DownloadImages:      true,
		UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		AcceptLanguage:      "fr-FR,fr;q=0.9,en;q=0.8",
		Headless:            true,
		Verbose:             false,
		DetailCacheSize:     1024,
		DetailCacheTTL:      24 * time.Hour,
		LLM: LLMConfig{
			MaxTokens:   8000,
			Temperature: 0,
			ChunkTokens: 8000,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if any)
// and then with RINGCRAWLER_* environment variables.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		fh, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer fh.Close()
		if err := decodeYAML(fh, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from RINGCRAWLER_* variables.
func (c *Config) ApplyEnv() error {
	stringVars := map[string]*string{
		"RINGCRAWLER_OUTPUT_DIR":   &c.OutputDir,
		"RINGCRAWLER_IMAGE_DIR":    &c.ImageDir,
		"RINGCRAWLER_ENGINE":       &c.Engine,
		"RINGCRAWLER_EXTRACTION":   &c.Extraction,
		"RINGCRAWLER_METRICS_ADDR": &c.MetricsAddr,
		"RINGCRAWLER_DATABASE_URL": &c.DatabaseURL,
		"RINGCRAWLER_REDIS_ADDR":   &c.RedisAddr,
		"RINGCRAWLER_LLM_PROVIDER": &c.LLM.Provider,
		"RINGCRAWLER_LLM_MODEL":    &c.LLM.Model,
		"RINGCRAWLER_LLM_BASE_URL": &c.LLM.BaseURL,
	}
	for key, dst := range stringVars {
		if value, ok := EnvString(key); ok {
			*dst = value
		}
	}

	ints := map[string]*int{
		"RINGCRAWLER_MAX_RECORDS":          &c.MaxRecords,
		"RINGCRAWLER_ENRICH_PARALLELISM":   &c.EnrichParallelism,
		"RINGCRAWLER_DOWNLOAD_PARALLELISM": &c.DownloadParallelism,
	}
	for key, dst := range ints {
		value, ok, err := EnvInt(key)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"RINGCRAWLER_TIMEOUT":      &c.Timeout,
		"RINGCRAWLER_TARGET_DELAY": &c.TargetDelay,
		"RINGCRAWLER_PAGE_WAIT":    &c.PageWait,
	}
	for key, dst := range durations {
		value, ok, err := EnvDuration(key)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if ok {
			*dst = value
		}
	}
	return nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	if c.DownloadImages && c.ImageDir == "" {
		return fmt.Errorf("image dir cannot be empty when downloading images")
	}
	if c.Engine != EngineBrowser && c.Engine != EngineHTTP {
		return fmt.Errorf("engine must be %s or %s", EngineBrowser, EngineHTTP)
	}
	switch c.Extraction {
	case ExtractionAuto, ExtractionStructural, ExtractionAI:
	default:
		return fmt.Errorf("extraction must be auto, structural or ai")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.PageWait < 0 || c.ActionWait < 0 || c.DetailWait < 0 {
		return fmt.Errorf("page waits cannot be negative")
	}
	if c.TargetDelay < 0 {
		return fmt.Errorf("target delay cannot be negative")
	}
	if c.EnrichParallelism <= 0 {
		return fmt.Errorf("enrich parallelism must be positive")
	}
	if c.DownloadParallelism <= 0 {
		return fmt.Errorf("download parallelism must be positive")
	}
	if c.MaxImages <= 0 {
		return fmt.Errorf("max images must be positive")
	}
	if c.MaxRecords < 0 {
		return fmt.Errorf("max records cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.DetailCacheSize < 0 {
		return fmt.Errorf("detail cache size cannot be negative")
	}
	if c.LLM.MaxTokens < 0 || c.LLM.ChunkTokens < 0 {
		return fmt.Errorf("llm token limits cannot be negative")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2")
	}
	return nil
}
