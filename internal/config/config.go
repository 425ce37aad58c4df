package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is loaded once at
// startup and passed into the pipeline controller immutably.
type Config struct {
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Segmenter  SegmenterConfig  `yaml:"segmenter" mapstructure:"segmenter"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Orchestra  OrchestraConfig  `yaml:"orchestrator" mapstructure:"orchestrator"`
	Aggregator AggregatorConfig `yaml:"aggregator" mapstructure:"aggregator"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// SegmenterConfig controls chunk sizing and the strategy boundaries.
type SegmenterConfig struct {
	// TargetSize is the size checkpoint at which the segmenter looks for the
	// nearest structural boundary to cut at. MaxSize is the hard cap a
	// segment's coverage span never exceeds.
	TargetSize int `yaml:"target_size" mapstructure:"target_size"`
	MaxSize    int `yaml:"max_size" mapstructure:"max_size"`

	// OverlapSize is the fixed tail length copied into the next segment's
	// head for cross-boundary context. Does not extend coverage offsets.
	OverlapSize int `yaml:"overlap_size" mapstructure:"overlap_size"`

	// LayoutThreshold is the document length above which layout-aware
	// segmentation is abandoned for the fast paragraph fallback.
	LayoutThreshold int `yaml:"layout_threshold" mapstructure:"layout_threshold"`

	// TableHardCap bounds a table segment before it is subdivided by row
	// groups.
	TableHardCap int `yaml:"table_hard_cap" mapstructure:"table_hard_cap"`

	// MinDocumentChars is the minimum input length; shorter documents
	// short-circuit to the empty-document diagnostic.
	MinDocumentChars int `yaml:"min_document_chars" mapstructure:"min_document_chars"`
}

// ClassifierConfig controls the rule-based segment classifier.
type ClassifierConfig struct {
	// ExclusionMaxChars is the length below which a boilerplate-dominated
	// segment (signature/notary/witness) is excluded from extraction. Longer
	// segments are never excluded: false exclusion silently drops data.
	ExclusionMaxChars int `yaml:"exclusion_max_chars" mapstructure:"exclusion_max_chars"`

	// SignatureKeywords is the boilerplate vocabulary. Product-tuned, so
	// configuration rather than a constant.
	SignatureKeywords []string `yaml:"signature_keywords" mapstructure:"signature_keywords"`
}

// ExtractionConfig controls the extraction-service call boundary.
type ExtractionConfig struct {
	// MaxRequestChars is the hard ceiling on segment text per request.
	// Truncation keeps the head of the segment.
	MaxRequestChars int `yaml:"max_request_chars" mapstructure:"max_request_chars"`

	// RequestsPerSecond and Burst bound the outbound call rate.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// OrchestraConfig controls concurrency, retries, and run budgets.
type OrchestraConfig struct {
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`

	// BudgetSecs is the wall-clock budget for the whole orchestrator run.
	// Exhaustion stops new dispatch; in-flight calls drain.
	BudgetSecs int `yaml:"budget_secs" mapstructure:"budget_secs"`

	// LargeDocSegments is the segment count above which expensive passes
	// are skipped for the whole run. Decided once at run start.
	LargeDocSegments int `yaml:"large_doc_segments" mapstructure:"large_doc_segments"`

	// Circuit breaker over the extraction service.
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// AggregatorConfig holds the completeness-score weights. Defaults are a
// reasonable split pending product validation.
type AggregatorConfig struct {
	SegmentWeight float64 `yaml:"segment_weight" mapstructure:"segment_weight"`
	FieldWeight   float64 `yaml:"field_weight" mapstructure:"field_weight"`
}

// StoreConfig configures the run journal.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "none"
	Path   string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("segmenter.target_size", 5000)
	v.SetDefault("segmenter.max_size", 10000)
	v.SetDefault("segmenter.overlap_size", 200)
	v.SetDefault("segmenter.layout_threshold", 80000)
	v.SetDefault("segmenter.table_hard_cap", 15000)
	v.SetDefault("segmenter.min_document_chars", 500)
	v.SetDefault("classifier.exclusion_max_chars", 1500)
	v.SetDefault("classifier.signature_keywords", []string{
		"signature", "notary", "witness", "acknowledgment", "attestation",
		"executed", "seal", "certificate of accuracy", "in witness whereof",
	})
	v.SetDefault("extraction.max_request_chars", 12000)
	v.SetDefault("extraction.requests_per_second", 8.0)
	v.SetDefault("extraction.burst", 8)
	v.SetDefault("orchestrator.concurrency", 5)
	v.SetDefault("orchestrator.max_attempts", 3)
	v.SetDefault("orchestrator.initial_backoff_ms", 500)
	v.SetDefault("orchestrator.max_backoff_ms", 30000)
	v.SetDefault("orchestrator.jitter_fraction", 0.25)
	v.SetDefault("orchestrator.budget_secs", 600)
	v.SetDefault("orchestrator.large_doc_segments", 40)
	v.SetDefault("orchestrator.circuit_failure_threshold", 5)
	v.SetDefault("orchestrator.circuit_reset_secs", 30)
	v.SetDefault("aggregator.segment_weight", 0.5)
	v.SetDefault("aggregator.field_weight", 0.5)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "lease-abstract.db")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
