package config

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/coi-audit/internal/match"
	"github.com/sells-group/coi-audit/internal/model"
)

// Config holds the full application configuration. It is loaded once at
// startup and treated as immutable for the rest of the run.
type Config struct {
	Audit          AuditConfig          `yaml:"audit" mapstructure:"audit"`
	Documents      DocumentsConfig      `yaml:"documents" mapstructure:"documents"`
	Fuzzy          FuzzyConfig          `yaml:"fuzzy" mapstructure:"fuzzy"`
	Normalization  NormalizationConfig  `yaml:"normalization" mapstructure:"normalization"`
	Classification ClassificationConfig `yaml:"classification" mapstructure:"classification"`
	Roster         RosterConfig         `yaml:"roster" mapstructure:"roster"`
	Batch          BatchConfig          `yaml:"batch" mapstructure:"batch"`
	OCR            OCRConfig            `yaml:"ocr" mapstructure:"ocr"`
	Store          StoreConfig          `yaml:"store" mapstructure:"store"`
	Output         OutputConfig         `yaml:"output" mapstructure:"output"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`
}

// AuditConfig defines the audit window and the policy types every
// subcontractor must carry.
type AuditConfig struct {
	StartDate        string   `yaml:"start_date" mapstructure:"start_date"`
	EndDate          string   `yaml:"end_date" mapstructure:"end_date"`
	RequiredPolicies []string `yaml:"required_policies" mapstructure:"required_policies"`
}

// Window parses the configured audit window.
func (a AuditConfig) Window() (model.DateWindow, error) {
	return model.NewDateWindow(a.StartDate, a.EndDate)
}

// Policies parses the required policy types.
func (a AuditConfig) Policies() ([]model.PolicyType, error) {
	if len(a.RequiredPolicies) == 0 {
		return model.DefaultRequiredPolicies(), nil
	}
	out := make([]model.PolicyType, 0, len(a.RequiredPolicies))
	seen := make(map[model.PolicyType]bool)
	for _, p := range a.RequiredPolicies {
		pt, err := model.ParsePolicyType(p)
		if err != nil {
			return nil, err
		}
		if !seen[pt] {
			seen[pt] = true
			out = append(out, pt)
		}
	}
	return out, nil
}

// DocumentsConfig locates certificate files.
type DocumentsConfig struct {
	Dir                    string   `yaml:"dir" mapstructure:"dir"`
	COIFolderName          string   `yaml:"coi_folder_name" mapstructure:"coi_folder_name"`
	AlternativeFolderNames []string `yaml:"alternative_folder_names" mapstructure:"alternative_folder_names"`
	Extensions             []string `yaml:"extensions" mapstructure:"extensions"`
	RatePerSec             float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst                  int      `yaml:"burst" mapstructure:"burst"`
	RetryAttempts          int      `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs         int      `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
}

// FuzzyConfig configures the matching engine.
type FuzzyConfig struct {
	Threshold     float64  `yaml:"threshold" mapstructure:"threshold"`
	MaxResults    int      `yaml:"max_results" mapstructure:"max_results"`
	Algorithms    []string `yaml:"algorithms" mapstructure:"algorithms"`
	NearMissFloor float64  `yaml:"near_miss_floor" mapstructure:"near_miss_floor"`
}

// ParsedAlgorithms resolves the configured algorithm names.
func (f FuzzyConfig) ParsedAlgorithms() ([]match.Algorithm, error) {
	return match.ParseAlgorithms(f.Algorithms)
}

// NormalizationConfig overrides the built-in business term dictionary.
// Keys must not contain dots; dotted forms such as "l.l.c" are matched
// after their dots are removed.
type NormalizationConfig struct {
	BusinessTerms map[string]string `yaml:"business_terms" mapstructure:"business_terms"`
	Suffixes      []string          `yaml:"suffixes" mapstructure:"suffixes"`
}

// ClassificationConfig adds administrative-entry patterns on top of the
// built-in set.
type ClassificationConfig struct {
	AdministrativePatterns []string `yaml:"administrative_patterns" mapstructure:"administrative_patterns"`
}

// RosterConfig describes the subcontractor spreadsheet layout.
type RosterConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	HeaderRow  int    `yaml:"header_row" mapstructure:"header_row"`
	NameColumn string `yaml:"name_column" mapstructure:"name_column"`
	IDColumn   string `yaml:"id_column" mapstructure:"id_column"`
	// FlagColumn, when present in the header, limits the roster to rows
	// marked yes/y/true/1.
	FlagColumn string `yaml:"flag_column" mapstructure:"flag_column"`
	SheetName  string `yaml:"sheet_name" mapstructure:"sheet_name"`
}

// BatchConfig configures concurrent processing.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig configures the optional run history database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// OutputConfig configures report generation.
type OutputConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Format string `yaml:"format" mapstructure:"format"`
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
	v.SetEnvPrefix("COI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys without a real default are registered empty so that
	// environment-only values still reach Unmarshal.
	v.SetDefault("audit.start_date", "")
	v.SetDefault("audit.end_date", "")
	v.SetDefault("documents.dir", "")
	v.SetDefault("ocr.mistral_api_key", "")
	v.SetDefault("store.database_url", "")
	v.SetDefault("audit.required_policies", []string{"general_liability", "workers_compensation"})
	v.SetDefault("documents.coi_folder_name", "Subcontractor COIs")
	v.SetDefault("documents.alternative_folder_names", []string{"COIs", "Certificates", "Insurance Certificates"})
	v.SetDefault("documents.extensions", []string{".pdf"})
	v.SetDefault("documents.rate_per_sec", 0)
	v.SetDefault("documents.burst", 1)
	v.SetDefault("documents.retry_attempts", 1)
	v.SetDefault("documents.retry_backoff_ms", 500)
	v.SetDefault("fuzzy.threshold", 75.0)
	v.SetDefault("fuzzy.max_results", 5)
	v.SetDefault("fuzzy.algorithms", []string{"ratio", "partial_ratio", "token_sort_ratio"})
	v.SetDefault("fuzzy.near_miss_floor", 60.0)
	v.SetDefault("roster.header_row", 6)
	v.SetDefault("roster.name_column", "Name")
	v.SetDefault("roster.id_column", "Subcontractor ID")
	v.SetDefault("roster.path", "")
	v.SetDefault("roster.flag_column", "")
	v.SetDefault("roster.sheet_name", "")
	v.SetDefault("batch.max_concurrent", 5)
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("ocr.timeout_secs", 60)
	v.SetDefault("store.driver", "none")
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.format", "xlsx")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the fields required by the given command mode. Any
// problem here invalidates every classification of a run, so callers
// abort before processing a single subcontractor.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "audit", "diagnose":
	case "diagnose-pdf":
		if c.Output.Dir == "" {
			errs = append(errs, "output.dir is required to save extracted text")
		}
	case "runs":
		if c.Store.Driver == "" || c.Store.Driver == "none" {
			errs = append(errs, "store.driver is required to list runs")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "audit" {
		if _, err := c.Audit.Window(); err != nil {
			errs = append(errs, "audit window: "+err.Error())
		}
		if _, err := c.Audit.Policies(); err != nil {
			errs = append(errs, "audit.required_policies: "+err.Error())
		}
		if c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 64 {
			errs = append(errs, "batch.max_concurrent must be between 1 and 64")
		}
		switch c.Output.Format {
		case "xlsx", "json":
		default:
			errs = append(errs, "output.format must be xlsx or json")
		}
	}

	if mode == "audit" || mode == "diagnose" {
		if c.Fuzzy.Threshold <= 0 || c.Fuzzy.Threshold > 100 {
			errs = append(errs, "fuzzy.threshold must be in (0, 100]")
		}
		if c.Fuzzy.MaxResults <= 0 {
			errs = append(errs, "fuzzy.max_results must be > 0")
		}
		if _, err := c.Fuzzy.ParsedAlgorithms(); err != nil {
			errs = append(errs, "fuzzy.algorithms: "+err.Error())
		}
		if c.Fuzzy.NearMissFloor < 0 || c.Fuzzy.NearMissFloor >= c.Fuzzy.Threshold {
			errs = append(errs, "fuzzy.near_miss_floor must be >= 0 and below fuzzy.threshold")
		}
		for _, p := range c.Classification.AdministrativePatterns {
			if _, err := regexp.Compile(p); err != nil {
				errs = append(errs, "classification.administrative_patterns: "+err.Error())
			}
		}
	}

	switch c.Store.Driver {
	case "", "none", "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be none, sqlite, or postgres")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
