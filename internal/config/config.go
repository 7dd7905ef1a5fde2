package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Session   SessionConfig   `yaml:"session" mapstructure:"session"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Layout    LayoutConfig    `yaml:"layout" mapstructure:"layout"`
	PDF       PDFConfig       `yaml:"pdf" mapstructure:"pdf"`
	Annotate  AnnotateConfig  `yaml:"annotate" mapstructure:"annotate"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SessionConfig selects the legislative session and where its data lives.
type SessionConfig struct {
	Year    int    `yaml:"year" mapstructure:"year"`
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
	// CatalogURL is the master-list URL template; {year} and {session} are
	// substituted. Empty means work from the local copy only.
	CatalogURL string `yaml:"catalog_url" mapstructure:"catalog_url"`
	// DocumentBaseURL resolves relative document links.
	DocumentBaseURL string `yaml:"document_base_url" mapstructure:"document_base_url"`
	// RequireChapter is "auto", "true" or "false".
	RequireChapter string `yaml:"require_chapter" mapstructure:"require_chapter"`
}

// RequireChapterFor resolves RequireChapter. In auto mode only sessions
// before the current year drop unchaptered bills.
func (s SessionConfig) RequireChapterFor(now time.Time) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s.RequireChapter)) {
	case "", "auto":
		return s.Year < now.Year(), nil
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	}
	return false, eris.Errorf("config: invalid session.require_chapter %q", s.RequireChapter)
}

// StoreConfig configures the state backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// LLMConfig configures retries of model calls.
type LLMConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	// TimeoutSecs bounds a single attempt.
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// FetchConfig configures document downloads.
type FetchConfig struct {
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// LayoutConfig tunes strike detection and text reconstruction. The options
// are part of the transcode digest, but a change only takes effect for
// documents flagged for transcode (`dirty transcode --all`).
type LayoutConfig struct {
	StrikeMaxHeight  float64 `yaml:"strike_max_height" mapstructure:"strike_max_height"`
	StrikeMinOverlap float64 `yaml:"strike_min_overlap" mapstructure:"strike_min_overlap"`
	RowTolerance     float64 `yaml:"row_tolerance" mapstructure:"row_tolerance"`
	LineBreak        float64 `yaml:"line_break" mapstructure:"line_break"`
	SpaceGap         float64 `yaml:"space_gap" mapstructure:"space_gap"`
	IncludeStruck    bool    `yaml:"include_struck" mapstructure:"include_struck"`
}

// PDFConfig configures PDF reading.
type PDFConfig struct {
	Validate bool `yaml:"validate" mapstructure:"validate"`
}

// AnnotateConfig points at the optional question set and agency list.
type AnnotateConfig struct {
	QuestionsPath string `yaml:"questions_path" mapstructure:"questions_path"`
	AgenciesPath  string `yaml:"agencies_path" mapstructure:"agencies_path"`
}

// PipelineConfig configures the orchestrator.
type PipelineConfig struct {
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
	// CallTimeoutSecs bounds one collaborator call including its retries.
	CallTimeoutSecs int `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
}

// ServerConfig configures the status API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the settings a command mode needs. Modes: "run",
// "status", "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Session.Year < 1900 {
		errs = append(errs, fmt.Sprintf("invalid session.year %d", c.Session.Year))
	}

	switch mode {
	case "run":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Pipeline.MaxConcurrentDocuments < 1 || c.Pipeline.MaxConcurrentDocuments > 32 {
			errs = append(errs, "pipeline.max_concurrent_documents must be between 1 and 32")
		}
		if _, err := c.Session.RequireChapterFor(time.Now()); err != nil {
			errs = append(errs, err.Error())
		}
	case "status":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEGIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("session.year", time.Now().Year())
	v.SetDefault("session.data_dir", "data")
	v.SetDefault("session.catalog_url", "")
	v.SetDefault("session.document_base_url", "https://mgaleg.maryland.gov")
	v.SetDefault("session.require_chapter", "auto")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 16000)
	v.SetDefault("llm.max_attempts", 4)
	v.SetDefault("llm.initial_backoff_ms", 1000)
	v.SetDefault("llm.max_backoff_ms", 30000)
	v.SetDefault("llm.timeout_secs", 300)
	v.SetDefault("fetch.user_agent", "legislation-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.requests_per_second", 2.0)
	v.SetDefault("layout.strike_max_height", 1.5)
	v.SetDefault("layout.strike_min_overlap", 5.0)
	v.SetDefault("layout.row_tolerance", 3.0)
	v.SetDefault("layout.line_break", 10.0)
	v.SetDefault("layout.space_gap", 2.0)
	v.SetDefault("layout.include_struck", true)
	v.SetDefault("pdf.validate", true)
	v.SetDefault("annotate.questions_path", "")
	v.SetDefault("annotate.agencies_path", "")
	v.SetDefault("pipeline.max_concurrent_documents", 1)
	v.SetDefault("pipeline.call_timeout_secs", 1800)
	v.SetDefault("server.port", 8080)
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
