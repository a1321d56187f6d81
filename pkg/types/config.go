// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// DefaultTitleThreshold is the normalized-title similarity at or above
// which two records are treated as duplicates.
const DefaultTitleThreshold = 0.85

// DedupConfig holds settings for the deduplication engine.
type DedupConfig struct {
	// TitleThreshold is the title similarity threshold (default 0.85).
	TitleThreshold float64 `json:"title_threshold" yaml:"title_threshold" mapstructure:"title_threshold"`
}

// AIConfig holds shared settings for oracles that call a Generative AI API.
type AIConfig struct {
	// Model is the default AI model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxRetries is the number of retry attempts for failed oracle calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// MaxTokens caps the response length of one oracle call (default 2048).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Timeout is the HTTP timeout of one oracle call.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// ReviewerConfig configures one independent screening reviewer.
type ReviewerConfig struct {
	// ID identifies the reviewer in votes and the audit log.
	ID string `json:"id" yaml:"id" mapstructure:"id"`

	// Model overrides AIConfig.Model for this reviewer.
	Model string `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`

	// Instructions is reviewer-specific guidance appended to the prompt
	// (e.g. "be conservative; prefer exclusion when the population is unclear").
	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty" mapstructure:"instructions"`
}

// ScreeningConfig holds settings for the two screening stages.
type ScreeningConfig struct {
	// BatchSize is the number of records screened concurrently (default 5).
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	// BatchDelay is a fixed pause between batches to respect API rate limits.
	BatchDelay time.Duration `json:"batch_delay" yaml:"batch_delay" mapstructure:"batch_delay"`

	// Reviewers lists exactly PanelSize reviewers.
	Reviewers []ReviewerConfig `json:"reviewers" yaml:"reviewers" mapstructure:"reviewers"`
}

// AdjudicationConfig holds settings for the adjudication oracle.
type AdjudicationConfig struct {
	// Model overrides AIConfig.Model for adjudication.
	Model string `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`

	// Instructions is extra guidance for the adjudicator.
	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty" mapstructure:"instructions"`
}

// ChartingConfig holds settings for the extraction stage's charting oracle.
type ChartingConfig struct {
	// Enabled turns on oracle-supplied findings; without it charts carry
	// bibliographic fields only.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Model overrides AIConfig.Model for charting.
	Model string `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`

	// Fields names the items to chart; empty uses the built-in list.
	Fields []string `json:"fields,omitempty" yaml:"fields,omitempty" mapstructure:"fields"`
}

// FullTextBackend selects how full text is obtained from located files.
type FullTextBackend string

const (
	FullTextPlain      FullTextBackend = "text"
	FullTextPdftotext  FullTextBackend = "pdftotext"
	FullTextMarkitdown FullTextBackend = "markitdown"
)

// FullTextConfig holds settings for the fulltext gate and fulltext screening.
type FullTextConfig struct {
	// Dir is searched for <record id> or <external id slug> with a .txt,
	// .md or .pdf extension.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// Backend converts located PDFs to text.
	Backend FullTextBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// AllowMissing lets the gate pass when some included records have no
	// full text; they are reported as not retrieved.
	AllowMissing bool `json:"allow_missing" yaml:"allow_missing" mapstructure:"allow_missing"`

	// MaxChars truncates extracted text before it is sent to reviewers (default 60000).
	MaxChars int `json:"max_chars" yaml:"max_chars" mapstructure:"max_chars"`
}

// StoreBackend selects where RunState checkpoints are written.
type StoreBackend string

const (
	StoreFile   StoreBackend = "file"
	StoreSQLite StoreBackend = "sqlite"
	StoreRedis  StoreBackend = "redis"
)

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Backend StoreBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Dir holds the state file, SQLite database and audit log.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// RedisAddr is host:port of the Redis server for the redis backend.
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`

	// RunID names the run; checkpoints of different runs do not collide.
	RunID string `json:"run_id" yaml:"run_id" mapstructure:"run_id"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// File receives JSON logs; empty means text logs on stderr.
	File string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Dedup        DedupConfig        `json:"dedup" yaml:"dedup" mapstructure:"dedup"`
	AI           AIConfig           `json:"ai" yaml:"ai" mapstructure:"ai"`
	Screening    ScreeningConfig    `json:"screening" yaml:"screening" mapstructure:"screening"`
	Adjudication AdjudicationConfig `json:"adjudication" yaml:"adjudication" mapstructure:"adjudication"`
	Charting     ChartingConfig     `json:"charting" yaml:"charting" mapstructure:"charting"`
	FullText     FullTextConfig     `json:"fulltext" yaml:"fulltext" mapstructure:"fulltext"`
	Store        StoreConfig        `json:"store" yaml:"store" mapstructure:"store"`
	Log          LogConfig          `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultPipelineConfig returns the configuration used when no config file
// sets a value.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Dedup: DedupConfig{TitleThreshold: DefaultTitleThreshold},
		AI: AIConfig{
			Model:      "claude-sonnet-4-5-20250929",
			MaxRetries: 3,
			MaxTokens:  2048,
			Timeout:    2 * time.Minute,
		},
		Screening: ScreeningConfig{
			BatchSize: 5,
			Reviewers: []ReviewerConfig{
				{ID: "reviewer-1"},
				{ID: "reviewer-2", Instructions: "Weigh the exclusion criteria strictly."},
				{ID: "reviewer-3", Instructions: "Weigh the inclusion criteria generously; prefer unsure over a guess."},
			},
		},
		Charting: ChartingConfig{Enabled: true},
		FullText: FullTextConfig{
			Dir:      "fulltext",
			Backend:  FullTextPlain,
			MaxChars: 60000,
		},
		Store: StoreConfig{
			Backend: StoreFile,
			Dir:     "run",
			RunID:   "default",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate checks the configuration before any stage runs.
func (c PipelineConfig) Validate() error {
	if t := c.Dedup.TitleThreshold; t <= 0 || t > 1 {
		return &ValidationError{Field: "dedup.title_threshold", Msg: fmt.Sprintf("%v is outside (0, 1]", t)}
	}
	if c.Screening.BatchSize <= 0 {
		return &ValidationError{Field: "screening.batch_size", Msg: "must be positive"}
	}
	if c.Screening.BatchDelay < 0 {
		return &ValidationError{Field: "screening.batch_delay", Msg: "must not be negative"}
	}
	if n := len(c.Screening.Reviewers); n != PanelSize {
		return &ValidationError{Field: "screening.reviewers", Msg: fmt.Sprintf("need exactly %d reviewers, got %d", PanelSize, n)}
	}
	ids := make(map[string]bool, PanelSize)
	for i, r := range c.Screening.Reviewers {
		if r.ID == "" {
			return &ValidationError{Field: fmt.Sprintf("screening.reviewers[%d].id", i), Msg: "must not be empty"}
		}
		if ids[r.ID] {
			return &ValidationError{Field: fmt.Sprintf("screening.reviewers[%d].id", i), Msg: fmt.Sprintf("duplicate reviewer id %q", r.ID)}
		}
		ids[r.ID] = true
	}
	if c.AI.MaxRetries < 0 {
		return &ValidationError{Field: "ai.max_retries", Msg: "must not be negative"}
	}
	switch c.FullText.Backend {
	case FullTextPlain, FullTextPdftotext, FullTextMarkitdown:
	default:
		return &ValidationError{Field: "fulltext.backend", Msg: fmt.Sprintf("unsupported backend %q", c.FullText.Backend)}
	}
	switch c.Store.Backend {
	case StoreFile, StoreSQLite:
		if c.Store.Dir == "" {
			return &ValidationError{Field: "store.dir", Msg: "must not be empty"}
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return &ValidationError{Field: "store.redis_addr", Msg: "required for the redis backend"}
		}
	default:
		return &ValidationError{Field: "store.backend", Msg: fmt.Sprintf("unsupported backend %q", c.Store.Backend)}
	}
	if c.Store.RunID == "" {
		return &ValidationError{Field: "store.run_id", Msg: "must not be empty"}
	}
	return nil
}
