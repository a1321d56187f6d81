// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/openreviewscope/internal/secrets"
	"github.com/pdiddy/openreviewscope/pkg/types"
)

// setDefaults registers the scalar defaults with viper so that
// OPENREVIEWSCOPE_* environment variables can override them. Reviewers are
// a list and only come from the config file.
func setDefaults() {
	d := types.DefaultPipelineConfig()
	defaults := map[string]any{
		"dedup.title_threshold":  d.Dedup.TitleThreshold,
		"ai.model":               d.AI.Model,
		"ai.max_retries":         d.AI.MaxRetries,
		"ai.max_tokens":          d.AI.MaxTokens,
		"ai.timeout":             d.AI.Timeout,
		"screening.batch_size":   d.Screening.BatchSize,
		"screening.batch_delay":  d.Screening.BatchDelay,
		"charting.enabled":       d.Charting.Enabled,
		"fulltext.dir":           d.FullText.Dir,
		"fulltext.backend":       string(d.FullText.Backend),
		"fulltext.allow_missing": d.FullText.AllowMissing,
		"fulltext.max_chars":     d.FullText.MaxChars,
		"store.backend":          string(d.Store.Backend),
		"store.dir":              d.Store.Dir,
		"store.run_id":           d.Store.RunID,
		"log.level":              d.Log.Level,
	}
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

// loadConfig builds the pipeline configuration from defaults, the config
// file, the environment and persistent flags, resolves the API key and
// validates the result.
func loadConfig() (types.PipelineConfig, error) {
	cfg := types.DefaultPipelineConfig()
	if viper.IsSet("screening.reviewers") {
		cfg.Screening.Reviewers = nil
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing configuration: %w", err)
	}
	cfg.AI.APIKey = secrets.AnthropicKey(loadedSecrets, cfg.AI.APIKey)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyAllowMissing lets --allow-missing override fulltext.allow_missing.
func applyAllowMissing(cmd *cobra.Command, cfg *types.PipelineConfig) {
	if allow, _ := cmd.Flags().GetBool("allow-missing"); allow {
		cfg.FullText.AllowMissing = true
	}
}
