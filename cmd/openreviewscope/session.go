// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pdiddy/openreviewscope/internal/audit"
	"github.com/pdiddy/openreviewscope/internal/export"
	"github.com/pdiddy/openreviewscope/internal/fulltext"
	"github.com/pdiddy/openreviewscope/internal/ingest"
	"github.com/pdiddy/openreviewscope/internal/logging"
	"github.com/pdiddy/openreviewscope/internal/oracle"
	"github.com/pdiddy/openreviewscope/internal/pipeline"
	"github.com/pdiddy/openreviewscope/internal/store"
	"github.com/pdiddy/openreviewscope/pkg/types"
)

const auditFile = "audit.jsonl"

// session holds the resources of one command invocation against a run.
type session struct {
	cfg     types.PipelineConfig
	store   store.Store
	logger  *slog.Logger
	closers []io.Closer
}

func openSession(ctx context.Context, cfg types.PipelineConfig) (*session, error) {
	logger, logCloser, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		logCloser.Close()
		return nil, err
	}
	return &session{cfg: cfg, store: st, logger: logger, closers: []io.Closer{st, logCloser}}, nil
}

func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

// driver wires the Claude oracles, the full-text reader and the audit log
// into a pipeline driver.
func (s *session) driver(ctx context.Context, source ingest.Source) (*pipeline.Driver, error) {
	cfg := s.cfg
	if cfg.AI.APIKey == "" {
		return nil, &types.ValidationError{Field: "ai.api_key", Msg: "no Anthropic API key: set .secrets/anthropic-api-key or ANTHROPIC_API_KEY"}
	}
	client := oracle.NewClient(cfg.AI)

	reviewers := make([]oracle.Reviewer, len(cfg.Screening.Reviewers))
	for i, r := range cfg.Screening.Reviewers {
		reviewers[i] = oracle.Reviewer{
			ID:     r.ID,
			Oracle: &oracle.ClaudeScreener{Client: client, Model: r.Model, Instructions: r.Instructions},
		}
	}
	panel, err := oracle.NewPanel(reviewers, cfg.AI.MaxRetries)
	if err != nil {
		return nil, err
	}

	reader, err := fulltext.New(ctx, cfg.FullText)
	if err != nil {
		return nil, fmt.Errorf("setting up full-text extraction: %w", err)
	}
	reader.Logger = s.logger

	log, err := audit.OpenFile(filepath.Join(store.RunDir(cfg.Store), auditFile))
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, log)

	d := &pipeline.Driver{
		Config: cfg,
		Store:  s.store,
		Audit:  log,
		Source: source,
		Panel:  panel,
		Adjudicator: oracle.RetryingAdjudicator{
			Oracle:     &oracle.ClaudeAdjudicator{Client: client, Model: cfg.Adjudication.Model, Instructions: cfg.Adjudication.Instructions},
			MaxRetries: cfg.AI.MaxRetries,
		},
		FullText: reader,
		Logger:   s.logger,
		Out:      os.Stdout,
	}
	if cfg.Charting.Enabled {
		d.Charter = oracle.RetryingCharter{
			Oracle:     &oracle.ClaudeCharter{Client: client, Model: cfg.Charting.Model, Fields: cfg.Charting.Fields},
			MaxRetries: cfg.AI.MaxRetries,
		}
	}
	return d, nil
}

// advance runs the driver and reports the outcome. A pause at the
// fulltext gate is reported with instructions and is not an error.
func advance(ctx context.Context, d *pipeline.Driver, state *types.RunState) error {
	err := d.Advance(ctx, state)
	if errors.Is(err, pipeline.ErrAwaitingFullText) {
		fmt.Printf("\nPaused at the fulltext gate: %v\n", err)
		fmt.Printf("Add the missing files to %s and run `openreviewscope resume`,\n", d.Config.FullText.Dir)
		fmt.Println("or continue without them with `openreviewscope resume --allow-missing`.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("\nRun %s complete.\n", state.RunID)
	fmt.Print(export.FormatFunnel(state.Funnel))
	return nil
}
