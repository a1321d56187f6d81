// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives a RunState through the fixed stage order:
// init, ingested, abstract_screening, fulltext_gate, fulltext_screening,
// extraction, synthesis, complete. The Driver is the only writer of the
// state. It checkpoints after every verdict and chart, so resuming a run
// re-attempts only records that have no result for the current stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pdiddy/openreviewscope/internal/audit"
	"github.com/pdiddy/openreviewscope/internal/fulltext"
	"github.com/pdiddy/openreviewscope/internal/ingest"
	"github.com/pdiddy/openreviewscope/internal/logging"
	"github.com/pdiddy/openreviewscope/internal/oracle"
	"github.com/pdiddy/openreviewscope/internal/store"
	"github.com/pdiddy/openreviewscope/pkg/types"
)

// ErrAwaitingFullText pauses the run at the fulltext gate until full texts
// are added for every included record or missing ones are allowed. It is
// not a failure; the state is saved and a later Advance continues.
var ErrAwaitingFullText = errors.New("awaiting full texts")

// Driver owns one run. Source is needed only until the ingested stage
// completes; FullText only from the fulltext gate on. Charter is
// optional: without it charts carry bibliographic fields only.
type Driver struct {
	Config      types.PipelineConfig
	Store       store.Store
	Audit       audit.Log
	Source      ingest.Source
	Panel       *oracle.Panel
	Adjudicator oracle.AdjudicationOracle
	FullText    fulltext.Extractor
	Charter     oracle.ChartingOracle
	Logger      *slog.Logger
	Out         io.Writer
}

type stageFunc func(ctx context.Context, state *types.RunState) error

// handler maps every stage after init to the function that runs it.
func (d *Driver) handler(stage types.Stage) stageFunc {
	switch stage {
	case types.StageInit:
		return nil
	case types.StageIngested:
		return d.ingest
	case types.StageAbstractScreening:
		return d.screenAbstracts
	case types.StageFulltextGate:
		return d.gate
	case types.StageFulltextScreening:
		return d.screenFullTexts
	case types.StageExtraction:
		return d.extract
	case types.StageSynthesis:
		return d.synthesize
	case types.StageComplete:
		return func(context.Context, *types.RunState) error { return nil }
	}
	return nil
}

// Advance runs every stage after state.Stage in order. Completed stages
// are skipped. On error the last good state is saved before returning, so
// the caller can resume with the same state or a reloaded one.
func (d *Driver) Advance(ctx context.Context, state *types.RunState) error {
	if err := d.validate(state); err != nil {
		return err
	}
	log := d.logger().With(logging.KeyRunID, state.RunID)

	for {
		next, ok := state.Stage.Next()
		if !ok {
			return nil
		}
		run := d.handler(next)
		if run == nil {
			return &types.InvariantError{Msg: fmt.Sprintf("no handler for stage %s", next)}
		}

		log.Info("stage starting", logging.KeyStage, next.String())
		if err := run(ctx, state); err != nil {
			return d.abort(ctx, state, next, err)
		}
		if err := state.Complete(next); err != nil {
			return err
		}
		if err := d.checkpoint(ctx, state, audit.StageEvent(state.RunID, next)); err != nil {
			return err
		}
		d.printf("%s complete\n", next)
		log.Info("stage complete", logging.KeyStage, next.String(), "funnel", state.Funnel)
	}
}

func (d *Driver) validate(state *types.RunState) error {
	if state == nil {
		return &types.ValidationError{Field: "state", Msg: "nil run state"}
	}
	if err := d.Config.Validate(); err != nil {
		return err
	}
	if err := state.Criteria.Validate(); err != nil {
		return err
	}
	if d.Store == nil {
		return &types.ValidationError{Field: "store", Msg: "no store configured"}
	}
	return nil
}

// abort flushes the state and returns cause. The flush ignores
// cancellation of ctx so an interrupt still leaves a checkpoint.
func (d *Driver) abort(ctx context.Context, state *types.RunState, stage types.Stage, cause error) error {
	if err := d.Store.Save(context.WithoutCancel(ctx), state); err != nil {
		return errors.Join(cause, err)
	}
	log := d.logger().With(logging.KeyRunID, state.RunID, logging.KeyStage, stage.String())
	if errors.Is(cause, ErrAwaitingFullText) {
		log.Info("run paused", "reason", cause)
		return cause
	}
	log.Error("stage aborted", "error", cause)
	return cause
}

// checkpoint saves the state, then appends the audit events describing
// what was just recorded.
func (d *Driver) checkpoint(ctx context.Context, state *types.RunState, events ...audit.Event) error {
	if err := d.Store.Save(ctx, state); err != nil {
		return err
	}
	if d.Audit == nil || len(events) == 0 {
		return nil
	}
	if err := d.Audit.Append(ctx, events...); err != nil {
		return fmt.Errorf("appending audit events: %w", err)
	}
	return nil
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger == nil {
		return logging.Discard()
	}
	return d.Logger
}

func (d *Driver) printf(format string, args ...any) {
	if d.Out != nil {
		fmt.Fprintf(d.Out, format, args...)
	}
}
