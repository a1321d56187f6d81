// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package audit appends one JSON line per vote, verdict and chart to a
// per-run log. The log is a trail for human reviewers; RunState remains
// the source of truth for resume.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

// Kind classifies an audit event.
type Kind string

const (
	KindVote    Kind = "vote"
	KindVerdict Kind = "verdict"
	KindChart   Kind = "chart"
	KindStage   Kind = "stage_complete"
)

// Event is one line of the audit log.
type Event struct {
	ID         string           `json:"id"`
	Time       time.Time        `json:"time"`
	RunID      string           `json:"run_id"`
	Kind       Kind             `json:"kind"`
	Stage      types.Stage      `json:"stage"`
	RecordID   string           `json:"record_id,omitempty"`
	ReviewerID string           `json:"reviewer_id,omitempty"`
	Decision   types.Decision   `json:"decision,omitempty"`
	Resolution types.Resolution `json:"resolution,omitempty"`
	Reasons    []string         `json:"reasons,omitempty"`
	Evidence   []string         `json:"evidence,omitempty"`
	Rationale  string           `json:"rationale,omitempty"`
}

// Log receives audit events.
type Log interface {
	Append(ctx context.Context, events ...Event) error
	Close() error
}

// VerdictEvents expands a verdict into its three vote events followed by
// the verdict event.
func VerdictEvents(runID string, v types.Verdict) []Event {
	now := time.Now().UTC()
	events := make([]Event, 0, len(v.Votes)+1)
	for _, vote := range v.Votes {
		events = append(events, Event{
			ID:         uuid.NewString(),
			Time:       now,
			RunID:      runID,
			Kind:       KindVote,
			Stage:      vote.Stage,
			RecordID:   vote.RecordID,
			ReviewerID: vote.ReviewerID,
			Decision:   vote.Decision,
			Reasons:    vote.Reasons,
			Evidence:   vote.Evidence,
		})
	}
	return append(events, Event{
		ID:         uuid.NewString(),
		Time:       now,
		RunID:      runID,
		Kind:       KindVerdict,
		Stage:      v.Stage,
		RecordID:   v.RecordID,
		Decision:   v.Decision,
		Resolution: v.Resolution,
		Rationale:  v.Rationale,
	})
}

// ChartEvent records a completed data chart.
func ChartEvent(runID string, c types.Chart) Event {
	return Event{
		ID:       uuid.NewString(),
		Time:     time.Now().UTC(),
		RunID:    runID,
		Kind:     KindChart,
		Stage:    types.StageExtraction,
		RecordID: c.RecordID,
	}
}

// StageEvent records that a stage finished.
func StageEvent(runID string, stage types.Stage) Event {
	return Event{
		ID:    uuid.NewString(),
		Time:  time.Now().UTC(),
		RunID: runID,
		Kind:  KindStage,
		Stage: stage,
	}
}

// FileLog appends events as JSON lines to a file opened in append mode.
type FileLog struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// OpenFile opens (or creates) the log at path.
func OpenFile(path string) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &FileLog{f: f, path: path}, nil
}

// Append writes events in order and syncs the file.
func (l *FileLog) Append(_ context.Context, events ...Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := bufio.NewWriter(l.f)
	enc := json.NewEncoder(w)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encoding audit event: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", l.path, err)
	}
	return l.f.Sync()
}

// Close closes the underlying file.
func (l *FileLog) Close() error {
	return l.f.Close()
}

// Read decodes every event from r.
func Read(r io.Reader) ([]Event, error) {
	var events []Event
	dec := json.NewDecoder(r)
	for {
		var e Event
		err := dec.Decode(&e)
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, fmt.Errorf("decoding audit event %d: %w", len(events)+1, err)
		}
		events = append(events, e)
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Append(context.Context, ...Event) error { return nil }
func (Nop) Close() error                           { return nil }
