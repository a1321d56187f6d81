// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// ValidationError reports malformed criteria or configuration. It is
// raised before any stage executes.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// VoteCountError reports a consensus call with a panel other than
// PanelSize votes. It indicates an integration bug.
type VoteCountError struct {
	RecordID string
	Stage    Stage
	Got      int
}

func (e *VoteCountError) Error() string {
	return fmt.Sprintf("record %s at %s: got %d votes, need exactly %d", e.RecordID, e.Stage, e.Got, PanelSize)
}

// AdjudicationContractError reports an escalation for which the
// adjudication oracle returned no final decision or no rationale.
type AdjudicationContractError struct {
	RecordID string
	Reason   string
}

func (e *AdjudicationContractError) Error() string {
	return fmt.Sprintf("adjudication of %s broke contract: %s", e.RecordID, e.Reason)
}

// PersistenceError reports that RunState could not be read or written.
type PersistenceError struct {
	Op       string
	Location string
	Err      error
}

func (e *PersistenceError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("%s run state: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s run state at %s: %v", e.Op, e.Location, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// OracleCallError reports a failed or unparsable oracle call. Malformed is
// set when the oracle answered but the response broke the typed contract.
type OracleCallError struct {
	Oracle     string
	RecordID   string
	ReviewerID string
	Malformed  bool
	Err        error
}

func (e *OracleCallError) Error() string {
	kind := "failed"
	if e.Malformed {
		kind = "returned a malformed response"
	}
	who := e.Oracle
	if e.ReviewerID != "" {
		who += " " + e.ReviewerID
	}
	return fmt.Sprintf("%s %s for record %s: %v", who, kind, e.RecordID, e.Err)
}

func (e *OracleCallError) Unwrap() error { return e.Err }

// InvariantError reports a violated RunState invariant: a funnel ordering
// or monotonicity break, or an attempt to rewrite an append-only entry.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "invariant violated: " + e.Msg
}
