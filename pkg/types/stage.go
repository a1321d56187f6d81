// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// Stage is a position in the fixed pipeline order. RunState.Stage holds the
// last stage that finished; the driver runs everything after it.
type Stage int

const (
	StageInit Stage = iota
	StageIngested
	StageAbstractScreening
	StageFulltextGate
	StageFulltextScreening
	StageExtraction
	StageSynthesis
	StageComplete
)

var stageNames = map[Stage]string{
	StageInit:              "init",
	StageIngested:          "ingested",
	StageAbstractScreening: "abstract_screening",
	StageFulltextGate:      "fulltext_gate",
	StageFulltextScreening: "fulltext_screening",
	StageExtraction:        "extraction",
	StageSynthesis:         "synthesis",
	StageComplete:          "complete",
}

// transitions is the stage transition table. There are no branches and no
// cycles; StageComplete has no successor.
var transitions = map[Stage]Stage{
	StageInit:              StageIngested,
	StageIngested:          StageAbstractScreening,
	StageAbstractScreening: StageFulltextGate,
	StageFulltextGate:      StageFulltextScreening,
	StageFulltextScreening: StageExtraction,
	StageExtraction:        StageSynthesis,
	StageSynthesis:         StageComplete,
}

// Stages returns every stage in pipeline order.
func Stages() []Stage {
	out := []Stage{StageInit}
	for s := StageInit; ; {
		next, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, next)
		s = next
	}
}

// Next returns the successor of s. ok is false for StageComplete and for
// values outside the stage set.
func (s Stage) Next() (next Stage, ok bool) {
	next, ok = transitions[s]
	return next, ok
}

// Valid reports whether s is a member of the stage set.
func (s Stage) Valid() bool {
	_, ok := stageNames[s]
	return ok
}

// IsScreening reports whether votes and verdicts are collected in s.
func (s Stage) IsScreening() bool {
	return s == StageAbstractScreening || s == StageFulltextScreening
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ParseStage converts a persisted stage name back into a Stage.
func ParseStage(name string) (Stage, error) {
	for s, n := range stageNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// MarshalText encodes the stage by name so persisted state stays readable
// and independent of the constant ordering.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stage name.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
