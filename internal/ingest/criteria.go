// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

// LoadCriteria reads and validates a criteria file:
//
//	population: adults aged 65 and over
//	concept: telehealth
//	context: primary care
//	inclusion:
//	  - empirical study
//	exclusion:
//	  - paediatric population
func LoadCriteria(path string) (types.Criteria, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Criteria{}, fmt.Errorf("reading criteria file: %w", err)
	}
	var c types.Criteria
	if err := yaml.Unmarshal(data, &c); err != nil {
		return types.Criteria{}, &types.ValidationError{Field: "criteria", Msg: fmt.Sprintf("parsing %s: %v", path, err)}
	}
	if err := c.Validate(); err != nil {
		return types.Criteria{}, err
	}
	return c, nil
}
