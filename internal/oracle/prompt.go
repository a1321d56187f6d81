// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oracle

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

var promptFuncs = template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
}

// criteriaBlock is shared by every prompt.
const criteriaBlock = `Review scope (PCC):
- Population: {{.Criteria.Population}}
- Concept: {{.Criteria.Concept}}
- Context: {{.Criteria.Context}}

Inclusion criteria:
{{range $i, $c := .Criteria.Inclusion}}{{$i | inc}}. {{$c}}
{{end}}
Exclusion criteria:
{{range $i, $c := .Criteria.Exclusion}}{{$i | inc}}. {{$c}}
{{else}}(none)
{{end}}`

const recordBlock = `Record:
- Title: {{.Record.Title}}
- Authors: {{join .Record.Authors "; "}}
- Year: {{if .Record.Year}}{{.Record.Year}}{{else}}unknown{{end}}
- Venue: {{if .Record.Venue}}{{.Record.Venue}}{{else}}unknown{{end}}
{{- if .Record.Keywords}}
- Keywords: {{join .Record.Keywords ", "}}{{end}}

Abstract:
{{if .Record.Abstract}}{{.Record.Abstract}}{{else}}(no abstract available){{end}}
{{if .FullText}}
Full text:
{{.FullText}}
{{end}}`

// screeningPromptTmpl is sent to each reviewer for one record.
var screeningPromptTmpl = template.Must(template.New("screening").Funcs(promptFuncs).Parse(`You are an independent reviewer in a scoping review, screening one record at the {{.StageLabel}} stage.

` + criteriaBlock + `
` + recordBlock + `
{{if .Instructions}}Reviewer guidance: {{.Instructions}}
{{end}}
Decide whether the record should be included. Answer "unsure" when the available text does not let you decide; do not guess.

Respond with a JSON object only, no text outside it:
{"decision": "include" | "exclude" | "unsure", "reasons": ["at least two reasons, each tied to a numbered criterion"], "evidence": ["at least one verbatim quote from the record supporting the decision"]}
`))

// adjudicationPromptTmpl is sent when the panel escalates a record.
var adjudicationPromptTmpl = template.Must(template.New("adjudication").Funcs(promptFuncs).Parse(`You are the senior adjudicator of a scoping review. Three independent reviewers screened the record below at the {{.StageLabel}} stage and did not reach a clean majority.

` + criteriaBlock + `
` + recordBlock + `
Reviewer votes:
{{range .Votes}}- {{.ReviewerID}}: {{.Decision}}
  reasons: {{join .Reasons " | "}}
  evidence: {{join .Evidence " | "}}
{{end}}
{{if .Instructions}}Adjudicator guidance: {{.Instructions}}
{{end}}
Make the final decision. "unsure" is not allowed.

Respond with a JSON object only, no text outside it:
{"decision": "include" | "exclude", "rationale": "why, referring to the criteria and the reviewers' disagreement"}
`))

// chartingPromptTmpl asks for data-charting items of an included study.
var chartingPromptTmpl = template.Must(template.New("charting").Funcs(promptFuncs).Parse(`You are charting data for a scoping review from a study that met the inclusion criteria.

` + criteriaBlock + `
` + recordBlock + `
Chart these items, using "not reported" when the text does not say: {{join .Fields ", "}}.

Respond with a JSON object only, no text outside it:
{"findings": {"<item>": "<value>"}}
`))

// DefaultChartFields are charted when no field list is configured.
var DefaultChartFields = []string{
	"study_design",
	"country",
	"population_description",
	"sample_size",
	"concept_description",
	"setting",
	"key_findings",
}

type promptData struct {
	StageLabel   string
	Criteria     types.Criteria
	Record       types.Record
	FullText     string
	Instructions string
	Votes        []types.Vote
	Fields       []string
}

func stageLabel(s types.Stage) string {
	switch s {
	case types.StageAbstractScreening:
		return "title and abstract"
	case types.StageFulltextScreening:
		return "full-text"
	}
	return s.String()
}

func render(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
