// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

// CSLItem represents a bibliographic entry in CSL (Citation Style Language)
// format. The field names and structure follow the CSL-JSON/CSL-YAML schema
// so that files from Zotero, Pandoc and reference managers load directly.
type CSLItem struct {
	ID             string    `yaml:"id" json:"id"`
	Type           string    `yaml:"type" json:"type"`
	Title          string    `yaml:"title" json:"title"`
	Author         []CSLName `yaml:"author,omitempty" json:"author,omitempty"`
	ContainerTitle string    `yaml:"container-title,omitempty" json:"container-title,omitempty"`
	Abstract       string    `yaml:"abstract,omitempty" json:"abstract,omitempty"`
	Issued         *CSLDate  `yaml:"issued,omitempty" json:"issued,omitempty"`
	DOI            string    `yaml:"DOI,omitempty" json:"DOI,omitempty"`
	PMID           string    `yaml:"PMID,omitempty" json:"PMID,omitempty"`
	Keyword        string    `yaml:"keyword,omitempty" json:"keyword,omitempty"`
}

// CSLName represents a person's name in CSL format.
type CSLName struct {
	Family  string `yaml:"family,omitempty" json:"family,omitempty"`
	Given   string `yaml:"given,omitempty" json:"given,omitempty"`
	Literal string `yaml:"literal,omitempty" json:"literal,omitempty"`
}

// CSLDate represents a date in CSL format using date-parts. Some exporters
// write a "raw" string instead.
type CSLDate struct {
	DateParts [][]flexInt `yaml:"date-parts,omitempty" json:"date-parts,omitempty"`
	Raw       string      `yaml:"raw,omitempty" json:"raw,omitempty"`
}

// flexInt accepts both 2020 and "2020", which CSL producers mix freely.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("date part %s: %w", data, err)
	}
	*n = flexInt(v)
	return nil
}

func (n *flexInt) UnmarshalYAML(node *yaml.Node) error {
	v, err := strconv.Atoi(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("date part %q: %w", node.Value, err)
	}
	*n = flexInt(v)
	return nil
}

// Year returns the first date part, or the year found in Raw.
func (d *CSLDate) Year() int {
	if d == nil {
		return 0
	}
	if len(d.DateParts) > 0 && len(d.DateParts[0]) > 0 {
		return int(d.DateParts[0][0])
	}
	return parseYear(d.Raw)
}

// String renders the name as "Family, Given", or the literal form.
func (n CSLName) String() string {
	switch {
	case n.Literal != "":
		return n.Literal
	case n.Given == "":
		return n.Family
	case n.Family == "":
		return n.Given
	}
	return n.Family + ", " + n.Given
}

// Record converts the item into a Record.
func (c CSLItem) Record() types.Record {
	authors := make([]string, 0, len(c.Author))
	for _, a := range c.Author {
		authors = append(authors, a.String())
	}
	rec := build(c.Title, authors, c.Issued.Year())
	rec.Venue = strings.TrimSpace(c.ContainerTitle)
	rec.Abstract = strings.TrimSpace(c.Abstract)
	rec.ExternalID = strings.TrimSpace(c.DOI)
	if rec.ExternalID == "" && c.PMID != "" {
		rec.ExternalID = "pmid:" + strings.TrimSpace(c.PMID)
	}
	if c.Keyword != "" {
		rec.Keywords = splitKeywords([]string{c.Keyword})
	}
	return rec
}

// CSLFromRecord converts a Record back to CSL for export. The record ID
// becomes the citation key.
func CSLFromRecord(r types.Record) CSLItem {
	item := CSLItem{
		ID:             r.ID,
		Type:           "article-journal",
		Title:          r.Title,
		ContainerTitle: r.Venue,
		Abstract:       r.Abstract,
		Keyword:        strings.Join(r.Keywords, ", "),
	}
	for _, a := range r.Authors {
		item.Author = append(item.Author, parseAuthorName(a))
	}
	if r.Year > 0 {
		item.Issued = &CSLDate{DateParts: [][]flexInt{{flexInt(r.Year)}}}
	}
	switch id := types.NormalizeExternalID(r.ExternalID); {
	case strings.HasPrefix(id, "10."):
		item.DOI = id
	case id != "" && strings.HasPrefix(strings.ToLower(r.ExternalID), "pmid:"):
		item.PMID = id
	}
	return item
}

// parseAuthorName splits a name string into CSL family/given parts. Names
// with a comma are "Family, Given"; otherwise the last token is the family
// name. Single-token names use the literal field.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	if name == "" {
		return CSLName{}
	}
	if family, given, ok := strings.Cut(name, ","); ok {
		return CSLName{Family: strings.TrimSpace(family), Given: strings.TrimSpace(given)}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{
		Given:  name[:idx],
		Family: name[idx+1:],
	}
}

// WriteCSL writes items as a CSL-YAML list to w.
func WriteCSL(w io.Writer, items []CSLItem) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

// cslDocument is the Pandoc metadata form: a "references" list.
type cslDocument struct {
	References []CSLItem `yaml:"references"`
}

func parseCSLYAML(r io.Reader) ([]types.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var items []CSLItem
	if err := yaml.Unmarshal(data, &items); err != nil {
		var doc cslDocument
		if derr := yaml.Unmarshal(data, &doc); derr != nil {
			return nil, fmt.Errorf("decoding CSL-YAML: %w", err)
		}
		items = doc.References
	}
	return cslRecords(items), nil
}

func parseCSLJSON(r io.Reader) ([]types.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)

	var items []CSLItem
	if len(data) > 0 && data[0] == '{' {
		var one CSLItem
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("decoding CSL-JSON: %w", err)
		}
		items = []CSLItem{one}
	} else if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding CSL-JSON: %w", err)
	}
	return cslRecords(items), nil
}

func cslRecords(items []CSLItem) []types.Record {
	out := make([]types.Record, 0, len(items))
	for _, it := range items {
		out = append(out, it.Record())
	}
	return out
}
