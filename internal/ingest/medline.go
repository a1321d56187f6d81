// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

// medlineLine matches "PMID- 123" and "TI  - value": a tag of up to four
// characters padded to four, then "- ".
var medlineLine = regexp.MustCompile(`^([A-Z][A-Z0-9]{0,3}) {0,3}- ?(.*)$`)

// parseMedline reads PubMed MEDLINE (.nbib) entries. Entries start at PMID
// and are separated by blank lines; continuation lines are indented.
func parseMedline(r io.Reader) ([]types.Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		records []types.Record
		fields  map[string][]string
		lastTag string
	)
	flush := func() {
		if len(fields) > 0 {
			records = append(records, medlineRecord(fields))
		}
		fields = nil
		lastTag = ""
	}

	for sc.Scan() {
		text := strings.TrimRight(strings.TrimPrefix(sc.Text(), "\ufeff"), "\r")
		if strings.TrimSpace(text) == "" {
			flush()
			continue
		}
		if strings.HasPrefix(text, " ") {
			if fields != nil && lastTag != "" {
				vals := fields[lastTag]
				vals[len(vals)-1] += " " + strings.TrimSpace(text)
			}
			continue
		}
		m := medlineLine.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		tag, value := m[1], strings.TrimSpace(m[2])
		if tag == "PMID" && len(fields) > 0 {
			flush()
		}
		if fields == nil {
			fields = map[string][]string{}
		}
		fields[tag] = append(fields[tag], value)
		lastTag = tag
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return records, nil
}

func medlineRecord(f map[string][]string) types.Record {
	rec := build(
		firstOf(f, "TI", "BTI"),
		allOf(f, "FAU", "AU"),
		parseYear(firstOf(f, "DP", "DEP")),
	)
	rec.Venue = firstOf(f, "JT", "TA")
	rec.Abstract = firstOf(f, "AB")
	rec.ExternalID = medlineDOI(f)
	if rec.ExternalID == "" {
		if pmid := firstOf(f, "PMID"); pmid != "" {
			rec.ExternalID = "pmid:" + pmid
		}
	}
	kw := splitKeywords(f["OT"])
	for _, mh := range f["MH"] {
		// Drop qualifiers and the major-topic marker: "Telemedicine/*methods".
		term := strings.TrimSpace(strings.SplitN(mh, "/", 2)[0])
		if term = strings.TrimPrefix(term, "*"); term != "" {
			kw = append(kw, term)
		}
	}
	rec.Keywords = kw
	return rec
}

// medlineDOI finds "10.x/y [doi]" in the LID or AID fields.
func medlineDOI(f map[string][]string) string {
	for _, tag := range []string{"LID", "AID"} {
		for _, v := range f[tag] {
			if id, ok := strings.CutSuffix(strings.TrimSpace(v), "[doi]"); ok {
				return strings.TrimSpace(id)
			}
		}
	}
	return ""
}
