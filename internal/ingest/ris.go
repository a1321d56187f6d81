// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

// risLine matches "TI  - value". Some exporters drop the trailing space on
// empty tags such as "ER  -".
var risLine = regexp.MustCompile(`^([A-Z][A-Z0-9])  -(?: (.*))?$`)

// parseRIS reads RIS entries delimited by TY and ER tags. Untagged lines
// continue the previous field.
func parseRIS(r io.Reader) ([]types.Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		records []types.Record
		fields  map[string][]string
		lastTag string
		line    int
	)
	for sc.Scan() {
		line++
		text := strings.TrimRight(strings.TrimPrefix(sc.Text(), "\ufeff"), "\r")
		m := risLine.FindStringSubmatch(text)
		if m == nil {
			if fields != nil && lastTag != "" && strings.TrimSpace(text) != "" {
				vals := fields[lastTag]
				vals[len(vals)-1] += " " + strings.TrimSpace(text)
			}
			continue
		}
		tag, value := m[1], strings.TrimSpace(m[2])
		switch tag {
		case "TY":
			fields = map[string][]string{}
			lastTag = ""
			continue
		case "ER":
			if fields == nil {
				return nil, fmt.Errorf("line %d: ER without TY", line)
			}
			records = append(records, risRecord(fields))
			fields = nil
			continue
		}
		if fields == nil {
			continue
		}
		fields[tag] = append(fields[tag], value)
		lastTag = tag
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if fields != nil {
		return nil, fmt.Errorf("unterminated entry at end of input (missing ER)")
	}
	return records, nil
}

func risRecord(f map[string][]string) types.Record {
	rec := build(
		firstOf(f, "TI", "T1", "CT", "BT"),
		allOf(f, "AU", "A1", "A2"),
		parseYear(firstOf(f, "PY", "Y1", "DA")),
	)
	rec.Venue = firstOf(f, "T2", "JO", "JF", "JA", "J2", "PB")
	rec.Abstract = firstOf(f, "AB", "N2")
	rec.ExternalID = firstOf(f, "DO")
	if rec.ExternalID == "" {
		if an := firstOf(f, "AN"); an != "" {
			rec.ExternalID = "pmid:" + an
		}
	}
	rec.Keywords = splitKeywords(f["KW"])
	return rec
}
