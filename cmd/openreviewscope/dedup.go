// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/openreviewscope/internal/dedup"
	"github.com/pdiddy/openreviewscope/internal/ingest"
	"github.com/pdiddy/openreviewscope/pkg/types"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup [record files...]",
	Short: "Deduplicate record files without screening",
	Long: `Dedup parses record files and runs the deduplication engine: exact
identifier match, then normalized title similarity, then year, author and
looser title agreement. Duplicate groups are printed with the strategy that
matched. With --out the unique records are written as CSL-YAML.`,
	RunE: runDedup,
}

func init() {
	dedupCmd.Flags().Float64("threshold", types.DefaultTitleThreshold, "title similarity threshold")
	dedupCmd.Flags().String("out", "", "write unique records to this CSL-YAML file")

	rootCmd.AddCommand(dedupCmd)
}

func runDedup(cmd *cobra.Command, args []string) error {
	records, err := ingest.FileSource{Paths: args}.Records(context.Background())
	if err != nil {
		return err
	}
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	unique, groups := dedup.Deduplicate(records, threshold)

	printGroups(os.Stdout, unique, groups)
	fmt.Printf("\n%d identified, %d unique, %d removed\n", len(records), len(unique), len(records)-len(unique))

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		return nil
	}
	items := make([]ingest.CSLItem, len(unique))
	for i, r := range unique {
		items[i] = ingest.CSLFromRecord(r)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := ingest.WriteCSL(f, items); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	fmt.Printf("Wrote %s\n", out)
	return nil
}

func printGroups(w io.Writer, unique []types.Record, groups []types.DuplicateGroup) {
	titles := make(map[string]string, len(unique))
	for _, r := range unique {
		titles[r.ID] = r.Title
	}
	for _, g := range groups {
		fmt.Fprintf(w, "%s  %s\n", g.CanonicalID, titles[g.CanonicalID])
		for _, d := range g.Duplicates {
			fmt.Fprintf(w, "  - %-18s %s (%s)\n", d.Reason, d.Record.Title, d.Record.Provenance)
		}
	}
}
