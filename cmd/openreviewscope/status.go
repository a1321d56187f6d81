// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pdiddy/openreviewscope/internal/export"
	"github.com/pdiddy/openreviewscope/internal/store"
	"github.com/pdiddy/openreviewscope/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stage, funnel and pending work of a run",
	Long: `Status loads the saved state of a run and prints the last completed
stage, the PRISMA-ScR funnel counters and how many records are still
pending in each stage. No API key is needed.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Bool("json", false, "output the funnel snapshot as JSON")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	state, err := st.Load(ctx)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(export.Funnel(state))
	}
	printStatus(os.Stdout, state)
	return printBackendStatus(ctx, os.Stdout, st)
}

func printStatus(w io.Writer, state *types.RunState) {
	bold := color.New(color.Bold)
	done := color.New(color.FgGreen)
	waiting := color.New(color.FgYellow)

	bold.Fprintf(w, "Run %s\n", state.RunID)
	stageColor := waiting
	if state.Stage == types.StageComplete {
		stageColor = done
	}
	fmt.Fprint(w, "  last completed stage: ")
	stageColor.Fprintln(w, state.Stage)
	fmt.Fprintf(w, "  updated: %s\n\n", state.UpdatedAt.Format("2006-01-02 15:04:05 MST"))

	bold.Fprintln(w, "Funnel")
	fmt.Fprint(w, export.FormatFunnel(state.Funnel))

	fmt.Fprintln(w)
	bold.Fprintln(w, "Pending")
	for _, stage := range []types.Stage{types.StageAbstractScreening, types.StageFulltextScreening, types.StageExtraction} {
		n := len(state.Pending(stage))
		c := done
		if n > 0 {
			c = waiting
		}
		c.Fprintf(w, "  %-22s %d\n", stage, n)
	}
	if n := len(state.NotRetrieved); n > 0 {
		waiting.Fprintf(w, "  %-22s %d\n", "missing full texts", n)
	}
}

// printBackendStatus adds what the SQLite and Redis backends index
// outside the state document.
func printBackendStatus(ctx context.Context, w io.Writer, st store.Store) error {
	switch s := st.(type) {
	case *store.SQLiteStore:
		fmt.Fprintln(w)
		color.New(color.Bold).Fprintln(w, "Decisions")
		for _, stage := range []types.Stage{types.StageAbstractScreening, types.StageFulltextScreening} {
			counts, err := s.DecisionCounts(ctx, stage)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "  %-22s include %d, exclude %d\n", stage, counts[types.DecisionInclude], counts[types.DecisionExclude])
		}
	case *store.RedisStore:
		meta, err := s.Meta(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w)
		color.New(color.Bold).Fprintln(w, "Redis")
		for _, k := range keys {
			fmt.Fprintf(w, "  %-22s %s\n", k, meta[k])
		}
	}
	return nil
}
