// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/openreviewscope/internal/ingest"
	"github.com/pdiddy/openreviewscope/internal/store"
	"github.com/pdiddy/openreviewscope/pkg/types"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [record files...]",
	Short: "Continue a saved run from its last checkpoint",
	Long: `Resume loads the saved state of a run and continues with the first
unfinished stage. Records that already have a verdict or chart for the
current stage are not sent to the reviewers again.

Record files are only needed when the run stopped before ingestion
finished.`,
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().Bool("allow-missing", false, "continue past the fulltext gate when full texts are missing")

	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyAllowMissing(cmd, &cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	state, err := sess.store.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no saved run %q; start one with run", cfg.Store.RunID)
	}
	if err != nil {
		return err
	}
	if state.Stage == types.StageComplete {
		fmt.Printf("Run %s is already complete.\n", state.RunID)
		return nil
	}
	fmt.Printf("Resuming run %s after %s\n", state.RunID, state.Stage)

	var source ingest.Source
	if len(args) > 0 {
		source = ingest.FileSource{Paths: args}
	}
	d, err := sess.driver(ctx, source)
	if err != nil {
		return err
	}
	return advance(ctx, d, state)
}
