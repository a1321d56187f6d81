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

var runCmd = &cobra.Command{
	Use:   "run [record files...]",
	Short: "Start a new screening run",
	Long: `Run starts a new run from one or more record files (.ris, .nbib,
.medline, .txt, .yaml, .yml, .json) and a criteria file. Records are
deduplicated, screened on title and abstract, checked for full texts,
screened on full text, charted and summarized.

The run pauses at the fulltext gate when included records have no full text
in fulltext.dir; add the files and use resume to continue.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("criteria", "criteria.yaml", "PCC criteria file (YAML)")
	runCmd.Flags().Bool("allow-missing", false, "continue past the fulltext gate when full texts are missing")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more record files (RIS, MEDLINE or CSL)")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyAllowMissing(cmd, &cfg)

	criteriaPath, _ := cmd.Flags().GetString("criteria")
	criteria, err := ingest.LoadCriteria(criteriaPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	existing, err := sess.store.Load(ctx)
	switch {
	case err == nil:
		return fmt.Errorf("run %q already exists at stage %s; use resume or choose another --run-id", existing.RunID, existing.Stage)
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	d, err := sess.driver(ctx, ingest.FileSource{Paths: args})
	if err != nil {
		return err
	}
	return advance(ctx, d, types.NewRunState(cfg.Store.RunID, criteria))
}
