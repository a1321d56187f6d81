// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/openreviewscope/internal/export"
	"github.com/pdiddy/openreviewscope/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the funnel, verdict table and included references",
	Long: `Export writes the reporting files of a run: funnel.yaml (PRISMA-ScR
counters), verdicts.json and verdicts.yaml (one row per verdict with the
three votes), charts.yaml and synthesis.yaml once extraction has run, and
included.csl.yaml with the included records for citation tools.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("out", "", "output directory (default: <store.dir>/<run id>/export)")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
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

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = filepath.Join(store.RunDir(cfg.Store), "export")
	}
	written, err := export.Write(out, state)
	for _, p := range written {
		fmt.Println(p)
	}
	return err
}
