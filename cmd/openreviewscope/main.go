// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the openreviewscope CLI. It screens
// bibliographic records for a scoping review with a three-reviewer AI
// panel, checkpointing after every decision so an interrupted run resumes
// where it stopped.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/openreviewscope/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the openreviewscope CLI.
var rootCmd = &cobra.Command{
	Use:   "openreviewscope",
	Short: "Checkpointed AI-panel screening for scoping reviews",
	Long: `openreviewscope runs the screening workflow of a PRISMA-ScR scoping review.
Records from RIS, MEDLINE or CSL files are deduplicated, screened by title
and abstract, screened again on full text and charted. Every record is
judged by three independent reviewers; disagreements that involve an
unsure vote go to an adjudicator.

The run state is saved after every verdict. Use resume to continue an
interrupted run, status to inspect it and export to write the funnel,
verdict table and included references.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(secrets.DefaultDir)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

// configName is the config file stem searched in the working directory
// and in ~/.config/openreviewscope.
const configName = "openreviewscope"

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", fmt.Sprintf("config file (default: ./%[1]s.yaml or ~/.config/%[1]s/%[1]s.yaml)", configName))
	flags.String("run-id", "", "name of the run (default: store.run_id)")
	flags.String("store-dir", "", "directory for run state and audit logs (default: store.dir)")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	_ = viper.BindPFlag("store.run_id", flags.Lookup("run-id"))
	_ = viper.BindPFlag("store.dir", flags.Lookup("store-dir"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}

	viper.SetEnvPrefix("OPENREVIEWSCOPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
