package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chimera/internal/app"
	"chimera/internal/config"
	"chimera/internal/logger"
)

var (
	envFile    string
	sourceRoot string
	sourceKind string
	chimera    *app.App
	log        *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chimera-cli",
	Short: "Index a document workspace and query it in plain language",
	Long: `chimera-cli keeps a relationship index of a document workspace (a Notion
workspace or a folder of markdown notes) in sync and answers natural-language
queries against it.

Configuration comes from CHIMERA_* environment variables, optionally loaded
from a .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		if sourceRoot != "" {
			cfg.Source.Root = config.ExpandPath(sourceRoot)
		}
		if sourceKind != "" {
			cfg.Source.Kind = sourceKind
		}

		log, err = app.NewLogger(cfg)
		if err != nil {
			return err
		}
		chimera, err = app.New(cmd.Context(), cfg, log)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if chimera == nil {
			return nil
		}
		defer log.Sync()
		return chimera.Close()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "env file to load before reading CHIMERA_* variables")
	rootCmd.PersistentFlags().StringVarP(&sourceRoot, "root", "r", "", "notes folder for the filesystem source (overrides CHIMERA_SOURCE_ROOT)")
	rootCmd.PersistentFlags().StringVar(&sourceKind, "source", "", "document source: filesystem or notion (overrides CHIMERA_SOURCE_KIND)")
}
