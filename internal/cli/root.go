// Package cli provides the command-line interface for vesselstenosis.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"vesselstenosis/pkg/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configPath string
	logLevel   string
	logFile    string
	verbose    bool

	// Loaded in PersistentPreRunE
	cfg         *config.Config
	logger      *slog.Logger
	closeLogger func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "vesselstenosis",
	Short: "Stenosis analysis on branching vessel centerlines",
	Long: `vesselstenosis decomposes traced vessel centerlines into a branch tree,
detects narrowings below a diameter threshold and grades them with the
NASCET degree.

The worst stenosis of the primary branch can be stored as a scene record
and the surface around any stenosis can be clipped out of an STL mesh.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "init" {
			return nil
		}

		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.Output.LogLevel
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		file := cfg.Output.LogFile
		if cmd.Flags().Changed("log-file") {
			file = logFile
		}
		if cmd.Flags().Changed("verbose") {
			cfg.Output.Verbose = verbose
		}

		logger, closeLogger = config.SetupLogger(file, config.ParseLogLevel(level))
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLogger != nil {
			if err := closeLogger(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
			closeLogger = nil
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "vesselstenosis.yaml", "configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "additional JSON log file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print per-branch details")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(clipCmd)
	rootCmd.AddCommand(sceneCmd)
	rootCmd.AddCommand(configCmd)
}
