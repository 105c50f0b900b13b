package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/psantana5/dreamina/pkg/config"
	"github.com/psantana5/dreamina/pkg/logging"
)

var (
	cfgFile       string
	outputFormat  string
	logLevel      string
	historyDriver string
	printMetrics  bool

	settings *config.Config
	logger   logging.Logger
	logFile  io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "dreamina",
	Short: "Command line client for Dreamina image and video generation",
	Long: `dreamina submits image and video generation jobs, waits for them to
finish and downloads the results. Generated image content URIs can be fed
back into edit and video jobs.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dreamina.json)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&historyDriver, "history", "", "history backend: sqlite, postgres, memory or none")
	rootCmd.PersistentFlags().BoolVar(&printMetrics, "print-metrics", false, "print API and job metrics to stderr on exit")
}

func loadSettings(cmd *cobra.Command, args []string) error {
	switch outputFormat {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unsupported output format %q", outputFormat)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if historyDriver != "" {
		cfg.HistoryDriver = historyDriver
	}
	settings = cfg

	if cfg.LogDir != "" {
		l, closer, err := logging.NewFileLogger(cfg.LogDir, "dreamina", cfg.LogLevel)
		if err != nil {
			return err
		}
		logger, logFile = l, closer
		return nil
	}
	logger = logging.New(os.Stderr, cfg.LogLevel, cfg.LogJSON)
	return nil
}

// isTable reports whether human-readable output was requested.
func isTable() bool {
	return outputFormat == "table"
}
