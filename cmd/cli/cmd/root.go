package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/oom-forensics/hprof-inflight/pkg/utils"
)

var (
	// Global flags
	verbose bool
	logger  utils.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hprof-inflight",
	Short: "Recover in-flight HTTP request bodies from an Elasticsearch heap dump",
	Long: `hprof-inflight loads a JVM HPROF heap dump taken from a crashed
Elasticsearch node and reconstructs the HTTP request bodies that were
still buffered on the Netty4 HTTP transport at the moment of the crash.`,
	// SilenceErrors and SilenceUsage: a RunE failure is reported by
	// Execute as the single-line "ERROR: <message>" the CLI surface
	// requires (§6.2), not Cobra's default "Error: <err>" plus a full
	// usage dump.
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := utils.LevelInfo
		if env := os.Getenv("HPROF_LOG"); env != "" {
			logLevel = utils.ParseLogLevel(env)
		}
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stderr)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	binName := BinName()
	rootCmd.Example = `  # Print every recovered request body to stdout
  ` + binName + ` inflight-queries --print node.hprof

  # Save each recovered body as query_<n>.json in a <dump>.prof directory next to the dump
  ` + binName + ` inflight-queries --save node.hprof`
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}
