// Package cli is patchwash's cobra command surface: `run` drives a dataset
// through the orchestrator, `inspect` is a small readline-based browser
// over a written predictions file. Structured the way the teacher's
// internal/cli package is: one file per subcommand, each registering
// itself on rootCmd from init().
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "patchwash",
	Short: "Drive a coding agent through a gated SWE-bench attempt loop",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "patchwash.yaml", "Path to the run configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug-level logging")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the patchwash version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version)
		return nil
	},
}

// Execute runs the root command, printing any error to stderr before
// returning it so main can set the process exit code.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	return nil
}
