// Command attachpool bootstraps a work-stealing pool on host-spawned worker
// contexts and runs a batch of tasks on it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set with -ldflags "-X main.version=..."
var version = "dev"

var rootCmd = &cobra.Command{
	Use:          "attachpool",
	Short:        "Bootstrap a work-stealing pool on externally spawned workers",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "attachpool", version)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "attachpool failed: %v\n", err)
		os.Exit(1)
	}
}
