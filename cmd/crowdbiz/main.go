// Command crowdbiz runs the import API and the operator commands that drive
// import batches from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "crowdbiz",
	Short:         "CrowdBiz graph import service",
	Long:          "Stages CSV and XLSX uploads of people, organizations, roles and news, matches them against the production tables and merges them in.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
