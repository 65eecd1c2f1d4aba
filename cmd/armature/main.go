package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "armature",
	Short: "Dynamic plugin host",
	Long: `Armature discovers plugin artifacts, resolves their dependencies,
loads them into the host process (optionally sandboxed), manages their
lifecycle, and routes events between them and the host.

Configuration is read from ARMATURE_* environment variables; see the
config package documentation for the full list.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(runCmd, listCmd, infoCmd, validateCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
