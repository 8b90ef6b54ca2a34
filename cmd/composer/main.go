package main

import (
	"fmt"
	"os"

	"github.com/recinq/composer/cmd/composer/commands"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "composer",
	Short: "Serverless composition engine",
	Long: `Composer builds control-flow compositions of serverless actions,
compiles them to flat state machines, and runs them through a resumable
conductor — locally or on an OpenWhisk-compatible platform.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

func init() {
	rootCmd.SetVersionTemplate("composer version {{.Version}}\n")

	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringP("output", "o", "auto", "Output format: auto, json, text")

	rootCmd.AddCommand(commands.NewInitCmd())
	rootCmd.AddCommand(commands.NewValidateCmd())
	rootCmd.AddCommand(commands.NewCompileCmd())
	rootCmd.AddCommand(commands.NewDeployCmd())
	rootCmd.AddCommand(commands.NewRunCmd())
	rootCmd.AddCommand(commands.NewRunsCmd())
	rootCmd.AddCommand(commands.NewConductCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
