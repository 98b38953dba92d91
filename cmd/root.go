/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "problemgen",
	Short: "AI problem generation service",
	Long: `problemgen generates competitive programming problems with an AI model
and validates them in the background.

	problemgen server        serve the HTTP API
	problemgen worker        run queued validations
	problemgen migrate up    apply database migrations`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
