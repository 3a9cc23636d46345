// Package cmd implements the verso command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "verso",
	Short: "LLM gateway with streaming chat, tool calling, and conversation persistence",
	Long: `verso is a chat-oriented LLM gateway. It resolves per-call generation
configuration from presets and model capabilities, streams provider
responses as normalized events, runs model-requested tools, and persists
conversations in PostgreSQL.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ./config.yaml)")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
