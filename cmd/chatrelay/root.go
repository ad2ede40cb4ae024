package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "Streaming relay between chat clients and LLM providers",
	Long: `chatrelay serves chat completions from multiple LLM providers
over server-sent events, with a synchronous JSON fallback for clients
that do not stream.

Providers, routing and persistence are configured in config.yaml;
CHATRELAY_* environment variables override individual values.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(encryptCmd)
}

// Execute is the entry point called from main.
func Execute() error {
	return rootCmd.Execute()
}
