package main

import (
	"fmt"
	"os"

	"resq-mcp-server/internal/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "resq",
	Short: "Query React component trees in a live browser",
	Long: `resq finds React components by name, props and state in pages driven by Chrome.

It runs as an MCP server for agents (serve) or answers one query from the shell (query).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Explicit config file layered over the workspace config")
	rootCmd.PersistentFlags().Bool("no-workspace", false, "Skip .resq/ workspace discovery")
	rootCmd.PersistentFlags().String("workspace-dir", "", "Use this directory as the workspace root instead of searching upward")
}

// loadConfig merges defaults, the workspace config and --config.
func loadConfig(cmd *cobra.Command) (config.Config, string, error) {
	explicit, _ := cmd.Flags().GetString("config")
	noWorkspace, _ := cmd.Flags().GetBool("no-workspace")
	wsDir, _ := cmd.Flags().GetString("workspace-dir")

	return config.LoadWithWorkspace(explicit, config.WorkspaceOptions{
		Disable:     noWorkspace,
		ExplicitDir: wsDir,
	})
}
