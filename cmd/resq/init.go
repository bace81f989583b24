package main

import (
	"fmt"

	"resq-mcp-server/internal/config"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a .resq/ workspace with a config template",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) > 0 {
			root = args[0]
		}
		if err := config.InitWorkspace(root); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "initialized resq workspace in %s\n", root)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
