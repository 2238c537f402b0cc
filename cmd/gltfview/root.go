package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "gltfview",
		Short:   "glTF viewer session service",
		Long:    `gltfview resolves dropped or linked glTF assets into a viewer session and reports load failures and validation results.`,
		Version: version,

		SilenceUsage: true,
	}

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewInspectCmd())
	rootCmd.AddCommand(NewTokenCmd())

	return rootCmd
}
