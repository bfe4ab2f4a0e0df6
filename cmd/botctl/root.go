package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"captionbot/agent/internal/config"
)

func newRootCommand() *cobra.Command {
	var cfg config.Launcher

	rootCmd := &cobra.Command{
		Use:           "botctl",
		Short:         "Launch and inspect caption bots without the launcher service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg = config.LoadLauncher()
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newLaunchCommand(&cfg))
	rootCmd.AddCommand(newHealthCommand(&cfg))
	return rootCmd
}
