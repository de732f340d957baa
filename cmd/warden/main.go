package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "warden",
		Short: "guild-warden - quarantine bans, appeals and mutes for Discord servers",
		Long: `guild-warden quarantines members instead of banning them outright.
A quarantined member keeps one channel and one in-server appeal; staff approve
or decline it, and a declined appeal ends in a permanent ban.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to configuration file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(dbCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
