package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vitalsops/internal/config"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "vitalsops",
	Short:         "Soldier vitals operator console",
	Long:          "vitalsops connects to the command portal, tracks live soldier vitals and manages personnel.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to console configuration YAML")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(rosterCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(commandersCmd)
	rootCmd.AddCommand(createCommanderCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(recordCmd)
}
