package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:           "alarmd",
		Short:         "Alarm scheduling daemon and control CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./alarmd.yaml", "path to config (json or yaml)")

	rootCmd.AddCommand(
		newServeCmd(),
		newAddCmd(),
		newListCmd(),
		newShowCmd(),
		newToggleCmd("enable", true),
		newToggleCmd("disable", false),
		newRemoveCmd(),
		newSnoozeCmd(),
		newStatusCmd(),
		newPreviewCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "alarmd:", err)
		os.Exit(1)
	}
}
